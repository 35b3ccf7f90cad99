package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/menta2k/widefit/pkg/mask"
)

// MatteConfig configures the external background-removal provider
type MatteConfig struct {
	// Binary is the matting tool, rembg by default
	Binary string
	// Args come before the input and output paths
	Args []string
	// Timeout bounds one run; zero means no limit beyond ctx
	Timeout time.Duration
	// TempDir receives the exchanged files; empty means os.TempDir()
	TempDir string
}

// DefaultMatteConfig returns settings for `rembg i <in> <out>`
func DefaultMatteConfig() MatteConfig {
	return MatteConfig{
		Binary:  "rembg",
		Args:    []string{"i"},
		Timeout: 2 * time.Minute,
	}
}

// MatteSegmenter runs a background-removal tool and uses the alpha channel
// of its cut-out as the subject mask
type MatteSegmenter struct {
	config MatteConfig
}

// NewMatte creates a matte provider
func NewMatte(config MatteConfig) *MatteSegmenter {
	if config.Binary == "" {
		config.Binary = DefaultMatteConfig().Binary
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	return &MatteSegmenter{config: config}
}

// Name implements Segmenter
func (s *MatteSegmenter) Name() string { return "matte" }

// Available implements Segmenter by looking the tool up on PATH
func (s *MatteSegmenter) Available(context.Context) error {
	if _, err := exec.LookPath(s.config.Binary); err != nil {
		return unavailable(s.Name(), err)
	}
	return nil
}

// Segment implements Segmenter. The cut-out must be a PNG with the same
// dimensions as img.
func (s *MatteSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, unavailable(s.Name(), errEmptyImage)
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	in := filepath.Join(s.config.TempDir, "matte-in."+id+".png")
	out := filepath.Join(s.config.TempDir, "matte-out."+id+".png")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := imaging.Save(img, in); err != nil {
		return nil, unavailable(s.Name(), err)
	}

	var output bytes.Buffer
	args := append(append([]string(nil), s.config.Args...), in, out)
	cmd := exec.CommandContext(ctx, s.config.Binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if diag := strings.TrimSpace(output.String()); diag != "" {
			err = fmt.Errorf("%w: %s", err, diag)
		}
		return nil, unavailable(s.Name(), err)
	}

	cut, err := imaging.Open(out)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	if cut.Bounds().Dx() != b.Dx() || cut.Bounds().Dy() != b.Dy() {
		return nil, unavailable(s.Name(), fmt.Errorf("cut-out is %dx%d, image is %dx%d",
			cut.Bounds().Dx(), cut.Bounds().Dy(), b.Dx(), b.Dy()))
	}
	return mask.FromAlpha(cut), nil
}
