// Package upscale runs an external super-resolution tool over an image file.
package upscale

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUpscaleFailed is wrapped by Result.Err for every failed upscale
var ErrUpscaleFailed = errors.New("upscale failed")

// DefaultBinary is the Real-ESRGAN ncnn/Vulkan executable name
const DefaultBinary = "realesrgan-ncnn-vulkan"

// Result is the outcome of one upscale. Diagnostic carries the tool's
// output and is for humans only.
type Result struct {
	OK         bool
	OutputPath string
	Diagnostic string
}

// Err returns nil on success and an error wrapping ErrUpscaleFailed otherwise
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.Diagnostic == "" {
		return ErrUpscaleFailed
	}
	return fmt.Errorf("%w: %s", ErrUpscaleFailed, r.Diagnostic)
}

// Upscaler turns the image at inPath into a higher-resolution image at outPath
type Upscaler interface {
	Upscale(ctx context.Context, inPath, outPath string) Result
}

// Noop leaves images untouched; it is used when upscaling is disabled
type Noop struct{}

// Upscale implements Upscaler by reporting the input path unchanged
func (Noop) Upscale(_ context.Context, inPath, _ string) Result {
	return Result{OK: true, OutputPath: inPath}
}

// RealESRGAN runs realesrgan-ncnn-vulkan (or a compatible tool)
type RealESRGAN struct {
	Binary    string
	Scale     int
	Model     string
	ExtraArgs []string
	// Timeout bounds one run; zero means no limit beyond ctx
	Timeout time.Duration
}

// NewRealESRGAN creates an upscaler using the default binary name
func NewRealESRGAN() *RealESRGAN {
	return &RealESRGAN{Binary: DefaultBinary}
}

// LookPath resolves the binary, reporting an error when it is not installed
func (u *RealESRGAN) LookPath() (string, error) {
	return exec.LookPath(u.binary())
}

// Args returns the command line arguments for one run
func (u *RealESRGAN) Args(inPath, outPath string) []string {
	args := []string{"-i", inPath, "-o", outPath}
	if u.Scale > 0 {
		args = append(args, "-s", strconv.Itoa(u.Scale))
	}
	if u.Model != "" {
		args = append(args, "-n", u.Model)
	}
	return append(args, u.ExtraArgs...)
}

// Upscale implements Upscaler. A non-zero exit status, a start failure, a
// timeout or a missing output file is a failure.
func (u *RealESRGAN) Upscale(ctx context.Context, inPath, outPath string) Result {
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, u.binary(), u.Args(inPath, outPath)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(out.String())
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if diag == "" {
			diag = err.Error()
		} else {
			diag = err.Error() + ": " + diag
		}
		return Result{Diagnostic: diag}
	}

	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return Result{Diagnostic: "no output written to " + outPath}
	}
	return Result{OK: true, OutputPath: outPath, Diagnostic: strings.TrimSpace(out.String())}
}

func (u *RealESRGAN) binary() string {
	if u.Binary == "" {
		return DefaultBinary
	}
	return u.Binary
}

// TempPath returns a unique path in dir for the upscaled version of src.
// The extension is kept because the tool picks its encoder from it.
func TempPath(dir, src string) string {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".png"
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, fmt.Sprintf("%s.upscaled.%s%s", base, uuid.NewString(), ext))
}
