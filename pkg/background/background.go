// Package background builds letterboxed canvases: the whole source,
// scaled to fit and centered, over a synthesized background.
//
// All strategies share the same Layout; they differ only in how the area
// around the foreground is filled.
package background

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/types"
)

// Strategy fills a target-sized canvas around the centered, aspect-preserved source
type Strategy interface {
	// Name returns the configuration name of the strategy
	Name() string
	// Compose returns a canvas of exactly target dimensions. img is not modified.
	Compose(img image.Image, target types.TargetSize) (*image.NRGBA, error)
}

// Placement is where the scaled foreground sits on the canvas
type Placement struct {
	Width  int
	Height int
	Offset image.Point
}

// Rect returns the canvas rectangle covered by the foreground
func (p Placement) Rect() image.Rectangle {
	return image.Rect(p.Offset.X, p.Offset.Y, p.Offset.X+p.Width, p.Offset.Y+p.Height)
}

// Layout computes the aspect-preserving fit of a srcW x srcH image inside
// target: scale = min(tW/sW, tH/sH), sizes rounded and clamped to
// [1, target], offsets floor-centered.
func Layout(srcW, srcH int, target types.TargetSize) Placement {
	scale := math.Min(float64(target.Width)/float64(srcW), float64(target.Height)/float64(srcH))
	rw := clampInt(int(math.Round(float64(srcW)*scale)), 1, target.Width)
	rh := clampInt(int(math.Round(float64(srcH)*scale)), 1, target.Height)
	return Placement{
		Width:  rw,
		Height: rh,
		Offset: image.Pt((target.Width-rw)/2, (target.Height-rh)/2),
	}
}

// Foreground resizes img to its placement with the given filter
func Foreground(img image.Image, target types.TargetSize, filter imaging.ResampleFilter) (*image.NRGBA, Placement) {
	b := img.Bounds()
	p := Layout(b.Dx(), b.Dy(), target)
	return imaging.Resize(img, p.Width, p.Height, filter), p
}

// Opaque returns a copy of img with every alpha value set to 255. Colour
// channels are kept as stored, so fully transparent pixels show their
// underlying colour.
func Opaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// Config holds the tunables of every strategy
type Config struct {
	BlurSigma      float64
	BlurDownsample int
	InpaintRadius  int
	Filter         imaging.ResampleFilter
}

// DefaultConfig returns the standard strategy settings
func DefaultConfig() Config {
	return Config{
		BlurSigma:      32,
		BlurDownsample: 4,
		InpaintRadius:  3,
		Filter:         imaging.Lanczos,
	}
}

// Names lists the strategies ByName understands
func Names() []string {
	return []string{"blur", "gradient", "inpaint"}
}

// ByName returns the strategy registered under name
func ByName(name string, cfg Config) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "blur":
		return &Blur{Sigma: cfg.BlurSigma, Downsample: cfg.BlurDownsample, Filter: cfg.Filter}, nil
	case "gradient":
		return &Gradient{Filter: cfg.Filter}, nil
	case "inpaint":
		return &Inpaint{Radius: cfg.InpaintRadius, Filter: cfg.Filter}, nil
	default:
		return nil, fmt.Errorf("unknown background strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
}

func checkInputs(img image.Image, target types.TargetSize) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("invalid image dimensions: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
