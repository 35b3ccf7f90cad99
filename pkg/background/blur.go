package background

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/types"
)

// Blur stretches the whole source to the canvas, blurs it heavily and
// pastes the fitted foreground on top
type Blur struct {
	// Sigma of the Gaussian blur at full canvas resolution
	Sigma float64
	// Downsample > 1 blurs at 1/Downsample resolution and scales back up,
	// which looks the same for large sigmas and is much cheaper
	Downsample int
	Filter     imaging.ResampleFilter
}

// Name implements Strategy
func (b *Blur) Name() string { return "blur" }

// Compose implements Strategy
func (b *Blur) Compose(img image.Image, target types.TargetSize) (*image.NRGBA, error) {
	if err := checkInputs(img, target); err != nil {
		return nil, err
	}

	bg := b.background(img, target)
	fg, p := Foreground(img, target, b.Filter)
	return imaging.Paste(bg, fg, p.Offset), nil
}

func (b *Blur) background(img image.Image, target types.TargetSize) *image.NRGBA {
	factor := b.Downsample
	if factor < 1 {
		factor = 1
	}
	w := target.Width / factor
	h := target.Height / factor
	if factor == 1 || w < 1 || h < 1 {
		stretched := imaging.Resize(img, target.Width, target.Height, b.Filter)
		return imaging.Blur(stretched, b.Sigma)
	}

	small := imaging.Resize(img, w, h, imaging.Linear)
	small = imaging.Blur(small, b.Sigma/float64(factor))
	return imaging.Resize(small, target.Width, target.Height, imaging.Linear)
}
