package background

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/inpaint"
	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

// Inpaint pastes the fitted foreground on an empty canvas and synthesizes
// everything around it from the foreground's edge pixels
type Inpaint struct {
	Radius int
	Filter imaging.ResampleFilter
}

// Name implements Strategy
func (s *Inpaint) Name() string { return "inpaint" }

// Compose implements Strategy
func (s *Inpaint) Compose(img image.Image, target types.TargetSize) (*image.NRGBA, error) {
	if err := checkInputs(img, target); err != nil {
		return nil, err
	}

	fg, p := Foreground(img, target, s.Filter)
	base := imaging.New(target.Width, target.Height, color.NRGBA{A: 0xff})
	base = imaging.Paste(base, fg, p.Offset)

	if p.Width == target.Width && p.Height == target.Height {
		return base, nil
	}

	fill := FillMask(target, p)
	out, err := inpaint.Inpaint(base, fill, s.Radius)
	if err != nil {
		return nil, fmt.Errorf("inpainting background: %w", err)
	}
	return out, nil
}

// FillMask marks every canvas pixel not covered by the foreground
func FillMask(target types.TargetSize, p Placement) *image.Gray {
	m := mask.Full(target.Width, target.Height)
	r := p.Rect()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Pix[y*m.Stride+r.Min.X : y*m.Stride+r.Max.X]
		for i := range row {
			row[i] = 0
		}
	}
	return m
}
