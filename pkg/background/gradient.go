package background

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/types"
)

// Gradient fills the canvas with a horizontal blend between the average
// colours of the source's leftmost and rightmost pixel columns
type Gradient struct {
	Filter imaging.ResampleFilter
}

// Name implements Strategy
func (g *Gradient) Name() string { return "gradient" }

// Compose implements Strategy
func (g *Gradient) Compose(img image.Image, target types.TargetSize) (*image.NRGBA, error) {
	if err := checkInputs(img, target); err != nil {
		return nil, err
	}

	left, right := EdgeColors(img)
	bg := imaging.New(target.Width, target.Height, color.NRGBA{})
	for x := 0; x < target.Width; x++ {
		c := lerpColor(left, right, x, target.Width)
		for y := 0; y < target.Height; y++ {
			i := bg.PixOffset(x, y)
			bg.Pix[i+0] = c.R
			bg.Pix[i+1] = c.G
			bg.Pix[i+2] = c.B
			bg.Pix[i+3] = c.A
		}
	}

	fg, p := Foreground(img, target, g.Filter)
	return imaging.Paste(bg, fg, p.Offset), nil
}

// EdgeColors returns the average colour of the leftmost and the rightmost
// 1px column of img
func EdgeColors(img image.Image) (left, right color.NRGBA) {
	b := img.Bounds()
	strip := func(x int) color.NRGBA {
		col := imaging.Crop(img, image.Rect(x, b.Min.Y, x+1, b.Max.Y))
		avg := imaging.Resize(col, 1, 1, imaging.Box)
		c := avg.NRGBAAt(0, 0)
		c.A = 0xff
		return c
	}
	return strip(b.Min.X), strip(b.Max.X - 1)
}

// lerpColor blends from a at column 0 to b at column width-1
func lerpColor(a, b color.NRGBA, x, width int) color.NRGBA {
	if width <= 1 {
		return a
	}
	f := float64(x) / float64(width-1)
	mix := func(p, q uint8) uint8 {
		return uint8(math.Round(float64(p) + (float64(q)-float64(p))*f))
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
