// Package mask holds helpers for single-channel subject masks.
//
// A subject mask is an *image.Gray with the same pixel dimensions as the
// image it describes. A pixel belongs to the subject when its value is
// strictly greater than Threshold.
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/menta2k/widefit/pkg/types"
)

// Threshold is the cut-off for subject pixels: value > Threshold is subject
const Threshold uint8 = 128

// ErrDimensionMismatch is returned when a mask cannot be brought to the size of its image
var ErrDimensionMismatch = errors.New("mask dimensions do not match image")

// IsSubject reports whether a mask value marks a subject pixel
func IsSubject(v uint8) bool {
	return v > Threshold
}

// Full returns an all-white mask, meaning "the whole frame is subject"
func Full(width, height int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, width, height))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}

// Empty returns an all-black mask
func Empty(width, height int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, width, height))
}

// FromBox returns a mask of the given size with box painted white.
// The box is clipped to the mask bounds.
func FromBox(width, height int, box types.BoundingBox) *image.Gray {
	m := Empty(width, height)
	r := image.Rect(box.X1, box.Y1, box.X2, box.Y2).Intersect(m.Bounds())
	if !r.Empty() {
		draw.Draw(m, r, image.NewUniform(color.Gray{Y: 0xff}), image.Point{}, draw.Src)
	}
	return m
}

// FromImage converts any image to a grey mask using its luminance.
// The result always starts at the origin.
func FromImage(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	m := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Bounds(), img, b.Min, draw.Src)
	return m
}

// FromAlpha builds a mask from the alpha channel of a matte (cut-out with transparent background)
func FromAlpha(img image.Image) *image.Gray {
	b := img.Bounds()
	m := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Pix[y*m.Stride+x] = uint8(a >> 8)
		}
	}
	return m
}

// Match returns m resampled to width x height. The second return value
// reports whether resampling happened.
//
// Shrinking an axis max-pools: a target pixel takes the largest value of the
// source pixels it covers, so a thin subject never drops below Threshold.
// Pure enlargement uses nearest-neighbour sampling.
func Match(m *image.Gray, width, height int) (*image.Gray, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("%w: nil mask", ErrDimensionMismatch)
	}
	b := m.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return FromImage(m), false, nil
	}
	if width <= 0 || height <= 0 || b.Empty() {
		return nil, false, fmt.Errorf("%w: cannot resample %dx%d to %dx%d",
			ErrDimensionMismatch, b.Dx(), b.Dy(), width, height)
	}

	var out *image.Gray
	if width >= b.Dx() && height >= b.Dy() {
		out = FromImage(resize.Resize(uint(width), uint(height), m, resize.NearestNeighbor))
	} else {
		out = maxPool(FromImage(m), width, height)
	}
	if out.Bounds().Dx() != width || out.Bounds().Dy() != height {
		return nil, false, fmt.Errorf("%w: resampler produced %dx%d",
			ErrDimensionMismatch, out.Bounds().Dx(), out.Bounds().Dy())
	}
	return out, true, nil
}

// maxPool resamples src, which must start at the origin, to width x height.
// Every target pixel covers the source span [x*sw/w, ceil((x+1)*sw/w)), which
// is at least one pixel wide on both axes.
func maxPool(src *image.Gray, width, height int) *image.Gray {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		y0, y1 := span(y, sh, height)
		for x := 0; x < width; x++ {
			x0, x1 := span(x, sw, width)
			var v uint8
			for sy := y0; sy < y1; sy++ {
				for _, p := range src.Pix[sy*src.Stride+x0 : sy*src.Stride+x1] {
					if p > v {
						v = p
					}
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

func span(i, src, dst int) (int, int) {
	lo := i * src / dst
	hi := ((i+1)*src + dst - 1) / dst
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// Coverage returns the fraction of subject pixels in m
func Coverage(m *image.Gray) float64 {
	b := m.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	count := 0
	for y := 0; y < b.Dy(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+b.Dx()]
		for _, v := range row {
			if IsSubject(v) {
				count++
			}
		}
	}
	return float64(count) / float64(total)
}
