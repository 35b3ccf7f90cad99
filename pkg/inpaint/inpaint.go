// Package inpaint synthesizes pixels for a masked region from the
// surrounding known pixels.
//
// The default build uses a pure Go implementation of Telea's fast marching
// method. Building with the gocv tag routes the same call through OpenCV
// (cv::inpaint with INPAINT_TELEA).
package inpaint

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/mask"
)

// DefaultRadius is the neighbourhood radius used when none is given
const DefaultRadius = 3

// Inpaint returns a copy of img in which every pixel with a non-zero fill
// mask value has been synthesized. img is not modified.
func Inpaint(img image.Image, fill image.Image, radius int) (*image.NRGBA, error) {
	ib, fb := img.Bounds(), fill.Bounds()
	if ib.Dx() != fb.Dx() || ib.Dy() != fb.Dy() {
		return nil, fmt.Errorf("%w: image %dx%d, fill mask %dx%d",
			mask.ErrDimensionMismatch, ib.Dx(), ib.Dy(), fb.Dx(), fb.Dy())
	}
	if radius <= 0 {
		radius = DefaultRadius
	}
	return inpaint(imaging.Clone(img), mask.FromImage(fill), radius)
}
