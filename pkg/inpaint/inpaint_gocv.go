//go:build gocv

package inpaint

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Backend names the implementation compiled into this binary
const Backend = "opencv-telea"

func inpaint(img *image.NRGBA, fill *image.Gray, radius int) (*image.NRGBA, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	m, err := gocv.ImageGrayToMatGray(fill)
	if err != nil {
		return nil, fmt.Errorf("convert fill mask: %w", err)
	}
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Inpaint(src, m, &dst, float32(radius), gocv.Telea)

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert result: %w", err)
	}
	return imaging.Clone(out), nil
}
