package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/analyzer"
	"github.com/menta2k/widefit/pkg/types"
)

// Cropper cuts the centered target-aspect window out of an image and
// resizes it to the exact target dimensions
type Cropper struct {
	config CropConfig
}

// CropConfig holds configuration for cropping
type CropConfig struct {
	Filter imaging.ResampleFilter
}

// Preset is a named output canvas
type Preset struct {
	Name   string
	Target types.TargetSize
}

// Common output canvases
var (
	UltrawideQHD = Preset{"uwqhd", types.TargetSize{Width: 3440, Height: 1440}}
	UltrawideFHD = Preset{"uwfhd", types.TargetSize{Width: 2560, Height: 1080}}
	SuperUltra   = Preset{"dqhd", types.TargetSize{Width: 5120, Height: 1440}}
	UHD          = Preset{"4k", types.TargetSize{Width: 3840, Height: 2160}}
	QHD          = Preset{"qhd", types.TargetSize{Width: 2560, Height: 1440}}
	FHD          = Preset{"fhd", types.TargetSize{Width: 1920, Height: 1080}}
)

// CommonPresets returns the list of built-in output canvases
func CommonPresets() []Preset {
	return []Preset{UltrawideQHD, UltrawideFHD, SuperUltra, UHD, QHD, FHD}
}

// LookupPreset finds a preset by name
func LookupPreset(name string) (Preset, bool) {
	for _, p := range CommonPresets() {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// New creates a new Cropper with Lanczos resampling
func New() *Cropper {
	return &Cropper{
		config: CropConfig{
			Filter: imaging.Lanczos,
		},
	}
}

// NewWithConfig creates a new Cropper with custom configuration.
// The zero Filter is imaging.NearestNeighbor.
func NewWithConfig(config CropConfig) *Cropper {
	return &Cropper{config: config}
}

// Window returns the crop window for img, in coordinates relative to img.Bounds().Min
func (c *Cropper) Window(img image.Image, target types.TargetSize) types.CropWindow {
	b := img.Bounds()
	return analyzer.CropWindow(b.Dx(), b.Dy(), target)
}

// Crop extracts the centered window and resizes it to exactly target.
// The input image is not modified.
func (c *Cropper) Crop(img image.Image, target types.TargetSize) (*image.NRGBA, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	w := c.Window(img, target)
	rect := image.Rect(w.X1, w.Y1, w.X2, w.Y2).Add(b.Min)

	cropped := imaging.Crop(img, rect)
	return imaging.Resize(cropped, target.Width, target.Height, c.config.Filter), nil
}
