package vision

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

// SmartcropConfig holds configuration for the smartcrop provider
type SmartcropConfig struct {
	// Aspect is the width/height ratio of the attention region searched for
	Aspect float64
	// MaxDimension bounds the working resolution
	MaxDimension int
}

// DefaultSmartcropConfig returns the standard smartcrop settings
func DefaultSmartcropConfig() SmartcropConfig {
	return SmartcropConfig{
		Aspect:       1,
		MaxDimension: 512,
	}
}

// SmartcropSegmenter marks the best-scoring smartcrop region (skin, detail
// and saturation) as subject
type SmartcropSegmenter struct {
	config SmartcropConfig
}

// NewSmartcrop creates a smartcrop provider
func NewSmartcrop(config SmartcropConfig) *SmartcropSegmenter {
	if config.Aspect <= 0 {
		config.Aspect = 1
	}
	return &SmartcropSegmenter{config: config}
}

// resizer implements the smartcrop Resizer interface with imaging
type resizer struct {
	filter imaging.ResampleFilter
}

func (r resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.filter)
}

// Name implements Segmenter
func (s *SmartcropSegmenter) Name() string { return "smartcrop" }

// Available implements Segmenter
func (s *SmartcropSegmenter) Available(context.Context) error { return nil }

// Segment implements Segmenter
func (s *SmartcropSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, unavailable(s.Name(), errEmptyImage)
	}

	work := imaging.Clone(img)
	scale := 1.0
	if d := s.config.MaxDimension; d > 0 && (b.Dx() > d || b.Dy() > d) {
		work = imaging.Fit(work, d, d, imaging.Linear)
		scale = float64(b.Dx()) / float64(work.Bounds().Dx())
	}

	ww, wh := work.Bounds().Dx(), work.Bounds().Dy()
	cw, ch := ww, int(float64(ww)/s.config.Aspect)
	if ch > wh {
		cw, ch = int(float64(wh)*s.config.Aspect), wh
	}
	if cw < 1 || ch < 1 {
		return nil, unavailable(s.Name(), errEmptyImage)
	}

	type result struct {
		crop image.Rectangle
		err  error
	}
	done := make(chan result, 1)
	go func() {
		analyzer := smartcrop.NewAnalyzer(resizer{filter: imaging.Linear})
		crop, err := analyzer.FindBestCrop(work, cw, ch)
		done <- result{crop: crop, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, unavailable(s.Name(), r.err)
	}

	box := clipBox(types.BoundingBox{
		X1: int(float64(r.crop.Min.X) * scale),
		Y1: int(float64(r.crop.Min.Y) * scale),
		X2: int(float64(r.crop.Max.X)*scale + 0.5),
		Y2: int(float64(r.crop.Max.Y)*scale + 0.5),
	}, b.Dx(), b.Dy())
	if box.Width() <= 0 || box.Height() <= 0 {
		return nil, unavailable(s.Name(), errEmptyImage)
	}
	return mask.FromBox(b.Dx(), b.Dy(), box), nil
}
