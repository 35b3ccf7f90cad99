package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/widefit/pkg/detection"
	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/processing"
)

// ModelConfig holds configuration for the vision-model provider
type ModelConfig struct {
	Model string
	// MaxDimension bounds the image sent to the model
	MaxDimension int
	Quality      int
}

// ModelSegmenter asks a vision model for the subject box
type ModelSegmenter struct {
	config    ModelConfig
	detector  *detection.Detector
	processor *processing.Processor
}

// NewModel creates a provider backed by detector
func NewModel(detector *detection.Detector, config ModelConfig) *ModelSegmenter {
	if config.MaxDimension <= 0 {
		config.MaxDimension = 1024
	}
	if config.Quality <= 0 {
		config.Quality = 85
	}
	return &ModelSegmenter{
		config:    config,
		detector:  detector,
		processor: processing.NewProcessor(),
	}
}

// Name implements Segmenter
func (s *ModelSegmenter) Name() string { return "model" }

// Available implements Segmenter
func (s *ModelSegmenter) Available(ctx context.Context) error {
	if s.config.Model == "" {
		return errors.New("no model configured")
	}
	return s.detector.Client().Ping(ctx)
}

// Segment implements Segmenter. A model answer of "no subject" gives an
// empty mask.
func (s *ModelSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, unavailable(s.Name(), errEmptyImage)
	}

	b64, err := s.processor.PrepareImageForModel(img, "jpg", s.config.MaxDimension, s.config.Quality)
	if err != nil {
		return nil, unavailable(s.Name(), fmt.Errorf("encoding image: %w", err))
	}

	result, err := s.detector.DetectSubject(ctx, s.config.Model, b64)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}

	box, err := s.detector.SubjectBox(result, b.Dx(), b.Dy())
	switch {
	case errors.Is(err, detection.ErrNoSubject):
		return mask.Empty(b.Dx(), b.Dy()), nil
	case err != nil:
		return nil, unavailable(s.Name(), err)
	}
	return mask.FromBox(b.Dx(), b.Dy(), box), nil
}
