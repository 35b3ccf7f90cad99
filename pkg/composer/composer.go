// Package composer turns one image and its subject mask into a canvas of the
// target size, either by cropping or by letterboxing over a synthesized
// background.
package composer

import (
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/widefit/pkg/analyzer"
	"github.com/menta2k/widefit/pkg/background"
	"github.com/menta2k/widefit/pkg/cropper"
	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

// Observer is notified of every analysis. Implementations must be safe for
// concurrent use when the Composer is shared between goroutines.
type Observer interface {
	OnAnalysis(a analyzer.Analysis)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(a analyzer.Analysis)

// OnAnalysis implements Observer
func (f ObserverFunc) OnAnalysis(a analyzer.Analysis) { f(a) }

// NopObserver ignores every notification
type NopObserver struct{}

// OnAnalysis implements Observer
func (NopObserver) OnAnalysis(analyzer.Analysis) {}

// Result describes how an image was composed
type Result struct {
	Analysis analyzer.Analysis `json:"analysis"`
	// Strategy is "crop" or the name of the letterbox strategy used
	Strategy string `json:"strategy"`
	// MaskResampled is set when the mask had to be resized to the image
	MaskResampled bool `json:"mask_resampled"`
	// MaskReplaced is set when the mask was unusable and the full-frame
	// mask was used instead
	MaskReplaced bool `json:"mask_replaced"`
}

// Composer wires the analyzer, the cropper and one letterbox strategy
type Composer struct {
	analyzer *analyzer.Analyzer
	cropper  *cropper.Cropper
	strategy background.Strategy
	observer Observer
}

// Option configures a Composer
type Option func(*Composer)

// WithAnalyzer replaces the default analyzer
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(c *Composer) { c.analyzer = a }
}

// WithCropper replaces the default cropper
func WithCropper(cr *cropper.Cropper) Option {
	return func(c *Composer) { c.cropper = cr }
}

// WithObserver registers an analysis observer
func WithObserver(o Observer) Option {
	return func(c *Composer) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a Composer that letterboxes with strategy
func New(strategy background.Strategy, opts ...Option) *Composer {
	c := &Composer{
		analyzer: analyzer.New(),
		cropper:  cropper.New(),
		strategy: strategy,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategy returns the letterbox strategy
func (c *Composer) Strategy() background.Strategy {
	return c.strategy
}

// Compose returns an image of exactly target dimensions. A nil mask means
// no segmentation was available and is treated as the full frame.
// Transparency is dropped; the output is always opaque.
// Neither img nor m is modified.
func (c *Composer) Compose(img image.Image, m *image.Gray, target types.TargetSize) (image.Image, Result, error) {
	var res Result
	if err := target.Validate(); err != nil {
		return nil, res, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, res, errors.New("empty image")
	}
	if c.strategy == nil {
		return nil, res, errors.New("no letterbox strategy configured")
	}

	img = background.Opaque(img)
	b := img.Bounds()
	matched, resampled, err := mask.Match(m, b.Dx(), b.Dy())
	if err != nil {
		matched = mask.Full(b.Dx(), b.Dy())
		res.MaskReplaced = true
	}
	res.MaskResampled = resampled

	res.Analysis = c.analyzer.Analyze(matched, target)
	c.observer.OnAnalysis(res.Analysis)

	var out image.Image
	switch res.Analysis.Decision {
	case types.Crop:
		res.Strategy = types.Crop.String()
		out, err = c.cropper.Crop(img, target)
	default:
		res.Strategy = c.strategy.Name()
		out, err = c.strategy.Compose(img, target)
	}
	if err != nil {
		return nil, res, fmt.Errorf("%s: %w", res.Strategy, err)
	}
	return out, res, nil
}
