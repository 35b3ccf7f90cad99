// Package vision produces subject masks for images.
//
// Several providers are available, from a vision model down to the
// trivial full-frame mask. They are ranked in configuration order and the
// first one that reports itself available is used for the whole run.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/widefit/pkg/mask"
)

// ErrSegmentationUnavailable is returned when a provider cannot produce a mask
var ErrSegmentationUnavailable = errors.New("segmentation unavailable")

// Segmenter produces a subject mask with the same dimensions as the image
type Segmenter interface {
	// Name identifies the provider in configuration and logs
	Name() string
	// Available reports whether the provider can run in this environment
	Available(ctx context.Context) error
	// Segment returns a mask the size of img, origin at (0,0)
	Segment(ctx context.Context, img image.Image) (*image.Gray, error)
}

// Resolve returns the first available provider. The full-frame provider is
// the implicit last resort, so Resolve never returns nil. The errors of
// skipped providers are returned joined for logging.
func Resolve(ctx context.Context, providers ...Segmenter) (Segmenter, error) {
	var errs []error
	for _, p := range providers {
		if p == nil {
			continue
		}
		if err := p.Available(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return p, errors.Join(errs...)
	}
	return Full{}, errors.Join(errs...)
}

// SegmentOrFull runs s and degrades to the full-frame mask when it fails.
// The returned error, when non-nil, wraps ErrSegmentationUnavailable and is
// informational: the mask is always usable.
func SegmentOrFull(ctx context.Context, s Segmenter, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if s == nil {
		return mask.Full(b.Dx(), b.Dy()), nil
	}

	m, err := s.Segment(ctx, img)
	if err == nil && m != nil {
		return m, nil
	}
	if err == nil {
		err = errors.New("provider returned no mask")
	}
	if !errors.Is(err, ErrSegmentationUnavailable) {
		err = fmt.Errorf("%w: %s: %v", ErrSegmentationUnavailable, s.Name(), err)
	}
	return mask.Full(b.Dx(), b.Dy()), err
}

func unavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSegmentationUnavailable, name, err)
}

// Full marks the whole frame as subject. It means "no segmentation
// information" and makes the composition crop.
type Full struct{}

// Name implements Segmenter
func (Full) Name() string { return "full" }

// Available implements Segmenter
func (Full) Available(context.Context) error { return nil }

// Segment implements Segmenter
func (Full) Segment(_ context.Context, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	return mask.Full(b.Dx(), b.Dy()), nil
}
