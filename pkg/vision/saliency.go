package vision

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/widefit/pkg/mask"
)

// SaliencySegmenter marks edge-dense, high-contrast areas as subject
type SaliencySegmenter struct {
	config SaliencyConfig
}

// SaliencyConfig holds configuration for the saliency provider
type SaliencyConfig struct {
	// EdgeWeight scales the local colour gradient
	EdgeWeight float64
	// ContrastWeight scales the distance from the mean brightness
	ContrastWeight float64
	// MaxDimension bounds the working resolution; the mask is scaled back up
	MaxDimension int
	// Smoothing is the sigma of the blur applied to the saliency map
	Smoothing float64
}

// DefaultSaliencyConfig returns the standard saliency settings
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		EdgeWeight:     0.3,
		ContrastWeight: 0.7,
		MaxDimension:   256,
		Smoothing:      2,
	}
}

// NewSaliency creates a new SaliencySegmenter with default configuration
func NewSaliency() *SaliencySegmenter {
	return &SaliencySegmenter{config: DefaultSaliencyConfig()}
}

// NewSaliencyWithConfig creates a new SaliencySegmenter with custom configuration
func NewSaliencyWithConfig(config SaliencyConfig) *SaliencySegmenter {
	return &SaliencySegmenter{config: config}
}

// Name implements Segmenter
func (s *SaliencySegmenter) Name() string { return "saliency" }

// Available implements Segmenter
func (s *SaliencySegmenter) Available(context.Context) error { return nil }

// Segment implements Segmenter
func (s *SaliencySegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, unavailable(s.Name(), errEmptyImage)
	}

	work := imaging.Clone(img)
	if d := s.config.MaxDimension; d > 0 && (b.Dx() > d || b.Dy() > d) {
		work = imaging.Fit(work, d, d, imaging.Linear)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sal := s.SaliencyMap(work)
	if s.config.Smoothing > 0 {
		sal = mask.FromImage(imaging.Blur(sal, s.config.Smoothing))
	}
	binarize(sal)

	m, _, err := mask.Match(sal, b.Dx(), b.Dy())
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	return m, nil
}

// SaliencyMap scores every pixel by edge strength and by distance from the
// mean brightness, normalised to 0-255. Border pixels score 0.
func (s *SaliencySegmenter) SaliencyMap(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	raw := make([]float64, width*height)
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return out
	}

	lum := make([]float64, width*height)
	var mean float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			p := img.Pix[i : i+3 : i+3]
			l := (float64(p[0]) + float64(p[1]) + float64(p[2])) / (3 * 255)
			lum[y*width+x] = l
			mean += l
		}
	}
	mean /= float64(width * height)

	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			c := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r1, g1, b1 := float64(img.Pix[c]), float64(img.Pix[c+1]), float64(img.Pix[c+2])

			var edge float64
			for _, o := range neighbors {
				n := img.PixOffset(b.Min.X+x+o[0], b.Min.Y+y+o[1])
				dr := r1 - float64(img.Pix[n])
				dg := g1 - float64(img.Pix[n+1])
				db := b1 - float64(img.Pix[n+2])
				edge += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edge /= 8 * 255 * math.Sqrt(3)

			contrast := math.Abs(lum[y*width+x] - mean)
			raw[y*width+x] = s.config.EdgeWeight*edge + s.config.ContrastWeight*contrast
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		return out
	}
	for i, v := range raw {
		out.Pix[i] = uint8(math.Round((v - lo) / (hi - lo) * 255))
	}
	return out
}

// binarize applies the subject threshold in place
func binarize(m *image.Gray) {
	for i, v := range m.Pix {
		if mask.IsSubject(v) {
			m.Pix[i] = 0xff
		} else {
			m.Pix[i] = 0
		}
	}
}
