// Package analyzer decides, from a subject mask, whether an image can be
// center-cropped to the target aspect ratio without cutting the subject.
package analyzer

import (
	"image"

	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

// Reason explains why a decision was taken
type Reason string

const (
	ReasonSubjectInside  Reason = "subject inside crop window"
	ReasonSubjectOutside Reason = "subject extends past crop window"
	ReasonNoSubject      Reason = "no subject detected"
	ReasonFullFrame      Reason = "mask covers the full frame"
	ReasonInvalidTarget  Reason = "invalid target size"
)

// Analysis is the decision plus the geometry it was derived from
type Analysis struct {
	Decision   types.Decision    `json:"decision"`
	Reason     Reason            `json:"reason"`
	Subject    types.BoundingBox `json:"subject"`
	HasSubject bool              `json:"has_subject"`
	Window     types.CropWindow  `json:"window"`
	Source     ImageInfo         `json:"source"`
	// Coverage is the fraction of subject pixels in the mask
	Coverage float64 `json:"coverage"`
}

// Config holds configuration for the analyzer
type Config struct {
	// FullFrameCrop treats a mask whose every pixel is subject as
	// "no segmentation information" and decides Crop for it.
	FullFrameCrop bool
}

// Analyzer is the mask geometry analyzer. It holds no per-image state and
// is safe for concurrent use.
type Analyzer struct {
	config Config
}

// New creates a new Analyzer with default configuration
func New() *Analyzer {
	return &Analyzer{
		config: Config{
			FullFrameCrop: true,
		},
	}
}

// NewWithConfig creates a new Analyzer with custom configuration
func NewWithConfig(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Decide returns the composition decision for mask and target
func (a *Analyzer) Decide(m *image.Gray, target types.TargetSize) types.Decision {
	return a.Analyze(m, target).Decision
}

// Analyze computes the subject bounding box and the centered crop window
// and compares them. It never fails: anything it cannot confirm resolves to
// Letterbox.
func (a *Analyzer) Analyze(m *image.Gray, target types.TargetSize) Analysis {
	if m == nil {
		return Analysis{Decision: types.Letterbox, Reason: ReasonNoSubject}
	}

	info := GetImageInfo(m)
	res := Analysis{
		Decision: types.Letterbox,
		Source:   info,
	}

	if err := target.Validate(); err != nil {
		res.Reason = ReasonInvalidTarget
		return res
	}
	res.Window = CropWindow(info.Width, info.Height, target)

	box, ok, full := SubjectBounds(m)
	if !ok {
		res.Reason = ReasonNoSubject
		return res
	}
	res.Subject = box
	res.HasSubject = true
	res.Coverage = mask.Coverage(m)

	switch {
	case full && a.config.FullFrameCrop:
		res.Decision = types.Crop
		res.Reason = ReasonFullFrame
	case box.Within(res.Window):
		res.Decision = types.Crop
		res.Reason = ReasonSubjectInside
	default:
		res.Reason = ReasonSubjectOutside
	}
	return res
}

// Decide is a convenience wrapper around a default Analyzer
func Decide(m *image.Gray, target types.TargetSize) types.Decision {
	return New().Decide(m, target)
}

// CropWindow returns the largest rectangle with the target's aspect ratio
// that fits centered inside a srcW x srcH image.
//
// The orientation test is exact integer arithmetic. The constrained side is
// rounded half away from zero and clamped to [1, source side]; the offset
// uses floor division. Cropping uses this same function, so the decision and
// the executed crop always agree.
func CropWindow(srcW, srcH int, target types.TargetSize) types.CropWindow {
	if srcW <= 0 || srcH <= 0 || target.Validate() != nil {
		return types.CropWindow{}
	}

	cropW, cropH := srcW, srcH
	wide, tall := srcW*target.Height, srcH*target.Width
	switch {
	case wide > tall:
		cropW = clampInt(roundDiv(srcH*target.Width, target.Height), 1, srcW)
	case wide < tall:
		cropH = clampInt(roundDiv(srcW*target.Height, target.Width), 1, srcH)
	}

	x1 := (srcW - cropW) / 2
	y1 := (srcH - cropH) / 2
	return types.CropWindow{X1: x1, Y1: y1, X2: x1 + cropW, Y2: y1 + cropH}
}

// SubjectBounds returns the minimal inclusive-exclusive box covering every
// subject pixel of m, in coordinates relative to m.Bounds().Min. ok is false
// when there is no subject pixel; full is true when every pixel is subject.
func SubjectBounds(m *image.Gray) (box types.BoundingBox, ok bool, full bool) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return types.BoundingBox{}, false, false
	}

	minX, minY, maxX, maxY := w, h, -1, -1
	count := 0
	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for x, v := range row {
			if !mask.IsSubject(v) {
				continue
			}
			count++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if count == 0 {
		return types.BoundingBox{}, false, false
	}
	box = types.BoundingBox{X1: minX, Y1: minY, X2: maxX + 1, Y2: maxY + 1}
	return box, true, count == w*h
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// GetImageInfo returns basic information about an image
func GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// roundDiv returns a/b rounded half away from zero for non-negative a and positive b
func roundDiv(a, b int) int {
	return (2*a + b) / (2 * b)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
