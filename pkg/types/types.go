package types

import (
	"errors"
	"fmt"
)

// ErrInvalidTarget is returned when a target size is not strictly positive
var ErrInvalidTarget = errors.New("invalid target size")

// TargetSize is the output canvas in pixels; it also fixes the output aspect ratio
type TargetSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks that both dimensions are strictly positive
func (t TargetSize) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTarget, t.Width, t.Height)
	}
	return nil
}

// AspectRatio returns width / height
func (t TargetSize) AspectRatio() float64 {
	return float64(t.Width) / float64(t.Height)
}

func (t TargetSize) String() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// BoundingBox is an integer pixel region, inclusive of (X1,Y1) and exclusive of (X2,Y2)
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns X2 - X1
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns Y2 - Y1
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Within reports whether b lies entirely inside w. Touching edges count as inside.
func (b BoundingBox) Within(w CropWindow) bool {
	return b.X1 >= w.X1 && b.X2 <= w.X2 && b.Y1 >= w.Y1 && b.Y2 <= w.Y2
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// CropWindow is the centered source region whose aspect ratio matches the target
type CropWindow struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns X2 - X1
func (w CropWindow) Width() int { return w.X2 - w.X1 }

// Height returns Y2 - Y1
func (w CropWindow) Height() int { return w.Y2 - w.Y1 }

func (w CropWindow) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", w.X1, w.Y1, w.X2, w.Y2)
}

// Decision is the outcome of the composition analysis for one image
type Decision int

const (
	// Letterbox keeps the whole source and synthesizes the missing canvas area
	Letterbox Decision = iota
	// Crop cuts the centered window out of the source
	Crop
)

func (d Decision) String() string {
	switch d {
	case Crop:
		return "crop"
	case Letterbox:
		return "letterbox"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
