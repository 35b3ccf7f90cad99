package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

var (
	errEmptyImage   = errors.New("empty image")
	errNoFaces      = errors.New("no faces detected")
	errNoClassifier = errors.New("face cascade not loaded")
)

// FaceConfig holds configuration for the face provider
type FaceConfig struct {
	// CascadePath points to a pigo "facefinder" cascade file
	CascadePath string
	// MinQuality drops detections scoring below it
	MinQuality float32
	// MinSizePct is the smallest face searched, in percent of the shorter side
	MinSizePct   int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	// Padding grows each face box by this fraction of the face size on the
	// sides and top; the bottom grows by BodyFactor to keep shoulders and torso
	Padding    float64
	BodyFactor float64
	// MaxDimension bounds the working resolution
	MaxDimension int
}

// DefaultFaceConfig returns the standard face detection settings
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		MinQuality:   10,
		MinSizePct:   1,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		Padding:      0.5,
		BodyFactor:   2.5,
		MaxDimension: 1024,
	}
}

// FaceSegmenter marks detected faces, padded towards the body, as subject
type FaceSegmenter struct {
	config     FaceConfig
	classifier *pigo.Pigo
	loadErr    error
}

// NewFaces loads the cascade named in config. A load failure is reported
// by Available, not here.
func NewFaces(config FaceConfig) *FaceSegmenter {
	s := &FaceSegmenter{config: config}
	if config.CascadePath == "" {
		s.loadErr = errNoClassifier
		return s
	}
	data, err := os.ReadFile(config.CascadePath)
	if err != nil {
		s.loadErr = fmt.Errorf("reading cascade: %w", err)
		return s
	}
	s.classifier, s.loadErr = unpackCascade(data)
	return s
}

// NewFacesWithClassifier uses an already unpacked cascade
func NewFacesWithClassifier(config FaceConfig, classifier *pigo.Pigo) *FaceSegmenter {
	s := &FaceSegmenter{config: config, classifier: classifier}
	if classifier == nil {
		s.loadErr = errNoClassifier
	}
	return s
}

func unpackCascade(data []byte) (classifier *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			classifier, err = nil, fmt.Errorf("unpacking cascade: %v", r)
		}
	}()
	classifier, err = pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}
	return classifier, nil
}

// Name implements Segmenter
func (s *FaceSegmenter) Name() string { return "faces" }

// Available implements Segmenter
func (s *FaceSegmenter) Available(context.Context) error {
	return s.loadErr
}

// Segment implements Segmenter
func (s *FaceSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	if s.loadErr != nil {
		return nil, unavailable(s.Name(), s.loadErr)
	}
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faces := s.detect(work)
	if len(faces) == 0 {
		return nil, unavailable(s.Name(), errNoFaces)
	}

	m := mask.Empty(b.Dx(), b.Dy())
	for _, f := range faces {
		box := s.subjectBox(f, scale, b.Dx(), b.Dy())
		paintBox(m, box)
	}
	return m, nil
}

// detect runs the cascade and keeps clustered detections above MinQuality
func (s *FaceSegmenter) detect(img *image.NRGBA) []pigo.Detection {
	cols, rows := img.Bounds().Dx(), img.Bounds().Dy()
	minSide := cols
	if rows < minSide {
		minSide = rows
	}
	minSize := minSide * s.config.MinSizePct / 100
	if minSize < 20 {
		minSize = 20
	}

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     minSide,
		ShiftFactor: s.config.ShiftFactor,
		ScaleFactor: s.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := s.classifier.RunCascade(params, 0.0)
	dets = s.classifier.ClusterDetections(dets, s.config.IoUThreshold)

	kept := dets[:0]
	for _, d := range dets {
		if d.Q >= s.config.MinQuality {
			kept = append(kept, d)
		}
	}
	return kept
}

// subjectBox converts a detection on the working image to a padded box on
// the original image
func (s *FaceSegmenter) subjectBox(d pigo.Detection, scale float64, width, height int) types.BoundingBox {
	size := float64(d.Scale) * scale
	cx := float64(d.Col) * scale
	cy := float64(d.Row) * scale
	pad := size * s.config.Padding

	box := types.BoundingBox{
		X1: int(cx - size/2 - pad),
		Y1: int(cy - size/2 - pad),
		X2: int(cx + size/2 + pad),
		Y2: int(cy + size/2 + size*s.config.BodyFactor),
	}
	return clipBox(box, width, height)
}

func clipBox(b types.BoundingBox, width, height int) types.BoundingBox {
	r := image.Rect(b.X1, b.Y1, b.X2, b.Y2).Intersect(image.Rect(0, 0, width, height))
	return types.BoundingBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// paintBox sets box to white in m
func paintBox(m *image.Gray, box types.BoundingBox) {
	for y := box.Y1; y < box.Y2; y++ {
		row := m.Pix[y*m.Stride+box.X1 : y*m.Stride+box.X2]
		for i := range row {
			row[i] = 0xff
		}
	}
}
