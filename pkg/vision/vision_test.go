package vision

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/widefit/pkg/detection"
	"github.com/menta2k/widefit/pkg/llamacpp"
	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

// createTestImage creates a flat background with a high contrast square in the center-left
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/4 && x < width/2 && y > height/4 && y < 3*height/4 {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.NRGBA{20, 30, 40, 255})
			}
		}
	}
	return img
}

type stubSegmenter struct {
	name     string
	availErr error
	mask     *image.Gray
	err      error
}

func (s stubSegmenter) Name() string                        { return s.name }
func (s stubSegmenter) Available(ctx context.Context) error { return s.availErr }
func (s stubSegmenter) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	return s.mask, s.err
}

func TestResolvePicksFirstAvailable(t *testing.T) {
	down := stubSegmenter{name: "model", availErr: errors.New("connection refused")}
	up := stubSegmenter{name: "saliency"}

	got, err := Resolve(context.Background(), down, nil, up, Full{})
	assert.Equal(t, "saliency", got.Name())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model: connection refused")
}

func TestResolveFallsBackToFull(t *testing.T) {
	got, err := Resolve(context.Background(), stubSegmenter{name: "x", availErr: errors.New("no")})
	assert.Equal(t, "full", got.Name())
	assert.Error(t, err)

	got, err = Resolve(context.Background())
	assert.Equal(t, "full", got.Name())
	assert.NoError(t, err)
}

func TestSegmentOrFull(t *testing.T) {
	img := createTestImage(20, 10)
	ctx := context.Background()

	m, err := SegmentOrFull(ctx, stubSegmenter{name: "ok", mask: mask.Empty(20, 10)}, img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mask.Coverage(m))

	m, err = SegmentOrFull(ctx, stubSegmenter{name: "broken", err: errors.New("boom")}, img)
	assert.ErrorIs(t, err, ErrSegmentationUnavailable)
	assert.Equal(t, 1.0, mask.Coverage(m))

	m, err = SegmentOrFull(ctx, stubSegmenter{name: "nil"}, img)
	assert.ErrorIs(t, err, ErrSegmentationUnavailable)
	assert.Equal(t, image.Rect(0, 0, 20, 10), m.Bounds())

	m, err = SegmentOrFull(ctx, nil, img)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, mask.Coverage(m))
}

func TestFullSegmenter(t *testing.T) {
	img := createTestImage(30, 20).SubImage(image.Rect(5, 5, 25, 15))
	m, err := Full{}.Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if m.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Errorf("Expected 20x10 mask at origin, got %v", m.Bounds())
	}
}

func TestSaliencyFindsTheSquare(t *testing.T) {
	img := createTestImage(200, 100)
	s := NewSaliency()

	m, err := s.Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if m.Bounds() != img.Bounds() {
		t.Fatalf("Expected mask bounds %v, got %v", img.Bounds(), m.Bounds())
	}

	// the square sits at x 50..100, y 25..75
	if !mask.IsSubject(m.GrayAt(75, 50).Y) {
		t.Error("Expected the square to be marked as subject")
	}
	if mask.IsSubject(m.GrayAt(170, 50).Y) {
		t.Error("Expected the flat background on the right to be excluded")
	}
}

func TestSaliencyUniformImageHasNoSubject(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}

	m, err := NewSaliency().Segment(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mask.Coverage(m))
}

func TestSaliencyDownscalesLargeImages(t *testing.T) {
	cfg := DefaultSaliencyConfig()
	cfg.MaxDimension = 64
	img := createTestImage(640, 320)

	m, err := NewSaliencyWithConfig(cfg).Segment(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), m.Bounds())
	assert.True(t, mask.IsSubject(m.GrayAt(240, 160).Y))
}

func TestSaliencyMapRange(t *testing.T) {
	sal := NewSaliency().SaliencyMap(createTestImage(40, 40))
	var lo, hi uint8 = 255, 0
	for _, v := range sal.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	assert.Equal(t, uint8(0), lo)
	assert.Equal(t, uint8(255), hi)
}

func TestSaliencyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSaliency().Segment(ctx, createTestImage(20, 20))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFacesWithoutCascade(t *testing.T) {
	s := NewFaces(DefaultFaceConfig())
	assert.Error(t, s.Available(context.Background()))

	cfg := DefaultFaceConfig()
	cfg.CascadePath = "/nonexistent/facefinder"
	s = NewFaces(cfg)
	assert.Error(t, s.Available(context.Background()))

	_, err := s.Segment(context.Background(), createTestImage(10, 10))
	assert.ErrorIs(t, err, ErrSegmentationUnavailable)

	assert.Error(t, NewFacesWithClassifier(cfg, nil).Available(context.Background()))
}

func TestFacesAreUnavailableInResolve(t *testing.T) {
	got, _ := Resolve(context.Background(), NewFaces(DefaultFaceConfig()), NewSaliency())
	assert.Equal(t, "saliency", got.Name())
}

func TestClipBox(t *testing.T) {
	got := clipBox(types.BoundingBox{X1: -5, Y1: 3, X2: 50, Y2: 200}, 40, 100)
	assert.Equal(t, types.BoundingBox{X1: 0, Y1: 3, X2: 40, Y2: 100}, got)
}

func TestSmartcropSegmenter(t *testing.T) {
	img := createTestImage(300, 100)
	s := NewSmartcrop(DefaultSmartcropConfig())
	assert.NoError(t, s.Available(context.Background()))

	m, err := s.Segment(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), m.Bounds())

	cov := mask.Coverage(m)
	assert.Greater(t, cov, 0.0)
	assert.LessOrEqual(t, cov, 100.0/300.0+0.01, "square region on a 3:1 image")
}

func newModelServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llamacpp.ChatCompletionResponse{
			Choices: []llamacpp.Choice{{Message: llamacpp.Message{Role: "assistant", Content: answer}}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newModelSegmenter(t *testing.T, answer string) *ModelSegmenter {
	t.Helper()
	c, err := llamacpp.NewClient(newModelServer(t, answer).URL)
	require.NoError(t, err)
	return NewModel(detection.NewDetector(c), ModelConfig{Model: "test"})
}

func TestModelSegmenterBox(t *testing.T) {
	s := newModelSegmenter(t, `{"primary":{"label":"person","confidence":0.9,"box":{"x":0.25,"y":0.5,"w":0.5,"h":0.25}}}`)
	require.NoError(t, s.Available(context.Background()))

	m, err := s.Segment(context.Background(), createTestImage(200, 100))
	require.NoError(t, err)
	assert.True(t, mask.IsSubject(m.GrayAt(50, 50).Y))
	assert.True(t, mask.IsSubject(m.GrayAt(149, 74).Y))
	assert.False(t, mask.IsSubject(m.GrayAt(150, 50).Y))
	assert.False(t, mask.IsSubject(m.GrayAt(100, 49).Y))
}

func TestModelSegmenterNoSubject(t *testing.T) {
	s := newModelSegmenter(t, `{"primary":{"label":"none","confidence":0,"box":{"x":0,"y":0,"w":0,"h":0}}}`)
	m, err := s.Segment(context.Background(), createTestImage(20, 20))
	require.NoError(t, err)
	assert.Equal(t, 0.0, mask.Coverage(m))
}

func TestModelSegmenterGarbage(t *testing.T) {
	s := newModelSegmenter(t, "I think it is a cat")
	_, err := s.Segment(context.Background(), createTestImage(20, 20))
	assert.ErrorIs(t, err, ErrSegmentationUnavailable)
}

func TestModelSegmenterUnavailable(t *testing.T) {
	c, err := llamacpp.NewClient("http://127.0.0.1:1")
	require.NoError(t, err)
	s := NewModel(detection.NewDetector(c), ModelConfig{Model: "test"})
	assert.Error(t, s.Available(context.Background()))

	assert.Error(t, NewModel(detection.NewDetector(c), ModelConfig{}).Available(context.Background()))
}

func BenchmarkSaliency(b *testing.B) {
	img := createTestImage(1920, 1080)
	s := NewSaliency()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Segment(context.Background(), img)
	}
}
