package composer

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/widefit/pkg/analyzer"
	"github.com/menta2k/widefit/pkg/background"
	"github.com/menta2k/widefit/pkg/cropper"
	"github.com/menta2k/widefit/pkg/mask"
	"github.com/menta2k/widefit/pkg/types"
)

var ultrawide = types.TargetSize{Width: 3440, Height: 1440}

func createTestImage(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{A: 255})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

type recorder struct {
	mu       sync.Mutex
	analyses []analyzer.Analysis
}

func (r *recorder) OnAnalysis(a analyzer.Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, a)
}

func newComposer(t *testing.T, name string, opts ...Option) *Composer {
	t.Helper()
	s, err := background.ByName(name, background.DefaultConfig())
	require.NoError(t, err)
	return New(s, opts...)
}

func TestComposeScenarioCrops(t *testing.T) {
	img := createTestImage(1920, 1080)
	m := mask.FromBox(1920, 1080, types.BoundingBox{X1: 400, Y1: 200, X2: 1500, Y2: 900})
	rec := &recorder{}

	out, res, err := newComposer(t, "blur", WithObserver(rec)).Compose(img, m, ultrawide)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 3440, 1440), out.Bounds())
	assert.Equal(t, types.Crop, res.Analysis.Decision)
	assert.Equal(t, "crop", res.Strategy)
	assert.Equal(t, types.CropWindow{X1: 0, Y1: 138, X2: 1920, Y2: 942}, res.Analysis.Window)
	assert.False(t, res.MaskResampled)
	require.Len(t, rec.analyses, 1)
	assert.Equal(t, res.Analysis, rec.analyses[0])
}

func TestComposeLetterboxesWhenSubjectIsCut(t *testing.T) {
	img := createTestImage(200, 300)
	m := mask.FromBox(200, 300, types.BoundingBox{X1: 50, Y1: 10, X2: 150, Y2: 290})
	target := types.TargetSize{Width: 172, Height: 72}

	for _, name := range background.Names() {
		out, res, err := newComposer(t, name).Compose(img, m, target)
		require.NoError(t, err, name)
		assert.Equal(t, types.Letterbox, res.Analysis.Decision, name)
		assert.Equal(t, name, res.Strategy)
		assert.Equal(t, image.Rect(0, 0, 172, 72), out.Bounds(), name)
	}
}

func TestComposeEmptyMaskLetterboxes(t *testing.T) {
	img := createTestImage(100, 100)
	_, res, err := newComposer(t, "gradient").Compose(img, mask.Empty(100, 100), types.TargetSize{Width: 40, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, types.Letterbox, res.Analysis.Decision)
	assert.Equal(t, analyzer.ReasonNoSubject, res.Analysis.Reason)
}

func TestComposeNilMaskIsFullFrame(t *testing.T) {
	img := createTestImage(120, 80)
	out, res, err := newComposer(t, "gradient").Compose(img, nil, types.TargetSize{Width: 43, Height: 18})
	require.NoError(t, err)
	assert.True(t, res.MaskReplaced)
	assert.Equal(t, types.Crop, res.Analysis.Decision)
	assert.Equal(t, analyzer.ReasonFullFrame, res.Analysis.Reason)
	assert.Equal(t, image.Rect(0, 0, 43, 18), out.Bounds())
}

func TestComposeResamplesMismatchedMask(t *testing.T) {
	img := createTestImage(400, 200)
	// subject well inside the centered square, described at quarter resolution
	m := mask.FromBox(100, 50, types.BoundingBox{X1: 30, Y1: 5, X2: 70, Y2: 45})

	_, res, err := newComposer(t, "blur").Compose(img, m, types.TargetSize{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.True(t, res.MaskResampled)
	assert.False(t, res.MaskReplaced)
	assert.Equal(t, 400, res.Analysis.Source.Width)
	assert.Equal(t, types.Crop, res.Analysis.Decision)
}

func TestComposeKeepsThinSubjectOfLargerMask(t *testing.T) {
	img := createTestImage(100, 100)
	m := mask.FromBox(400, 400, types.BoundingBox{X1: 201, Y1: 0, X2: 202, Y2: 400})

	_, res, err := newComposer(t, "gradient").Compose(img, m, ultrawide)
	require.NoError(t, err)
	assert.True(t, res.MaskResampled)
	assert.True(t, res.Analysis.HasSubject)
	assert.Equal(t, types.BoundingBox{X1: 50, Y1: 0, X2: 51, Y2: 100}, res.Analysis.Subject)
	assert.Equal(t, analyzer.ReasonSubjectOutside, res.Analysis.Reason)
	assert.Equal(t, types.Letterbox, res.Analysis.Decision)
}

func TestComposeOutputIsOpaque(t *testing.T) {
	img := imaging.New(20, 20, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	target := types.TargetSize{Width: 60, Height: 20}

	for _, name := range background.Names() {
		out, res, err := newComposer(t, name).Compose(img, mask.Empty(20, 20), target)
		require.NoError(t, err, name)
		require.Equal(t, name, res.Strategy)
		assertOpaque(t, out, name)

		c := color.NRGBAModel.Convert(out.At(30, 10)).(color.NRGBA)
		assert.InDelta(t, 200, int(c.R), 2, name)
		assert.InDelta(t, 100, int(c.G), 2, name)
	}

	out, res, err := newComposer(t, "blur").Compose(img, mask.Full(20, 20), target)
	require.NoError(t, err)
	require.Equal(t, types.Crop, res.Analysis.Decision)
	assertOpaque(t, out, "crop")
}

func assertOpaque(t *testing.T, img image.Image, name string) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a != 0xffff {
				t.Fatalf("%s: pixel (%d,%d) has alpha %d", name, x, y, a)
			}
		}
	}
}

func TestComposeIdentityCrop(t *testing.T) {
	img := createTestImage(64, 48)
	c := newComposer(t, "blur", WithCropper(cropper.NewWithConfig(cropper.CropConfig{Filter: imaging.NearestNeighbor})))

	out, res, err := c.Compose(img, mask.Full(64, 48), types.TargetSize{Width: 64, Height: 48})
	require.NoError(t, err)
	assert.Equal(t, types.Crop, res.Analysis.Decision)
	assert.Equal(t, img.Pix, out.(*image.NRGBA).Pix)
}

func TestComposeWithAnalyzerOption(t *testing.T) {
	img := createTestImage(50, 50)
	c := newComposer(t, "gradient", WithAnalyzer(analyzer.NewWithConfig(analyzer.Config{FullFrameCrop: false})))

	_, res, err := c.Compose(img, mask.Full(50, 50), types.TargetSize{Width: 100, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, types.Letterbox, res.Analysis.Decision)
}

func TestComposeDoesNotModifyInputs(t *testing.T) {
	img := createTestImage(80, 120)
	m := mask.FromBox(80, 120, types.BoundingBox{X1: 0, Y1: 0, X2: 80, Y2: 120})
	m.Pix[0] = 0
	imgBefore := append([]uint8(nil), img.Pix...)
	maskBefore := append([]uint8(nil), m.Pix...)

	for _, name := range background.Names() {
		_, _, err := newComposer(t, name).Compose(img, m, types.TargetSize{Width: 90, Height: 40})
		require.NoError(t, err)
	}
	assert.Equal(t, imgBefore, img.Pix)
	assert.Equal(t, maskBefore, m.Pix)
}

func TestComposeDeterministic(t *testing.T) {
	img := createTestImage(90, 160)
	m := mask.FromBox(90, 160, types.BoundingBox{X1: 10, Y1: 10, X2: 80, Y2: 150})
	c := newComposer(t, "gradient")

	first, _, err := c.Compose(img, m, types.TargetSize{Width: 160, Height: 90})
	require.NoError(t, err)
	second, _, err := c.Compose(img, m, types.TargetSize{Width: 160, Height: 90})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComposeErrors(t *testing.T) {
	c := newComposer(t, "blur")

	_, _, err := c.Compose(createTestImage(10, 10), nil, types.TargetSize{Width: -1, Height: 10})
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	_, _, err = c.Compose(image.NewNRGBA(image.Rect(0, 0, 0, 0)), nil, types.TargetSize{Width: 10, Height: 10})
	assert.Error(t, err)

	_, _, err = New(nil).Compose(createTestImage(10, 10), nil, types.TargetSize{Width: 10, Height: 10})
	assert.Error(t, err)
}

func TestObserverFunc(t *testing.T) {
	var got []types.Decision
	c := newComposer(t, "blur", WithObserver(ObserverFunc(func(a analyzer.Analysis) {
		got = append(got, a.Decision)
	})))

	_, _, err := c.Compose(createTestImage(30, 30), mask.Empty(30, 30), types.TargetSize{Width: 60, Height: 30})
	require.NoError(t, err)
	assert.Equal(t, []types.Decision{types.Letterbox}, got)
}

func BenchmarkCompose(b *testing.B) {
	img := createTestImage(1920, 1080)
	m := mask.FromBox(1920, 1080, types.BoundingBox{X1: 100, Y1: 100, X2: 1800, Y2: 1000})
	s, _ := background.ByName("gradient", background.DefaultConfig())
	c := New(s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Compose(img, m, ultrawide)
	}
}
