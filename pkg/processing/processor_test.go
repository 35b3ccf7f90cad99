package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/widefit/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.NRGBA{R: 30, G: 60, B: 90, A: 255})
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, "jpg", FormatFromPath("a/b.JPEG"))
	assert.Equal(t, "jpg", FormatFromPath("b.jpg"))
	assert.Equal(t, "png", FormatFromPath("b.png"))
	assert.Equal(t, "webp", FormatFromPath("b.WebP"))
	assert.Equal(t, "", FormatFromPath("b.gif"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(32, 16)

	for _, name := range []string{"out.png", "out.jpg", "out.webp"} {
		path := filepath.Join(dir, name)
		require.NoError(t, p.SaveImage(img, path, "", 90, false), name)

		loaded, err := p.LoadImage(path)
		require.NoError(t, err, name)
		assert.Equal(t, image.Rect(0, 0, 32, 16), loaded.Bounds(), name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestSaveImageUnsupportedFormatLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bmp")

	err := NewProcessor().SaveImage(createTestImage(4, 4), path, "bmp", 90, false)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadImageErrors(t *testing.T) {
	p := NewProcessor()
	_, err := p.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = p.LoadImage(bad)
	assert.Error(t, err)
}

func TestLoadImageFromURL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(8, 6)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(buf.Bytes())
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	img, err := p.LoadImageSmart(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/page")
	assert.Error(t, err)
	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
	_, err = p.LoadImageFromURL(context.Background(), "ftp://example.com/a.png")
	assert.Error(t, err)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "png", 100, 80)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 100)
	subject := types.BoundingBox{X1: 50, Y1: 20, X2: 150, Y2: 80}
	window := types.CropWindow{X1: 25, Y1: 0, X2: 175, Y2: 100}

	out := p.CreateDebugOverlay(img, subject, true, window)
	require.Equal(t, img.Bounds(), out.Bounds())

	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, out.NRGBAAt(50, 50), "subject edge")
	assert.Equal(t, color.NRGBA{255, 204, 0, 255}, out.NRGBAAt(25, 50), "window edge")
	assert.Equal(t, img.NRGBAAt(10, 50), out.NRGBAAt(10, 50), "outside untouched")
	assert.Equal(t, color.NRGBA{R: 30, G: 60, B: 90, A: 255}, img.NRGBAAt(50, 50), "input untouched")

	noSubject := p.CreateDebugOverlay(img, subject, false, window)
	assert.Equal(t, img.NRGBAAt(50, 50), noSubject.NRGBAAt(50, 50))
}
