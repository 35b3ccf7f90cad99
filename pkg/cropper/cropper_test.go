package cropper

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/widefit/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a pattern with some high-contrast areas
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				// Central bright region (subject)
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 64, 255})
			}
		}
	}

	return img
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, imaging.Lanczos.Support, c.config.Filter.Support)
}

func TestNewWithConfig(t *testing.T) {
	c := NewWithConfig(CropConfig{Filter: imaging.Box})
	assert.Equal(t, imaging.Box.Support, c.config.Filter.Support)
}

func TestLookupPreset(t *testing.T) {
	p, ok := LookupPreset("uwqhd")
	require.True(t, ok)
	assert.Equal(t, types.TargetSize{Width: 3440, Height: 1440}, p.Target)

	_, ok = LookupPreset("nope")
	assert.False(t, ok)
	assert.NotEmpty(t, CommonPresets())
}

func TestCropExactDimensions(t *testing.T) {
	c := New()
	sources := [][2]int{{1, 1}, {2, 7}, {400, 300}, {300, 400}, {97, 13}}
	targets := []types.TargetSize{{Width: 1, Height: 1}, {Width: 344, Height: 144}, {Width: 16, Height: 90}, {Width: 5, Height: 3}}

	for _, s := range sources {
		img := createTestImage(s[0], s[1])
		for _, target := range targets {
			out, err := c.Crop(img, target)
			require.NoError(t, err)
			assert.Equal(t, target.Width, out.Bounds().Dx(), "source %v target %v", s, target)
			assert.Equal(t, target.Height, out.Bounds().Dy(), "source %v target %v", s, target)
		}
	}
}

func TestCropIdentity(t *testing.T) {
	img := createTestImage(64, 27)
	out, err := New().Crop(img, types.TargetSize{Width: 64, Height: 27})
	require.NoError(t, err)

	for y := 0; y < 27; y++ {
		for x := 0; x < 64; x++ {
			r1, g1, b1, a1 := img.At(x, y).RGBA()
			r2, g2, b2, a2 := out.At(x, y).RGBA()
			require.Equal(t, [4]uint32{r1, g1, b1, a1}, [4]uint32{r2, g2, b2, a2}, "pixel %d,%d", x, y)
		}
	}
}

func TestCropTakesCenteredWindow(t *testing.T) {
	// left third red, middle third green, right third blue
	img := image.NewNRGBA(image.Rect(0, 0, 300, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			switch {
			case x < 100:
				c.R = 255
			case x < 200:
				c.G = 255
			default:
				c.B = 255
			}
			img.SetNRGBA(x, y, c)
		}
	}

	// 1:1 window of a 300x100 image is x in [100,200)
	out, err := NewWithConfig(CropConfig{Filter: imaging.NearestNeighbor}).Crop(img, types.TargetSize{Width: 10, Height: 10})
	require.NoError(t, err)
	for x := 0; x < 10; x++ {
		assert.Equal(t, color.NRGBA{0, 255, 0, 255}, out.NRGBAAt(x, 5))
	}
}

func TestCropOffsetBounds(t *testing.T) {
	base := createTestImage(200, 100).(*image.RGBA)
	sub := base.SubImage(image.Rect(50, 20, 150, 70))

	out, err := New().Crop(sub, types.TargetSize{Width: 100, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
	assert.Equal(t, base.RGBAAt(50, 20).R, out.NRGBAAt(0, 0).R)
}

func TestCropErrors(t *testing.T) {
	_, err := New().Crop(createTestImage(10, 10), types.TargetSize{Width: 0, Height: 5})
	assert.Error(t, err)

	_, err = New().Crop(image.NewRGBA(image.Rect(0, 0, 0, 0)), types.TargetSize{Width: 5, Height: 5})
	assert.Error(t, err)
}

func BenchmarkCrop(b *testing.B) {
	c := New()
	img := createTestImage(1920, 1080)
	target := types.TargetSize{Width: 3440, Height: 1440}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Crop(img, target)
	}
}
