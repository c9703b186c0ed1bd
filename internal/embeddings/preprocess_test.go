package embeddings

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocess_ShapeAndNormalization(t *testing.T) {
	tensor := Preprocess(solidImage(40, 20, color.RGBA{R: 255, A: 255}), 16)

	require.Equal(t, []int64{1, 3, 16, 16}, tensor.Shape)
	require.Len(t, tensor.Data, 3*16*16)

	plane := 16 * 16
	for _, i := range []int{0, plane / 2, plane - 1} {
		assert.InDelta(t, 1.0, tensor.Data[i], 0.02, "red")
		assert.InDelta(t, -1.0, tensor.Data[plane+i], 0.02, "green")
		assert.InDelta(t, -1.0, tensor.Data[2*plane+i], 0.02, "blue")
	}
}

func TestPreprocess_TransparentBecomesWhite(t *testing.T) {
	tensor := Preprocess(solidImage(8, 8, color.RGBA{}), 4)
	for _, v := range tensor.Data {
		assert.InDelta(t, 1.0, v, 0.02)
	}
}

func TestPreprocessBytes_Deterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	b := encodePNG(t, img)

	a, err := PreprocessBytes(b, ImageSize)
	require.NoError(t, err)
	c, err := PreprocessBytes(b, ImageSize)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestPreprocessBytes_GIF(t *testing.T) {
	var buf bytes.Buffer
	blue := image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.RGBA{B: 255, A: 255}})
	require.NoError(t, gif.Encode(&buf, blue, nil))

	tensor, err := PreprocessBytes(buf.Bytes(), 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tensor.Data[2*64], 0.05)
}

func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage([]byte("<html>not an image</html>"))
	assert.True(t, errors.Is(err, ErrDecodeImage))
}

func TestChunk_RuneSafe(t *testing.T) {
	chunks := Chunk("ñañaña", 4)
	assert.Equal(t, []string{"ñaña", "ña"}, chunks)
	assert.Nil(t, Chunk("", 4))
}
