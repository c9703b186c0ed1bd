package embeddings

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageSize is the square input resolution of the vision encoder.
const ImageSize = 384

const (
	pixelMean = 0.5
	pixelStd  = 0.5
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// DecodeImage accepts JPEG, PNG, GIF and WebP.
func DecodeImage(b []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}
	if r := img.Bounds(); r.Dx() == 0 || r.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecodeImage, format)
	}
	return img, nil
}

// Preprocess resizes img to size x size with bilinear filtering over a white
// background and returns a [1,3,size,size] tensor scaled to [-1,1].
func Preprocess(img image.Image, size int) Tensor {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c]) / 255
				data[c*plane+i] = (v - pixelMean) / pixelStd
			}
		}
	}
	return Tensor{Shape: []int64{1, 3, int64(size), int64(size)}, Data: data}
}

func PreprocessBytes(b []byte, size int) (Tensor, error) {
	img, err := DecodeImage(b)
	if err != nil {
		return Tensor{}, err
	}
	return Preprocess(img, size), nil
}
