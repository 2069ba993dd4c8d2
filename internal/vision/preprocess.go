package vision

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// ErrDecode marks files that could not be decoded as an image.
var ErrDecode = errors.New("decode image")

// Tensor is a dense float32 array in NHWC layout.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewImageTensor allocates a zeroed [1, size, size, 3] tensor.
func NewImageTensor(size int) Tensor {
	return Tensor{
		Shape: []int64{1, int64(size), int64(size), 3},
		Data:  make([]float32, size*size*3),
	}
}

// Preprocess loads the image at path and returns a [1, size, size, 3] RGB
// tensor scaled to [0,1].
func Preprocess(path string, size int) (Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tensor{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ImageToTensor(img, size), nil
}

// ImageToTensor resizes img to size x size with bilinear sampling and writes
// the RGB channels in NHWC order. Alpha is dropped.
func ImageToTensor(img image.Image, size int) Tensor {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := NewImageTensor(size)
	for y := 0; y < size; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			idx := (y*size + x) * 3
			t.Data[idx+0] = float32(px[0]) / 255.0
			t.Data[idx+1] = float32(px[1]) / 255.0
			t.Data[idx+2] = float32(px[2]) / 255.0
		}
	}
	return t
}
