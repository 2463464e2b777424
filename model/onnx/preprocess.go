package onnx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Preprocess decodes an image payload, resizes it to size x size, and
// returns CHW float32 pixel data scaled to [0, 1], matching the tensor
// layout the classifier feeds the model.
func Preprocess(payload []byte, size int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	pixels := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*size + x
			pixels[idx] = float32(r>>8) / 255
			pixels[plane+idx] = float32(g>>8) / 255
			pixels[2*plane+idx] = float32(b>>8) / 255
		}
	}
	return pixels, nil
}
