package model

import (
	"image"

	"github.com/nfnt/resize"
)

// Preprocess converts an image to the CHW float32 layout the model expects:
// resized to a size×size square, scaled to [0,1], then normalized per channel.
func Preprocess(img image.Image, size int, mean, std []float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = (float32(r)/65535.0 - mean[0]) / std[0]
			inputData[plane+pixelIndex] = (float32(g)/65535.0 - mean[1]) / std[1]
			inputData[2*plane+pixelIndex] = (float32(b)/65535.0 - mean[2]) / std[2]
		}
	}

	return inputData
}
