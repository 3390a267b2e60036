package nv12

// Package nv12 converts NV12 frames into the float32 tensors that model
// runtimes consume. NV12 is a planar YUV 4:2:0 layout: a full-resolution Y
// plane followed by an interleaved half-resolution UV plane.

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// ToRGBA converts an NV12 frame into an RGBA image using BT.601 coefficients.
// frame must be exactly width*height + width*height/2 bytes.
func ToRGBA(frame []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %vx%v", width, height)
	}
	ySize := width * height
	expected := ySize + ySize/2
	if len(frame) != expected {
		return nil, fmt.Errorf("frame data size mismatch: %v bytes, expected %v for %vx%v NV12", len(frame), expected, width, height)
	}
	yPlane := frame[:ySize]
	uvPlane := frame[ySize:]

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for row := 0; row < height; row++ {
		uvRow := (row / 2) * width
		for col := 0; col < width; col++ {
			y := float32(yPlane[row*width+col])
			uvIdx := uvRow + (col/2)*2
			u := float32(uvPlane[uvIdx]) - 128
			v := float32(uvPlane[uvIdx+1]) - 128

			// ITU-R BT.601
			r := y + 1.402*v
			g := y - 0.344136*u - 0.714136*v
			b := y + 1.772*u

			p := img.PixOffset(col, row)
			img.Pix[p+0] = clampByte(r)
			img.Pix[p+1] = clampByte(g)
			img.Pix[p+2] = clampByte(b)
			img.Pix[p+3] = 255
		}
	}
	return img, nil
}

// Tensor resizes an RGB image to the model's spatial size with bilinear
// interpolation and returns a batch-of-one float32 tensor in NCHW layout,
// pixel values scaled to [0,1]. The returned slice has 3*targetWidth*targetHeight
// elements (the batch dimension is implicit in the [1,3,H,W] shape).
func Tensor(img image.Image, targetWidth, targetHeight int) ([]float32, error) {
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("invalid model input size %vx%v", targetWidth, targetHeight)
	}
	scaled := resize.Resize(uint(targetWidth), uint(targetHeight), img, resize.Bilinear)

	planeSize := targetWidth * targetHeight
	tensor := make([]float32, 3*planeSize)
	for row := 0; row < targetHeight; row++ {
		for col := 0; col < targetWidth; col++ {
			r, g, b, _ := scaled.At(col, row).RGBA()
			// RGBA() returns 16-bit values
			i := row*targetWidth + col
			tensor[i] = float32(r>>8) / 255.0
			tensor[planeSize+i] = float32(g>>8) / 255.0
			tensor[2*planeSize+i] = float32(b>>8) / 255.0
		}
	}
	return tensor, nil
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
