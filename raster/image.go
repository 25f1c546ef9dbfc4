package raster

import (
	"encoding/binary"
	"image"
	"image/color"
)

// FromImage converts a stdlib image into a raster. *image.Gray becomes
// single-sample Gray8 and *image.NRGBA becomes RGBA8 with unassociated
// alpha; every other image type becomes RGB8 and its alpha is dropped.
func FromImage(img image.Image) (*Raster, error) {
	bounds := img.Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())

	switch src := img.(type) {
	case *image.Gray:
		buffer := make([]byte, int(width)*int(height))
		for y := 0; y < int(height); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+int(width)]
			copy(buffer[y*int(width):], row)
		}
		return New(width, height, buffer, []uint16{8}, BlackIsZero,
			[]SampleFormat{SampleFormatUint}, nil, binary.LittleEndian)
	case *image.NRGBA:
		buffer := make([]byte, int(width)*int(height)*4)
		for y := 0; y < int(height); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+int(width)*4]
			copy(buffer[y*int(width)*4:], row)
		}
		return New(width, height, buffer, []uint16{8, 8, 8, 8}, RGB,
			[]SampleFormat{SampleFormatUint, SampleFormatUint, SampleFormatUint, SampleFormatUint},
			[]ExtraSamples{ExtraSamplesUnassAlpha}, binary.LittleEndian)
	default:
		buffer := make([]byte, int(width)*int(height)*3)
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				buffer[i] = byte(r >> 8)
				buffer[i+1] = byte(g >> 8)
				buffer[i+2] = byte(b >> 8)
				i += 3
			}
		}
		return New(width, height, buffer, []uint16{8, 8, 8}, RGB,
			[]SampleFormat{SampleFormatUint, SampleFormatUint, SampleFormatUint},
			nil, binary.LittleEndian)
	}
}

// Image converts the raster to a stdlib image. Supported geometries:
// Gray8, RGB8, RGBA8. WhiteIsZero grays are inverted on the way out.
func (r *Raster) Image() (image.Image, error) {
	switch {
	case len(r.BitsPerSample) == 1 && r.BitsPerSample[0] == 8:
		img := image.NewGray(image.Rect(0, 0, int(r.Width), int(r.Height)))
		for y := 0; y < int(r.Height); y++ {
			copy(img.Pix[y*img.Stride:], r.Buffer[y*int(r.Width):(y+1)*int(r.Width)])
		}
		if r.Interpretation == WhiteIsZero {
			for i := range img.Pix {
				img.Pix[i] = 0xFF - img.Pix[i]
			}
		}
		return img, nil
	case len(r.BitsPerSample) == 3 && r.BitsPerSample[0] == 8:
		img := image.NewNRGBA(image.Rect(0, 0, int(r.Width), int(r.Height)))
		for y := 0; y < int(r.Height); y++ {
			for x := 0; x < int(r.Width); x++ {
				src := (y*int(r.Width) + x) * 3
				img.SetNRGBA(x, y, color.NRGBA{
					R: r.Buffer[src],
					G: r.Buffer[src+1],
					B: r.Buffer[src+2],
					A: 0xFF,
				})
			}
		}
		return img, nil
	case len(r.BitsPerSample) == 4 && r.BitsPerSample[0] == 8:
		img := image.NewNRGBA(image.Rect(0, 0, int(r.Width), int(r.Height)))
		for y := 0; y < int(r.Height); y++ {
			copy(img.Pix[y*img.Stride:], r.Buffer[y*int(r.Width)*4:(y+1)*int(r.Width)*4])
		}
		return img, nil
	default:
		return nil, &NotSupportedError{Reason: "no image mapping for sample layout"}
	}
}
