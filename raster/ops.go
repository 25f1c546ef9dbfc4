package raster

// ResizeFilter selects the sampling strategy for Resize.
type ResizeFilter int

const (
	// Nearest picks the index-nearest source pixel.
	Nearest ResizeFilter = iota
	// Maximum takes the per-sample maximum over the source rectangle.
	// Used when building overviews of binary or paletted data, where
	// averaging would wash salient pixels out.
	Maximum
)

// Resize scales to width x height with the given filter. Requires
// byte-aligned pixels; Maximum additionally requires 8-bit samples.
func (r *Raster) Resize(width, height uint32, filter ResizeFilter) (*Raster, error) {
	if r.bitsPerPixel%8 != 0 {
		return nil, &NotSupportedError{Reason: "pixel is not byte aligned"}
	}
	bytesPerPixel := int(r.bitsPerPixel / 8)
	buffer := make([]byte, uint64(width)*uint64(height)*uint64(bytesPerPixel))

	scaleX := float64(r.Width) / float64(width)
	scaleY := float64(r.Height) / float64(height)

	switch filter {
	case Nearest:
		for j := uint32(0); j < height; j++ {
			v := uint32(float64(j) * scaleY)
			if v >= r.Height {
				v = r.Height - 1
			}
			for i := uint32(0); i < width; i++ {
				u := uint32(float64(i) * scaleX)
				if u >= r.Width {
					u = r.Width - 1
				}
				src := (int(v)*int(r.Width) + int(u)) * bytesPerPixel
				dst := (int(j)*int(width) + int(i)) * bytesPerPixel
				copy(buffer[dst:dst+bytesPerPixel], r.Buffer[src:src+bytesPerPixel])
			}
		}
	case Maximum:
		for _, b := range r.BitsPerSample {
			if b != 8 {
				return nil, &NotSupportedError{Reason: "maximum filter requires 8-bit samples"}
			}
		}
		samples := len(r.BitsPerSample)
		for j := uint32(0); j < height; j++ {
			vStart := uint32(float64(j) * scaleY)
			vEnd := uint32(float64(j+1) * scaleY)
			if vEnd > r.Height {
				vEnd = r.Height
			}
			if vEnd == vStart {
				vEnd = vStart + 1
			}
			for i := uint32(0); i < width; i++ {
				uStart := uint32(float64(i) * scaleX)
				uEnd := uint32(float64(i+1) * scaleX)
				if uEnd > r.Width {
					uEnd = r.Width
				}
				if uEnd == uStart {
					uEnd = uStart + 1
				}
				dst := (int(j)*int(width) + int(i)) * bytesPerPixel
				for s := 0; s < samples; s++ {
					value := byte(0)
					for v := vStart; v < vEnd; v++ {
						for u := uStart; u < uEnd; u++ {
							src := (int(v)*int(r.Width) + int(u)) * bytesPerPixel
							if r.Buffer[src+s] > value {
								value = r.Buffer[src+s]
							}
						}
					}
					buffer[dst+s] = value
				}
			}
		}
	default:
		return nil, &NotSupportedError{Reason: "unknown resize filter"}
	}

	return New(width, height, buffer, r.BitsPerSample, r.Interpretation,
		r.SampleFormat, r.ExtraSamples, r.Order)
}

// Crop extracts the rectangle [minX,maxX) x [minY,maxY) into a fresh
// buffer. The rectangle is clipped to the raster; pixels outside stay
// zero. Requires byte-aligned pixels.
func (r *Raster) Crop(minX, minY, maxX, maxY uint32) (*Raster, error) {
	if r.bitsPerPixel%8 != 0 {
		return nil, &NotSupportedError{Reason: "pixel is not byte aligned"}
	}
	if maxX < minX || maxY < minY {
		return nil, &NotSupportedError{Reason: "inverted crop rectangle"}
	}
	bytesPerPixel := int(r.bitsPerPixel / 8)
	width := maxX - minX
	height := maxY - minY
	buffer := make([]byte, uint64(width)*uint64(height)*uint64(bytesPerPixel))

	for j := minY; j < maxY && j < r.Height; j++ {
		srcRow := int(j) * int(r.Width)
		dstRow := int(j-minY) * int(width)
		endX := maxX
		if endX > r.Width {
			endX = r.Width
		}
		if endX <= minX {
			continue
		}
		src := (srcRow + int(minX)) * bytesPerPixel
		dst := dstRow * bytesPerPixel
		n := int(endX-minX) * bytesPerPixel
		copy(buffer[dst:dst+n], r.Buffer[src:src+n])
	}

	return New(width, height, buffer, r.BitsPerSample, r.Interpretation,
		r.SampleFormat, r.ExtraSamples, r.Order)
}
