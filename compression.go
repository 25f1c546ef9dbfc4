package cloudtiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// Compression is the TIFF compression tag discriminant.
type Compression uint16

const (
	CompressionNone         Compression = 1
	CompressionLzw          Compression = 5
	CompressionDeflateAdobe Compression = 8
	CompressionDeflate      Compression = 32946
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "uncompressed"
	case CompressionLzw:
		return "lzw"
	case CompressionDeflateAdobe:
		return "deflate (adobe)"
	case CompressionDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("compression(%d)", uint16(c))
	}
}

// Decode decompresses one tile payload.
func (c Compression) Decode(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case CompressionLzw:
		// TIFF-style LZW: MSB-first code packing with the early
		// code-width change; x/image carries the variant stdlib lzw
		// does not implement.
		r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		return out, nil
	case CompressionDeflate, CompressionDeflateAdobe:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		return out, nil
	default:
		return nil, &CompressionNotSupportedError{Kind: c}
	}
}

// Encode compresses one tile payload. The write path supports
// uncompressed and deflate; LZW is decode-only.
func (c Compression) Encode(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case CompressionDeflate, CompressionDeflateAdobe:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, &CompressionNotSupportedError{Kind: c}
	}
}

// Predictor is the TIFF predictor tag discriminant, applied after
// decompression and before rasterization.
type Predictor uint16

const (
	PredictorNone          Predictor = 1
	PredictorHorizontal    Predictor = 2
	PredictorFloatingPoint Predictor = 3
)

// Decode undoes the predictor in place. Horizontal delta-decodes each
// scanline: every byte whose column is at or past the sample stride
// accumulates the byte one pixel to its left. Only 8-bit samples are
// supported.
func (p Predictor) Decode(buf []byte, width, bitDepth, samplesPerPixel int) error {
	switch p {
	case PredictorNone:
		return nil
	case PredictorHorizontal:
		if bitDepth != 8 {
			return &PredictorNotSupportedError{Kind: p}
		}
		rowBytes := width * samplesPerPixel * bitDepth / 8
		if rowBytes == 0 {
			return nil
		}
		for i := range buf {
			if i%rowBytes < samplesPerPixel {
				continue
			}
			buf[i] += buf[i-samplesPerPixel]
		}
		return nil
	default:
		return &PredictorNotSupportedError{Kind: p}
	}
}

// Encode applies the predictor in place (the differencing direction,
// used when writing).
func (p Predictor) Encode(buf []byte, width, bitDepth, samplesPerPixel int) error {
	switch p {
	case PredictorNone:
		return nil
	case PredictorHorizontal:
		if bitDepth != 8 {
			return &PredictorNotSupportedError{Kind: p}
		}
		rowBytes := width * samplesPerPixel * bitDepth / 8
		if rowBytes == 0 {
			return nil
		}
		for i := len(buf) - 1; i >= 0; i-- {
			if i%rowBytes < samplesPerPixel {
				continue
			}
			buf[i] -= buf[i-samplesPerPixel]
		}
		return nil
	default:
		return &PredictorNotSupportedError{Kind: p}
	}
}
