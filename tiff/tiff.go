package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Variant distinguishes classic TIFF (32-bit offsets, 16-bit tag
// counts) from BigTIFF (64-bit offsets and counts).
type Variant int

const (
	Classic Variant = iota
	Big
)

// OffsetSize is the width of file offsets and inline tag slots.
func (v Variant) OffsetSize() int {
	if v == Big {
		return 8
	}
	return 4
}

// HeaderSize is the byte length of the file header, which is also the
// offset of the first byte after it.
func (v Variant) HeaderSize() uint64 {
	if v == Big {
		return 16
	}
	return 8
}

// TagEntrySize is the on-disk size of one IFD tag slot.
func (v Variant) TagEntrySize() int {
	if v == Big {
		return 20
	}
	return 12
}

func (v Variant) String() string {
	if v == Big {
		return "BigTIFF"
	}
	return "TIFF"
}

// Tiff is a parsed container: byte order, variant, and the IFD chain in
// file order.
type Tiff struct {
	Order   binary.ByteOrder
	Variant Variant
	IFDs    []*IFD
}

// IFD0 returns the first directory.
func (t *Tiff) IFD0() (*IFD, error) {
	if len(t.IFDs) == 0 {
		return nil, ErrNoIFDs
	}
	return t.IFDs[0], nil
}

func readFull(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (v Variant) readOffset(order binary.ByteOrder, r io.Reader) (uint64, error) {
	buf := make([]byte, v.OffsetSize())
	if err := readFull(r, buf); err != nil {
		return 0, err
	}
	if v == Big {
		return order.Uint64(buf), nil
	}
	return uint64(order.Uint32(buf)), nil
}

// Parse reads a TIFF or BigTIFF container from stream. Tag payloads are
// kept as raw bytes; unknown tags and datatypes pass through untouched.
func Parse(stream io.ReadSeeker) (*Tiff, error) {
	var head [4]byte
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := readFull(stream, head[:]); err != nil {
		return nil, err
	}

	var order binary.ByteOrder
	switch {
	case head[0] == 'I' && head[1] == 'I':
		order = binary.LittleEndian
	case head[0] == 'M' && head[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, ErrBadMagicBytes
	}

	var variant Variant
	switch order.Uint16(head[2:4]) {
	case 42:
		variant = Classic
	case 43:
		variant = Big
	default:
		return nil, ErrBadMagicBytes
	}

	if variant == Big {
		// BigTIFF carries two extra header shorts: offset size (8)
		// and a reserved zero.
		var extra [4]byte
		if err := readFull(stream, extra[:]); err != nil {
			return nil, err
		}
	}

	tif := &Tiff{Order: order, Variant: variant}
	offset, err := variant.readOffset(order, stream)
	if err != nil {
		return nil, err
	}
	if offset == 0 {
		return nil, ErrNoIFDs
	}
	for offset != 0 {
		ifd, next, err := parseIFD(stream, offset, order, variant)
		if err != nil {
			return nil, fmt.Errorf("ifd %d: %w", len(tif.IFDs), err)
		}
		tif.IFDs = append(tif.IFDs, ifd)
		offset = next
	}
	return tif, nil
}

func parseIFD(stream io.ReadSeeker, offset uint64, order binary.ByteOrder, variant Variant) (*IFD, uint64, error) {
	if _, err := stream.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, 0, err
	}

	var tagCount uint64
	if variant == Big {
		var buf [8]byte
		if err := readFull(stream, buf[:]); err != nil {
			return nil, 0, err
		}
		tagCount = order.Uint64(buf[:])
	} else {
		var buf [2]byte
		if err := readFull(stream, buf[:]); err != nil {
			return nil, 0, err
		}
		tagCount = uint64(order.Uint16(buf[:]))
	}

	slot := variant.OffsetSize()
	ifd := &IFD{Tags: make([]Tag, 0, tagCount)}
	for i := uint64(0); i < tagCount; i++ {
		var head [4]byte
		if err := readFull(stream, head[:]); err != nil {
			return nil, 0, err
		}
		code := order.Uint16(head[0:2])
		datatype := Type(order.Uint16(head[2:4]))
		count, err := variant.readOffset(order, stream)
		if err != nil {
			return nil, 0, err
		}

		dataSize := int(count) * datatype.Size()
		data := make([]byte, dataSize)
		if dataSize > slot {
			// Out-of-line payload: follow the offset, then restore
			// the stream position for the next tag slot.
			dataOffset, err := variant.readOffset(order, stream)
			if err != nil {
				return nil, 0, err
			}
			pos, err := stream.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, 0, err
			}
			if _, err := stream.Seek(int64(dataOffset), io.SeekStart); err != nil {
				return nil, 0, err
			}
			if err := readFull(stream, data); err != nil {
				return nil, 0, err
			}
			if _, err := stream.Seek(pos, io.SeekStart); err != nil {
				return nil, 0, err
			}
		} else {
			// Inline payload, left-justified in the slot.
			inline := make([]byte, slot)
			if err := readFull(stream, inline); err != nil {
				return nil, 0, err
			}
			copy(data, inline)
		}

		ifd.Tags = append(ifd.Tags, Tag{
			Code:  code,
			Type:  datatype,
			Count: count,
			Data:  data,
			Order: order,
		})
	}
	if err := ifd.checkDuplicates(); err != nil {
		return nil, 0, err
	}

	next, err := variant.readOffset(order, stream)
	if err != nil {
		return nil, 0, err
	}
	return ifd, next, nil
}
