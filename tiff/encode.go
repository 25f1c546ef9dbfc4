package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Layout records where every tag's value landed during Encode, so
// callers can seek back and overwrite placeholder values (the COG
// encoder patches TileOffsets and TileByteCounts after writing tile
// payloads).
type Layout struct {
	// IFDOffsets[i] is the file offset of IFD i's tag-count field.
	IFDOffsets []uint64
	// End is the file offset of the first byte after the last IFD's
	// extra region, where payload data may begin.
	End uint64

	slots []map[uint16]uint64
}

// TagValueOffset returns the file offset of the value bytes of the
// given tag (inline slot or out-of-line payload position).
func (l *Layout) TagValueOffset(ifdIndex int, code uint16) (uint64, bool) {
	if ifdIndex < 0 || ifdIndex >= len(l.slots) {
		return 0, false
	}
	off, ok := l.slots[ifdIndex][code]
	return off, ok
}

// Encode writes the container: header, then each IFD's tag table
// immediately followed by its out-of-line payloads. Tags are emitted in
// ascending code order. The next-IFD pointer of the last IFD is zero.
// Tile payload bodies are the caller's business and belong after
// Layout.End, so directory tables and image data never interleave.
func (t *Tiff) Encode(w io.Writer) (*Layout, error) {
	if len(t.IFDs) == 0 {
		return nil, ErrNoIFDs
	}
	for _, ifd := range t.IFDs {
		ifd.SortTags()
		if err := ifd.checkDuplicates(); err != nil {
			return nil, err
		}
	}

	variant := t.Variant
	slot := variant.OffsetSize()
	entrySize := variant.TagEntrySize()

	countSize := 2
	if variant == Big {
		countSize = 8
	}

	// Sizing pass: table and extra-region extents per IFD.
	tableSizes := make([]uint64, len(t.IFDs))
	extraSizes := make([]uint64, len(t.IFDs))
	for i, ifd := range t.IFDs {
		tableSizes[i] = uint64(countSize + entrySize*len(ifd.Tags) + slot)
		for _, tag := range ifd.Tags {
			if len(tag.Data) > slot {
				extraSizes[i] += uint64(len(tag.Data))
			}
		}
	}

	layout := &Layout{slots: make([]map[uint16]uint64, len(t.IFDs))}
	cursor := variant.HeaderSize()
	for i := range t.IFDs {
		layout.IFDOffsets = append(layout.IFDOffsets, cursor)
		cursor += tableSizes[i] + extraSizes[i]
	}
	layout.End = cursor

	if err := t.writeHeader(w, layout.IFDOffsets[0]); err != nil {
		return nil, err
	}

	for i, ifd := range t.IFDs {
		nextOffset := uint64(0)
		if i+1 < len(t.IFDs) {
			nextOffset = layout.IFDOffsets[i+1]
		}
		slots, err := t.writeIFD(w, ifd, layout.IFDOffsets[i], nextOffset)
		if err != nil {
			return nil, fmt.Errorf("write ifd %d: %w", i, err)
		}
		layout.slots[i] = slots
	}
	return layout, nil
}

func (t *Tiff) writeHeader(w io.Writer, ifd0 uint64) error {
	order := t.Order
	if t.Variant == Big {
		buf := make([]byte, 16)
		if order == binary.ByteOrder(binary.BigEndian) {
			copy(buf, "MM")
		} else {
			copy(buf, "II")
		}
		order.PutUint16(buf[2:], 43)
		order.PutUint16(buf[4:], 8)
		order.PutUint16(buf[6:], 0)
		order.PutUint64(buf[8:], ifd0)
		_, err := w.Write(buf)
		return err
	}
	buf := make([]byte, 8)
	if order == binary.ByteOrder(binary.BigEndian) {
		copy(buf, "MM")
	} else {
		copy(buf, "II")
	}
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], uint32(ifd0))
	_, err := w.Write(buf)
	return err
}

func (t *Tiff) writeIFD(w io.Writer, ifd *IFD, offset, nextOffset uint64) (map[uint16]uint64, error) {
	variant := t.Variant
	order := t.Order
	slot := variant.OffsetSize()
	entrySize := variant.TagEntrySize()

	countSize := 2
	if variant == Big {
		countSize = 8
	}

	// Out-of-line payloads are staged here and flushed after the tag
	// table and next-IFD pointer.
	extraStart := offset + uint64(countSize+entrySize*len(ifd.Tags)+slot)
	extra := make([]byte, 0)

	slots := make(map[uint16]uint64, len(ifd.Tags))

	head := make([]byte, countSize)
	if variant == Big {
		order.PutUint64(head, uint64(len(ifd.Tags)))
	} else {
		order.PutUint16(head, uint16(len(ifd.Tags)))
	}
	if _, err := w.Write(head); err != nil {
		return nil, err
	}

	entryPos := offset + uint64(countSize)
	for _, tag := range ifd.Tags {
		entry := make([]byte, entrySize)
		order.PutUint16(entry[0:2], tag.Code)
		order.PutUint16(entry[2:4], uint16(tag.Type))
		if variant == Big {
			order.PutUint64(entry[4:12], tag.Count)
		} else {
			order.PutUint32(entry[4:8], uint32(tag.Count))
		}
		valuePos := entryPos + uint64(entrySize-slot)
		if len(tag.Data) > slot {
			payloadPos := extraStart + uint64(len(extra))
			if variant == Big {
				order.PutUint64(entry[12:], payloadPos)
			} else {
				order.PutUint32(entry[8:], uint32(payloadPos))
			}
			extra = append(extra, tag.Data...)
			slots[tag.Code] = payloadPos
		} else {
			copy(entry[entrySize-slot:], tag.Data)
			slots[tag.Code] = valuePos
		}
		if _, err := w.Write(entry); err != nil {
			return nil, err
		}
		entryPos += uint64(entrySize)
	}

	next := make([]byte, slot)
	if variant == Big {
		order.PutUint64(next, nextOffset)
	} else {
		order.PutUint32(next, uint32(nextOffset))
	}
	if _, err := w.Write(next); err != nil {
		return nil, err
	}

	if len(extra) > 0 {
		if _, err := w.Write(extra); err != nil {
			return nil, err
		}
	}
	return slots, nil
}
