package tiff

import (
	"errors"
	"fmt"
)

// ErrBadMagicBytes is returned when the first four bytes of a file are
// not a TIFF or BigTIFF signature.
var ErrBadMagicBytes = errors.New("tiff: bad magic bytes")

// ErrNoIFDs is returned when the IFD chain is empty.
var ErrNoIFDs = errors.New("tiff: no ifds")

// TagError reports a missing or malformed tag.
type TagError struct {
	Code    uint16
	Missing bool
	Reason  string
}

func (e *TagError) Error() string {
	if e.Missing {
		return fmt.Sprintf("tiff: missing tag %d", e.Code)
	}
	if e.Reason != "" {
		return fmt.Sprintf("tiff: bad tag %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("tiff: bad tag %d", e.Code)
}

// IsMissingTag reports whether err is a TagError for an absent tag.
func IsMissingTag(err error) bool {
	var te *TagError
	return errors.As(err, &te) && te.Missing
}
