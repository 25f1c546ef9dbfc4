package tiff

import (
	"fmt"
	"sort"
)

// IFD is one Image File Directory: an ordered list of tags. Duplicate
// codes within one IFD are invalid.
type IFD struct {
	Tags []Tag
}

// Tag returns the tag with the given code, or a MissingTag error.
func (ifd *IFD) Tag(code uint16) (*Tag, error) {
	for i := range ifd.Tags {
		if ifd.Tags[i].Code == code {
			return &ifd.Tags[i], nil
		}
	}
	return nil, &TagError{Code: code, Missing: true}
}

// HasTag reports whether a tag with the given code is present.
func (ifd *IFD) HasTag(code uint16) bool {
	_, err := ifd.Tag(code)
	return err == nil
}

// SetTag inserts t, replacing any existing tag with the same code.
func (ifd *IFD) SetTag(t Tag) {
	for i := range ifd.Tags {
		if ifd.Tags[i].Code == t.Code {
			ifd.Tags[i] = t
			return
		}
	}
	ifd.Tags = append(ifd.Tags, t)
}

// SortTags orders the tags by ascending code, as the TIFF spec requires
// on emit.
func (ifd *IFD) SortTags() {
	sort.SliceStable(ifd.Tags, func(i, j int) bool {
		return ifd.Tags[i].Code < ifd.Tags[j].Code
	})
}

func (ifd *IFD) checkDuplicates() error {
	seen := make(map[uint16]struct{}, len(ifd.Tags))
	for i := range ifd.Tags {
		if _, dup := seen[ifd.Tags[i].Code]; dup {
			return &TagError{Code: ifd.Tags[i].Code, Reason: "duplicate tag"}
		}
		seen[ifd.Tags[i].Code] = struct{}{}
	}
	return nil
}

func (ifd *IFD) String() string {
	return fmt.Sprintf("IFD(%d tags)", len(ifd.Tags))
}
