// Package dicom implements the dataset codec: encoding and decoding of tagged
// attribute elements under a negotiated transfer syntax.
package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ltmonitor/dicomharness/types"
)

// Element represents a single DICOM data element. Sequence (SQ) elements carry
// their items in Items and have an empty Value; all other elements carry their
// raw value bytes in Value, stored little endian regardless of the transfer
// syntax they were decoded from.
type Element struct {
	Tag   types.Tag
	VR    string
	Value []byte
	Items []*Dataset
}

// Dataset is an ordered collection of elements. Encode sorts elements by tag
// before writing, so callers may append in any order.
type Dataset struct {
	Elements []*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{}
}

// Add appends an element to the dataset
func (d *Dataset) Add(e *Element) {
	d.Elements = append(d.Elements, e)
}

// Get returns the first element with the given tag
func (d *Dataset) Get(tag types.Tag) (*Element, bool) {
	for _, e := range d.Elements {
		if e.Tag == tag {
			return e, true
		}
	}
	return nil, false
}

// GetString returns the element value as a string with trailing padding removed,
// or "" when the tag is absent.
func (d *Dataset) GetString(tag types.Tag) string {
	e, ok := d.Get(tag)
	if !ok {
		return ""
	}
	return strings.TrimRight(string(e.Value), "\x00 ")
}

// GetUint16 returns a 2-byte numeric element value.
func (d *Dataset) GetUint16(tag types.Tag) (uint16, bool) {
	e, ok := d.Get(tag)
	if !ok || len(e.Value) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(e.Value[:2]), true
}

// GetSequence returns the items of a sequence element.
func (d *Dataset) GetSequence(tag types.Tag) ([]*Dataset, bool) {
	e, ok := d.Get(tag)
	if !ok || e.VR != types.VR_SQ {
		return nil, false
	}
	return e.Items, true
}

// sortedElements returns the elements ordered by ascending tag. The sort is
// stable so duplicate tags keep their insertion order.
func (d *Dataset) sortedElements() []*Element {
	elems := make([]*Element, len(d.Elements))
	copy(elems, d.Elements)
	sort.SliceStable(elems, func(i, j int) bool {
		return elems[i].Tag.Compare(elems[j].Tag) < 0
	})
	return elems
}

// NewStringElement creates an element holding a character value
func NewStringElement(tag types.Tag, vr, value string) *Element {
	return &Element{Tag: tag, VR: vr, Value: []byte(value)}
}

// NewUint16Element creates a 2-byte numeric element
func NewUint16Element(tag types.Tag, vr string, value uint16) *Element {
	v := make([]byte, 2)
	binary.LittleEndian.PutUint16(v, value)
	return &Element{Tag: tag, VR: vr, Value: v}
}

// NewUint32Element creates a 4-byte numeric element
func NewUint32Element(tag types.Tag, vr string, value uint32) *Element {
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, value)
	return &Element{Tag: tag, VR: vr, Value: v}
}

// NewBytesElement creates an element holding an opaque byte value
func NewBytesElement(tag types.Tag, vr string, value []byte) *Element {
	return &Element{Tag: tag, VR: vr, Value: value}
}

// NewSequenceElement creates an SQ element owning the given items
func NewSequenceElement(tag types.Tag, items ...*Dataset) *Element {
	return &Element{Tag: tag, VR: types.VR_SQ, Items: items}
}

// String renders a compact single-line summary, useful in logs.
func (d *Dataset) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range d.Elements {
		if i > 0 {
			b.WriteString(" ")
		}
		if e.VR == types.VR_SQ {
			fmt.Fprintf(&b, "%s SQ[%d items]", e.Tag, len(e.Items))
		} else {
			fmt.Fprintf(&b, "%s %s(%d)", e.Tag, e.VR, len(e.Value))
		}
	}
	b.WriteString("}")
	return b.String()
}
