package dicom

import (
	"encoding/binary"
	"fmt"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// undefinedLength marks sequences and encapsulated values whose extent is
// terminated by a delimitation item instead of a length field.
const undefinedLength = 0xFFFFFFFF

// maxSequenceDepth bounds SQ recursion so malformed input cannot drive the
// decoder into unbounded nesting.
const maxSequenceDepth = 32

// longLengthVRs use the 4-byte length field with 2 reserved bytes under
// explicit VR transfer syntaxes.
var longLengthVRs = map[string]bool{
	types.VR_OB: true, types.VR_OD: true, types.VR_OF: true, types.VR_OL: true,
	types.VR_OV: true, types.VR_OW: true, types.VR_SQ: true, types.VR_SV: true,
	types.VR_UC: true, types.VR_UN: true, types.VR_UR: true, types.VR_UT: true,
	types.VR_UV: true,
}

// numericUnitSize maps binary VRs to the width of their numeric unit; values of
// these VRs are byte-swapped under Explicit VR Big Endian. String VRs map to 0
// and are never swapped.
var numericUnitSize = map[string]int{
	types.VR_US: 2, types.VR_SS: 2, types.VR_AT: 2, types.VR_OW: 2,
	types.VR_UL: 4, types.VR_SL: 4, types.VR_FL: 4, types.VR_OF: 4, types.VR_OL: 4,
	types.VR_FD: 8, types.VR_OD: 8, types.VR_SV: 8, types.VR_UV: 8, types.VR_OV: 8,
}

// textPaddingVRs pad odd-length values with a trailing space; everything else
// pads with NUL.
var textPaddingVRs = map[string]bool{
	types.VR_AE: true, types.VR_AS: true, types.VR_CS: true, types.VR_DA: true,
	types.VR_DS: true, types.VR_DT: true, types.VR_IS: true, types.VR_LO: true,
	types.VR_LT: true, types.VR_PN: true, types.VR_SH: true, types.VR_ST: true,
	types.VR_TM: true, types.VR_UC: true, types.VR_UR: true, types.VR_UT: true,
}

// Encode serializes the dataset under the given transfer syntax. Elements are
// re-ordered by ascending tag before writing, so out-of-order input is legal.
func Encode(ds *Dataset, transferSyntaxUID string) ([]byte, error) {
	info := types.GetTransferSyntaxInfo(transferSyntaxUID)
	if info == nil {
		return nil, fmt.Errorf("unsupported transfer syntax: %s", transferSyntaxUID)
	}

	var buf []byte
	for _, e := range ds.sortedElements() {
		var err error
		buf, err = encodeElement(buf, e, info, 0)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// wireOrder is satisfied by both binary.LittleEndian and binary.BigEndian; the
// codec needs the append methods on the encode path and the fixed-width reads
// on the decode path.
type wireOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func byteOrder(info *types.TransferSyntaxInfo) wireOrder {
	if info.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func encodeElement(buf []byte, e *Element, info *types.TransferSyntaxInfo, depth int) ([]byte, error) {
	if depth > maxSequenceDepth {
		return nil, fmt.Errorf("sequence nesting exceeds depth limit %d", maxSequenceDepth)
	}

	order := byteOrder(info)

	vr := e.VR
	if vr == "" {
		vr = ImplicitVRFor(e.Tag)
	}

	var value []byte
	if vr == types.VR_SQ {
		var err error
		value, err = encodeItems(e.Items, info, depth+1)
		if err != nil {
			return nil, err
		}
	} else {
		value = padValue(e.Value, vr)
		if info.BigEndian {
			value = swapNumeric(value, vr)
		}
	}

	// Tag
	buf = order.AppendUint16(buf, e.Tag.Group)
	buf = order.AppendUint16(buf, e.Tag.Element)

	if !info.ExplicitVR {
		buf = order.AppendUint32(buf, uint32(len(value)))
		return append(buf, value...), nil
	}

	buf = append(buf, vr[0], vr[1])
	if longLengthVRs[vr] {
		buf = append(buf, 0x00, 0x00) // reserved
		buf = order.AppendUint32(buf, uint32(len(value)))
	} else {
		if len(value) > 0xFFFF {
			return nil, fmt.Errorf("element %s: value of %d bytes does not fit a short VR length field", e.Tag, len(value))
		}
		buf = order.AppendUint16(buf, uint16(len(value)))
	}
	return append(buf, value...), nil
}

func encodeItems(items []*Dataset, info *types.TransferSyntaxInfo, depth int) ([]byte, error) {
	order := byteOrder(info)
	var buf []byte
	for _, item := range items {
		var body []byte
		for _, e := range item.sortedElements() {
			var err error
			body, err = encodeElement(body, e, info, depth)
			if err != nil {
				return nil, err
			}
		}
		buf = order.AppendUint16(buf, types.TagItem.Group)
		buf = order.AppendUint16(buf, types.TagItem.Element)
		buf = order.AppendUint32(buf, uint32(len(body)))
		buf = append(buf, body...)
	}
	return buf, nil
}

func padValue(v []byte, vr string) []byte {
	if len(v)%2 == 0 {
		return v
	}
	pad := byte(0x00)
	if textPaddingVRs[vr] {
		pad = 0x20
	}
	out := make([]byte, len(v)+1)
	copy(out, v)
	out[len(v)] = pad
	return out
}

// swapNumeric converts a value between little and big endian representations
// by reversing each numeric unit. The operation is its own inverse.
func swapNumeric(v []byte, vr string) []byte {
	unit := numericUnitSize[vr]
	if unit < 2 || len(v)%unit != 0 {
		return v
	}
	out := make([]byte, len(v))
	for off := 0; off < len(v); off += unit {
		for i := 0; i < unit; i++ {
			out[off+i] = v[off+unit-1-i]
		}
	}
	return out
}

// Decode parses a serialized dataset under the given transfer syntax. It fails
// with a MalformedDataset error on truncated length fields, tag-order
// violations and VR/length mismatches.
func Decode(data []byte, transferSyntaxUID string) (*Dataset, error) {
	info := types.GetTransferSyntaxInfo(transferSyntaxUID)
	if info == nil {
		return nil, fmt.Errorf("unsupported transfer syntax: %s", transferSyntaxUID)
	}

	d := &decoder{data: data, info: info, order: byteOrder(info)}
	ds, err := d.decodeDataset(len(data), false, 0)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

type decoder struct {
	data  []byte
	pos   int
	info  *types.TransferSyntaxInfo
	order wireOrder
}

func (d *decoder) fail(format string, args ...any) error {
	return dicomerrors.NewMalformedDatasetError(d.pos, format, args...)
}

func (d *decoder) readTag() (types.Tag, error) {
	if d.pos+4 > len(d.data) {
		return types.Tag{}, d.fail("truncated tag")
	}
	t := types.Tag{
		Group:   d.order.Uint16(d.data[d.pos : d.pos+2]),
		Element: d.order.Uint16(d.data[d.pos+2 : d.pos+4]),
	}
	d.pos += 4
	return t, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, d.fail("truncated length field")
	}
	v := d.order.Uint16(d.data[d.pos : d.pos+2])
	d.pos += 2
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, d.fail("truncated length field")
	}
	v := d.order.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// decodeDataset reads elements until end (defined-length scope) or until an
// item delimitation item (undefined-length scope). Tags must appear in
// strictly ascending order within one scope.
func (d *decoder) decodeDataset(end int, undefinedScope bool, depth int) (*Dataset, error) {
	if depth > maxSequenceDepth {
		return nil, d.fail("sequence nesting exceeds depth limit %d", maxSequenceDepth)
	}

	ds := NewDataset()
	var prev *types.Tag
	for d.pos < end {
		tagStart := d.pos
		tag, err := d.readTag()
		if err != nil {
			return nil, err
		}

		if undefinedScope && tag == types.TagItemDelimitationItem {
			if _, err := d.readUint32(); err != nil {
				return nil, err
			}
			return ds, nil
		}
		if tag.Group == types.TagItem.Group {
			return nil, d.fail("unexpected delimitation tag %s", tag)
		}
		if prev != nil && prev.Compare(tag) >= 0 {
			return nil, dicomerrors.NewMalformedDatasetError(tagStart,
				"tag %s not in ascending order after %s", tag, *prev)
		}
		prev = &tag

		elem, err := d.decodeElementBody(tag, end, depth)
		if err != nil {
			return nil, err
		}
		ds.Add(elem)
	}
	if undefinedScope {
		return nil, d.fail("missing item delimitation item")
	}
	if d.pos != end {
		return nil, d.fail("element extends past scope end %d", end)
	}
	return ds, nil
}

func (d *decoder) decodeElementBody(tag types.Tag, end int, depth int) (*Element, error) {
	var vr string
	var length uint32

	if d.info.ExplicitVR {
		if d.pos+2 > len(d.data) {
			return nil, d.fail("truncated VR field")
		}
		vr = string(d.data[d.pos : d.pos+2])
		d.pos += 2
		if vr[0] < 'A' || vr[0] > 'Z' || vr[1] < 'A' || vr[1] > 'Z' {
			return nil, d.fail("invalid VR %q for tag %s", vr, tag)
		}
		if longLengthVRs[vr] {
			d.pos += 2 // reserved
			var err error
			if length, err = d.readUint32(); err != nil {
				return nil, err
			}
		} else {
			l, err := d.readUint16()
			if err != nil {
				return nil, err
			}
			length = uint32(l)
		}
	} else {
		vr = ImplicitVRFor(tag)
		var err error
		if length, err = d.readUint32(); err != nil {
			return nil, err
		}
	}

	if vr == types.VR_SQ {
		items, err := d.decodeSequence(length, end, depth)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: tag, VR: vr, Items: items}, nil
	}

	if length == undefinedLength {
		// Encapsulated value (e.g. compressed Pixel Data): captured opaque,
		// item structure included, delimiter stripped.
		value, err := d.captureEncapsulated(end)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: tag, VR: vr, Value: value}, nil
	}

	if length%2 != 0 {
		return nil, d.fail("odd value length %d for tag %s", length, tag)
	}
	if unit := numericUnitSize[vr]; unit > 0 && int(length)%unit != 0 {
		return nil, d.fail("length %d not a multiple of %d for VR %s", length, unit, vr)
	}
	if d.pos+int(length) > end {
		return nil, d.fail("value of tag %s exceeds available data", tag)
	}

	value := make([]byte, length)
	copy(value, d.data[d.pos:d.pos+int(length)])
	d.pos += int(length)
	if d.info.BigEndian {
		value = swapNumeric(value, vr)
	}
	return &Element{Tag: tag, VR: vr, Value: value}, nil
}

func (d *decoder) decodeSequence(length uint32, end int, depth int) ([]*Dataset, error) {
	if depth >= maxSequenceDepth {
		return nil, d.fail("sequence nesting exceeds depth limit %d", maxSequenceDepth)
	}

	seqEnd := end
	undefined := length == undefinedLength
	if !undefined {
		seqEnd = d.pos + int(length)
		if seqEnd > end {
			return nil, d.fail("sequence length %d exceeds available data", length)
		}
	}

	var items []*Dataset
	for {
		if !undefined && d.pos >= seqEnd {
			if d.pos != seqEnd {
				return nil, d.fail("item extends past sequence end")
			}
			return items, nil
		}

		tag, err := d.readTag()
		if err != nil {
			return nil, err
		}
		if undefined && tag == types.TagSequenceDelimitationItem {
			if _, err := d.readUint32(); err != nil {
				return nil, err
			}
			return items, nil
		}
		if tag != types.TagItem {
			return nil, d.fail("expected item tag, got %s", tag)
		}

		itemLen, err := d.readUint32()
		if err != nil {
			return nil, err
		}

		var item *Dataset
		if itemLen == undefinedLength {
			item, err = d.decodeDataset(seqEnd, true, depth+1)
		} else {
			itemEnd := d.pos + int(itemLen)
			if itemEnd > seqEnd {
				return nil, d.fail("item length %d exceeds sequence extent", itemLen)
			}
			item, err = d.decodeDataset(itemEnd, false, depth+1)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// captureEncapsulated walks the fragment items of an undefined-length value and
// returns the raw bytes up to (excluding) the sequence delimitation item.
func (d *decoder) captureEncapsulated(end int) ([]byte, error) {
	start := d.pos
	for {
		itemStart := d.pos
		tag, err := d.readTag()
		if err != nil {
			return nil, err
		}
		if tag == types.TagSequenceDelimitationItem {
			if _, err := d.readUint32(); err != nil {
				return nil, err
			}
			value := make([]byte, itemStart-start)
			copy(value, d.data[start:itemStart])
			return value, nil
		}
		if tag != types.TagItem {
			return nil, d.fail("expected fragment item, got %s", tag)
		}
		fragLen, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if fragLen == undefinedLength {
			return nil, d.fail("fragment with undefined length")
		}
		if d.pos+int(fragLen) > end {
			return nil, d.fail("fragment length %d exceeds available data", fragLen)
		}
		d.pos += int(fragLen)
	}
}
