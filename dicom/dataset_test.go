package dicom

import (
	"testing"

	"github.com/ltmonitor/dicomharness/types"
)

func TestDataset_Get(t *testing.T) {
	ds := NewDataset()
	ds.Add(NewStringElement(types.TagPatientName, types.VR_PN, "DOE^JOHN"))

	e, ok := ds.Get(types.TagPatientName)
	if !ok {
		t.Fatal("expected to find element")
	}
	if e.Tag != types.TagPatientName {
		t.Errorf("tag mismatch: got %v", e.Tag)
	}
	if string(e.Value) != "DOE^JOHN" {
		t.Errorf("value mismatch: got %q", e.Value)
	}

	if _, ok := ds.Get(types.Tag{Group: 0xFFFF, Element: 0xFFFF}); ok {
		t.Error("expected missing tag to report false")
	}
}

func TestDataset_GetString(t *testing.T) {
	tests := []struct {
		name     string
		element  *Element
		tag      types.Tag
		expected string
	}{
		{
			name:     "plain value",
			element:  NewStringElement(types.TagPatientID, types.VR_LO, "12345"),
			tag:      types.TagPatientID,
			expected: "12345",
		},
		{
			name:     "trailing space padding stripped",
			element:  NewStringElement(types.TagModality, types.VR_CS, "OT "),
			tag:      types.TagModality,
			expected: "OT",
		},
		{
			name:     "trailing null padding stripped",
			element:  NewStringElement(types.TagSOPInstanceUID, types.VR_UI, "1.2.3\x00"),
			tag:      types.TagSOPInstanceUID,
			expected: "1.2.3",
		},
		{
			name:     "absent tag",
			element:  NewStringElement(types.TagPatientID, types.VR_LO, "12345"),
			tag:      types.Tag{Group: 0xFFFF, Element: 0xFFFF},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := NewDataset()
			ds.Add(tt.element)
			if got := ds.GetString(tt.tag); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDataset_GetUint16(t *testing.T) {
	ds := NewDataset()
	ds.Add(NewUint16Element(types.TagRows, types.VR_US, 512))

	v, ok := ds.GetUint16(types.TagRows)
	if !ok {
		t.Fatal("expected to find element")
	}
	if v != 512 {
		t.Errorf("expected 512, got %d", v)
	}

	if _, ok := ds.GetUint16(types.TagColumns); ok {
		t.Error("expected missing tag to report false")
	}

	// Value shorter than 2 bytes cannot be read as uint16.
	ds.Add(NewBytesElement(types.TagColumns, types.VR_US, []byte{0x01}))
	if _, ok := ds.GetUint16(types.TagColumns); ok {
		t.Error("expected short value to report false")
	}
}

func TestDataset_GetSequence(t *testing.T) {
	item := NewDataset()
	item.Add(NewStringElement(types.TagReferencedSOPClassUID, types.VR_UI, "1.2.840.10008.5.1.4.1.1.7"))

	ds := NewDataset()
	ds.Add(NewSequenceElement(types.TagReferencedSOPSequence, item))

	items, ok := ds.GetSequence(types.TagReferencedSOPSequence)
	if !ok {
		t.Fatal("expected to find sequence")
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].GetString(types.TagReferencedSOPClassUID) != "1.2.840.10008.5.1.4.1.1.7" {
		t.Error("item content mismatch")
	}

	// Non-SQ elements are not sequences.
	ds.Add(NewStringElement(types.TagPatientID, types.VR_LO, "12345"))
	if _, ok := ds.GetSequence(types.TagPatientID); ok {
		t.Error("expected non-SQ element to report false")
	}
}

func TestDataset_SortedElements(t *testing.T) {
	ds := NewDataset()
	ds.Add(NewStringElement(types.TagStudyInstanceUID, types.VR_UI, "1.2.3"))
	ds.Add(NewStringElement(types.TagPatientName, types.VR_PN, "DOE^JOHN"))
	ds.Add(NewStringElement(types.TagModality, types.VR_CS, "OT"))

	sorted := ds.sortedElements()
	expected := []types.Tag{types.TagModality, types.TagPatientName, types.TagStudyInstanceUID}
	for i, tag := range expected {
		if sorted[i].Tag != tag {
			t.Errorf("position %d: expected %v, got %v", i, tag, sorted[i].Tag)
		}
	}

	// The original order is untouched.
	if ds.Elements[0].Tag != types.TagStudyInstanceUID {
		t.Error("sortedElements must not reorder the dataset in place")
	}
}

func TestDataset_String(t *testing.T) {
	ds := NewDataset()
	ds.Add(NewStringElement(types.TagModality, types.VR_CS, "OT"))
	ds.Add(NewSequenceElement(types.TagReferencedSOPSequence, NewDataset(), NewDataset()))

	s := ds.String()
	if s != "{(0008,0060) CS(2) (0008,1199) SQ[2 items]}" {
		t.Errorf("unexpected summary: %s", s)
	}
}
