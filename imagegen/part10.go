package imagegen

import (
	"fmt"
	"os"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/types"
)

// EncodePart10 wraps a generated instance in a DICOM Part 10 file: 128-byte
// preamble, "DICM" prefix, the file meta information group and the data set
// encoded in Explicit VR Little Endian.
func EncodePart10(ds *dicom.Dataset, implementationClassUID, implementationVersionName string) ([]byte, error) {
	sopClassUID := ds.GetString(types.TagSOPClassUID)
	sopInstanceUID := ds.GetString(types.TagSOPInstanceUID)
	if sopClassUID == "" || sopInstanceUID == "" {
		return nil, fmt.Errorf("data set missing SOP class or instance UID")
	}

	meta := dicom.NewDataset()
	meta.Add(dicom.NewBytesElement(types.TagFileMetaVersion, types.VR_OB, []byte{0x00, 0x01}))
	meta.Add(dicom.NewStringElement(types.TagMediaStorageSOPClassUID, types.VR_UI, sopClassUID))
	meta.Add(dicom.NewStringElement(types.TagMediaStorageSOPInstanceUID, types.VR_UI, sopInstanceUID))
	meta.Add(dicom.NewStringElement(types.TagTransferSyntaxUID, types.VR_UI, types.ExplicitVRLittleEndian))
	if implementationClassUID != "" {
		meta.Add(dicom.NewStringElement(types.TagImplementationClassUID, types.VR_UI, implementationClassUID))
	}
	if implementationVersionName != "" {
		meta.Add(dicom.NewStringElement(types.TagImplementationVersionName, types.VR_SH, implementationVersionName))
	}

	metaBytes, err := dicom.Encode(meta, types.ExplicitVRLittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file meta information: %w", err)
	}

	groupLength := dicom.NewDataset()
	groupLength.Add(dicom.NewUint32Element(types.TagFileMetaGroupLength, types.VR_UL, uint32(len(metaBytes))))
	groupLengthBytes, err := dicom.Encode(groupLength, types.ExplicitVRLittleEndian)
	if err != nil {
		return nil, err
	}

	body, err := dicom.Encode(ds, types.ExplicitVRLittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data set: %w", err)
	}

	out := make([]byte, 128, 132+len(groupLengthBytes)+len(metaBytes)+len(body))
	out = append(out, 'D', 'I', 'C', 'M')
	out = append(out, groupLengthBytes...)
	out = append(out, metaBytes...)
	out = append(out, body...)
	return out, nil
}

// WriteFile dumps an instance as a Part 10 .dcm file, handy for inspecting
// generated objects with external viewers.
func WriteFile(path string, ds *dicom.Dataset, implementationClassUID, implementationVersionName string) error {
	data, err := EncodePart10(ds, implementationClassUID, implementationVersionName)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
