package types

// DICOM Transfer Syntax UIDs as defined in DICOM Part 5, Section 8 and Part 6, Annex A.4
// https://dicom.nema.org/medical/dicom/current/output/chtml/part05/chapter_8.html

// Uncompressed Transfer Syntaxes
const (
	// ImplicitVRLittleEndian - Default Transfer Syntax for DICOM
	// Uses implicit VR encoding with little endian byte ordering
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// ExplicitVRLittleEndian - Explicit VR with little endian byte ordering
	// Recommended for general use due to explicit data types
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// ExplicitVRBigEndian - Explicit VR with big endian byte ordering (retired)
	// Rarely used, included because some legacy acceptors still propose it
	ExplicitVRBigEndian = "1.2.840.10008.1.2.2"
)

// JPEG Compression Transfer Syntaxes carried as opaque encapsulated payloads.
// The harness never encodes or decodes pixel data under these syntaxes; it only
// ships pre-compressed blobs.
const (
	// JPEGBaseline8Bit - JPEG Baseline (Process 1), 8-bit lossy
	JPEGBaseline8Bit = "1.2.840.10008.1.2.4.50"

	// JPEGExtended12Bit - JPEG Extended (Process 2 & 4), 8-12 bit lossy
	JPEGExtended12Bit = "1.2.840.10008.1.2.4.51"

	// JPEGLosslessSV1 - JPEG Lossless (Process 14, Selection Value 1)
	JPEGLosslessSV1 = "1.2.840.10008.1.2.4.70"
)

// TransferSyntaxInfo provides the encoding parameters of a transfer syntax
type TransferSyntaxInfo struct {
	UID          string
	Name         string
	ExplicitVR   bool
	BigEndian    bool
	IsCompressed bool
	IsRetired    bool
}

// transferSyntaxRegistry maps transfer syntax UIDs to their information
var transferSyntaxRegistry = map[string]TransferSyntaxInfo{
	ImplicitVRLittleEndian: {
		UID:        ImplicitVRLittleEndian,
		Name:       "Implicit VR Little Endian",
		ExplicitVR: false,
		BigEndian:  false,
	},
	ExplicitVRLittleEndian: {
		UID:        ExplicitVRLittleEndian,
		Name:       "Explicit VR Little Endian",
		ExplicitVR: true,
		BigEndian:  false,
	},
	ExplicitVRBigEndian: {
		UID:        ExplicitVRBigEndian,
		Name:       "Explicit VR Big Endian",
		ExplicitVR: true,
		BigEndian:  true,
		IsRetired:  true,
	},
	JPEGBaseline8Bit: {
		UID:          JPEGBaseline8Bit,
		Name:         "JPEG Baseline (Process 1)",
		ExplicitVR:   true,
		BigEndian:    false,
		IsCompressed: true,
	},
	JPEGExtended12Bit: {
		UID:          JPEGExtended12Bit,
		Name:         "JPEG Extended (Process 2 & 4)",
		ExplicitVR:   true,
		BigEndian:    false,
		IsCompressed: true,
	},
	JPEGLosslessSV1: {
		UID:          JPEGLosslessSV1,
		Name:         "JPEG Lossless (Process 14, SV1)",
		ExplicitVR:   true,
		BigEndian:    false,
		IsCompressed: true,
	},
}

// GetTransferSyntaxInfo returns the encoding parameters for a transfer syntax
// UID, or nil when the syntax is not supported.
func GetTransferSyntaxInfo(uid string) *TransferSyntaxInfo {
	info, ok := transferSyntaxRegistry[uid]
	if !ok {
		return nil
	}
	return &info
}

// IsCompressed returns true if the transfer syntax uses compression
func IsCompressed(uid string) bool {
	info := GetTransferSyntaxInfo(uid)
	return info != nil && info.IsCompressed
}

// GetCommonTransferSyntaxes returns the uncompressed syntaxes the harness
// proposes by default, in preference order.
func GetCommonTransferSyntaxes() []string {
	return []string{
		ImplicitVRLittleEndian,
		ExplicitVRLittleEndian,
		ExplicitVRBigEndian,
	}
}
