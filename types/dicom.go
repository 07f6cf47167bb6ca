// Package types contains the DICOM type definitions shared by the protocol layers.
package types

import "fmt"

// VR (Value Representation) constants for DICOM data elements
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Compare orders tags by group, then element.
func (t Tag) Compare(other Tag) int {
	switch {
	case t.Group != other.Group:
		if t.Group < other.Group {
			return -1
		}
		return 1
	case t.Element != other.Element:
		if t.Element < other.Element {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Data set tags used by the storage and storage commitment services.
var (
	TagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	TagFileMetaVersion            = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}
	TagImplementationVersionName  = Tag{0x0002, 0x0013}
	TagSpecificCharacterSet       = Tag{0x0008, 0x0005}
	TagImageType                  = Tag{0x0008, 0x0008}
	TagSOPClassUID                = Tag{0x0008, 0x0016}
	TagSOPInstanceUID             = Tag{0x0008, 0x0018}
	TagStudyDate                  = Tag{0x0008, 0x0020}
	TagSeriesDate                 = Tag{0x0008, 0x0021}
	TagContentDate                = Tag{0x0008, 0x0023}
	TagStudyTime                  = Tag{0x0008, 0x0030}
	TagSeriesTime                 = Tag{0x0008, 0x0031}
	TagContentTime                = Tag{0x0008, 0x0033}
	TagAccessionNumber            = Tag{0x0008, 0x0050}
	TagModality                   = Tag{0x0008, 0x0060}
	TagConversionType             = Tag{0x0008, 0x0064}
	TagReferringPhysicianName     = Tag{0x0008, 0x0090}
	TagTransactionUID             = Tag{0x0008, 0x1195}
	TagFailureReason              = Tag{0x0008, 0x1197}
	TagFailedSOPSequence          = Tag{0x0008, 0x1198}
	TagReferencedSOPSequence      = Tag{0x0008, 0x1199}
	TagReferencedSOPClassUID      = Tag{0x0008, 0x1150}
	TagReferencedSOPInstanceUID   = Tag{0x0008, 0x1155}
	TagSecondaryCaptureDeviceMftr = Tag{0x0018, 0x1016}
	TagSecondaryCaptureModelName  = Tag{0x0018, 0x1018}
	TagPatientName                = Tag{0x0010, 0x0010}
	TagPatientID                  = Tag{0x0010, 0x0020}
	TagPatientBirthDate           = Tag{0x0010, 0x0030}
	TagPatientSex                 = Tag{0x0010, 0x0040}
	TagStudyInstanceUID           = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID          = Tag{0x0020, 0x000E}
	TagStudyID                    = Tag{0x0020, 0x0010}
	TagPatientOrientation         = Tag{0x0020, 0x0020}
	TagSeriesNumber               = Tag{0x0020, 0x0011}
	TagInstanceNumber             = Tag{0x0020, 0x0013}
	TagSamplesPerPixel            = Tag{0x0028, 0x0002}
	TagPhotometricInterpretation  = Tag{0x0028, 0x0004}
	TagPlanarConfiguration        = Tag{0x0028, 0x0006}
	TagNumberOfFrames             = Tag{0x0028, 0x0008}
	TagRows                       = Tag{0x0028, 0x0010}
	TagColumns                    = Tag{0x0028, 0x0011}
	TagBitsAllocated              = Tag{0x0028, 0x0100}
	TagBitsStored                 = Tag{0x0028, 0x0101}
	TagHighBit                    = Tag{0x0028, 0x0102}
	TagPixelRepresentation        = Tag{0x0028, 0x0103}
	TagPixelData                  = Tag{0x7FE0, 0x0010}
	TagItem                       = Tag{0xFFFE, 0xE000}
	TagItemDelimitationItem       = Tag{0xFFFE, 0xE00D}
	TagSequenceDelimitationItem   = Tag{0xFFFE, 0xE0DD}
)

// Modality Worklist attributes queried with C-FIND.
var (
	TagRequestingPhysician               = Tag{0x0032, 0x1032}
	TagScheduledStationAETitle           = Tag{0x0040, 0x0001}
	TagScheduledProcedureStepStartDate   = Tag{0x0040, 0x0002}
	TagScheduledProcedureStepStartTime   = Tag{0x0040, 0x0003}
	TagScheduledProcedureStepDescription = Tag{0x0040, 0x0007}
	TagScheduledProcedureStepID          = Tag{0x0040, 0x0009}
	TagScheduledProcedureStepSequence    = Tag{0x0040, 0x0100}
)
