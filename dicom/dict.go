package dicom

import "github.com/ltmonitor/dicomharness/types"

// implicitVRDict covers the attributes this module produces and consumes.
// Tags outside the dictionary decode as UN under implicit VR.
var implicitVRDict = map[types.Tag]string{
	types.TagSpecificCharacterSet:       types.VR_CS,
	types.TagImageType:                  types.VR_CS,
	types.TagSOPClassUID:                types.VR_UI,
	types.TagSOPInstanceUID:             types.VR_UI,
	types.TagStudyDate:                  types.VR_DA,
	types.TagSeriesDate:                 types.VR_DA,
	types.TagContentDate:                types.VR_DA,
	types.TagStudyTime:                  types.VR_TM,
	types.TagSeriesTime:                 types.VR_TM,
	types.TagContentTime:                types.VR_TM,
	types.TagAccessionNumber:            types.VR_SH,
	types.TagModality:                   types.VR_CS,
	types.TagConversionType:             types.VR_CS,
	types.TagReferringPhysicianName:     types.VR_PN,
	types.TagTransactionUID:             types.VR_UI,
	types.TagFailureReason:              types.VR_US,
	types.TagFailedSOPSequence:          types.VR_SQ,
	types.TagReferencedSOPSequence:      types.VR_SQ,
	types.TagReferencedSOPClassUID:      types.VR_UI,
	types.TagReferencedSOPInstanceUID:   types.VR_UI,
	types.TagSecondaryCaptureDeviceMftr: types.VR_LO,
	types.TagSecondaryCaptureModelName:  types.VR_LO,
	types.TagRequestingPhysician:        types.VR_PN,
	types.TagPatientName:                types.VR_PN,
	types.TagPatientID:                  types.VR_LO,
	types.TagPatientBirthDate:           types.VR_DA,
	types.TagPatientSex:                 types.VR_CS,
	types.TagStudyInstanceUID:           types.VR_UI,
	types.TagSeriesInstanceUID:          types.VR_UI,
	types.TagStudyID:                    types.VR_SH,
	types.TagSeriesNumber:               types.VR_IS,
	types.TagInstanceNumber:             types.VR_IS,
	types.TagPatientOrientation:         types.VR_CS,
	types.TagSamplesPerPixel:            types.VR_US,
	types.TagPhotometricInterpretation:  types.VR_CS,
	types.TagPlanarConfiguration:        types.VR_US,
	types.TagNumberOfFrames:             types.VR_IS,
	types.TagRows:                       types.VR_US,
	types.TagColumns:                    types.VR_US,
	types.TagBitsAllocated:              types.VR_US,
	types.TagBitsStored:                 types.VR_US,
	types.TagHighBit:                    types.VR_US,
	types.TagPixelRepresentation:        types.VR_US,
	types.TagPixelData:                  types.VR_OW,

	types.TagScheduledStationAETitle:           types.VR_AE,
	types.TagScheduledProcedureStepStartDate:   types.VR_DA,
	types.TagScheduledProcedureStepStartTime:   types.VR_TM,
	types.TagScheduledProcedureStepDescription: types.VR_LO,
	types.TagScheduledProcedureStepID:          types.VR_SH,
	types.TagScheduledProcedureStepSequence:    types.VR_SQ,
}

// ImplicitVRFor resolves the VR used for a tag under Implicit VR Little
// Endian.
func ImplicitVRFor(tag types.Tag) string {
	if vr, ok := implicitVRDict[tag]; ok {
		return vr
	}
	return types.VR_UN
}
