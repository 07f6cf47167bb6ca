package types

import "strings"

// DICOM Application Context UID
// The Application Context defines the DICOM application-level message exchange rules.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Verification Service
const (
	VerificationSOPClass = "1.2.840.10008.1.1"
)

// Storage Service SOP Classes exercised by the harness
const (
	// Secondary Capture and Multi-frame variants
	SecondaryCaptureImageStorage                        = "1.2.840.10008.5.1.4.1.1.7"
	MultiFrameGrayscaleByteSecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7.1"
	MultiFrameGrayscaleWordSecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7.2"
	MultiFrameTrueColorSecondaryCaptureImageStorage     = "1.2.840.10008.5.1.4.1.1.7.4"

	// Common modality storage classes, kept for acceptors that propose them
	ComputedRadiographyImageStorage = "1.2.840.10008.5.1.4.1.1.1"
	CTImageStorage                  = "1.2.840.10008.5.1.4.1.1.2"
	MRImageStorage                  = "1.2.840.10008.5.1.4.1.1.4"
	UltrasoundImageStorage          = "1.2.840.10008.5.1.4.1.1.6.1"
)

// Modality Worklist Service
const (
	// ModalityWorklistInformationModelFind is the SOP Class queried with
	// C-FIND to retrieve scheduled procedure steps.
	ModalityWorklistInformationModelFind = "1.2.840.10008.5.1.4.31"
)

// Storage Commitment Service
const (
	// StorageCommitmentPushModel is the SOP Class for the push model of the
	// Storage Commitment service (N-ACTION request, N-EVENT-REPORT result).
	StorageCommitmentPushModel = "1.2.840.10008.1.20.1"

	// StorageCommitmentPushModelInstance is the well-known SOP Instance UID
	// addressed by every Storage Commitment N-ACTION request.
	StorageCommitmentPushModelInstance = "1.2.840.10008.1.20.1.1"
)

// storageSOPClassPrefixes covers the Storage Service subtree of the SOP Class
// UID space.
var storageSOPClassPrefixes = []string{
	"1.2.840.10008.5.1.4.1.1.",
}

// IsStorageSOPClass reports whether the UID denotes a composite storage SOP
// Class (a C-STORE target).
func IsStorageSOPClass(uid string) bool {
	for _, prefix := range storageSOPClassPrefixes {
		if strings.HasPrefix(uid, prefix) {
			return true
		}
	}
	return false
}
