// Package imagegen builds synthetic secondary capture instances for exercising
// a PACS: a grayscale single-frame, an RGB single-frame and an RGB multi-frame
// flavor, each with fresh UIDs and fixed demographic content so stored objects
// are recognizable in the archive.
package imagegen

import (
	"fmt"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/types"
)

// Flavor selects the kind of instance to generate.
type Flavor int

const (
	Monochrome Flavor = iota
	RGB
	RGBMultiFrame
)

func (f Flavor) String() string {
	switch f {
	case Monochrome:
		return "monochrome"
	case RGB:
		return "rgb"
	case RGBMultiFrame:
		return "rgb-multiframe"
	default:
		return "unknown"
	}
}

// Fixed demographic content carried by every generated instance.
const (
	patientName     = "FUKUOKA^CHIHIRO"
	patientID       = "1234567890"
	accessionNumber = "A20110730123000"
	studyDate       = "20110730"
	studyTime       = "123000"
	modality        = "OT"
	conversionType  = "WSD" // workstation-generated image
	deviceMftr      = "LTMONITOR"
	deviceModelName = "DICOM PACS HARNESS"
)

// Options controls instance generation. Zero values select sensible defaults:
// a 64x64 monochrome single frame with fresh study and series UIDs.
type Options struct {
	Flavor  Flavor
	Rows    uint16
	Columns uint16
	Frames  int // RGBMultiFrame only (default: 3)

	// SOPClassUID overrides the flavor's default storage SOP class. The
	// multi-frame flavor defaults to the dedicated true color multi-frame
	// SC class but some archives only accept the base SC class.
	SOPClassUID string

	// Reuse existing study/series UIDs to group several instances.
	StudyInstanceUID  string
	SeriesInstanceUID string
}

func (o *Options) applyDefaults() {
	if o.Rows == 0 {
		o.Rows = 64
	}
	if o.Columns == 0 {
		o.Columns = 64
	}
	if o.Frames == 0 {
		o.Frames = 3
	}
	if o.SOPClassUID == "" {
		switch o.Flavor {
		case RGBMultiFrame:
			o.SOPClassUID = types.MultiFrameTrueColorSecondaryCaptureImageStorage
		default:
			o.SOPClassUID = types.SecondaryCaptureImageStorage
		}
	}
	if o.StudyInstanceUID == "" {
		o.StudyInstanceUID = dicom.NewUID()
	}
	if o.SeriesInstanceUID == "" {
		o.SeriesInstanceUID = dicom.NewUID()
	}
}

// NewInstance generates a complete storage instance.
func NewInstance(opts Options) (*dicom.Dataset, error) {
	opts.applyDefaults()
	if opts.Flavor != RGBMultiFrame {
		opts.Frames = 1
	}

	ds := dicom.NewDataset()
	addString := func(tag types.Tag, vr, value string) {
		ds.Add(dicom.NewStringElement(tag, vr, value))
	}

	addString(types.TagSOPClassUID, types.VR_UI, opts.SOPClassUID)
	addString(types.TagSOPInstanceUID, types.VR_UI, dicom.NewUID())
	addString(types.TagStudyDate, types.VR_DA, studyDate)
	addString(types.TagContentDate, types.VR_DA, studyDate)
	addString(types.TagStudyTime, types.VR_TM, studyTime)
	addString(types.TagContentTime, types.VR_TM, studyTime)
	addString(types.TagAccessionNumber, types.VR_SH, accessionNumber)
	addString(types.TagModality, types.VR_CS, modality)
	addString(types.TagConversionType, types.VR_CS, conversionType)
	addString(types.TagReferringPhysicianName, types.VR_PN, "")
	addString(types.TagSecondaryCaptureDeviceMftr, types.VR_LO, deviceMftr)
	addString(types.TagSecondaryCaptureModelName, types.VR_LO, deviceModelName)
	addString(types.TagPatientName, types.VR_PN, patientName)
	addString(types.TagPatientID, types.VR_LO, patientID)
	addString(types.TagStudyInstanceUID, types.VR_UI, opts.StudyInstanceUID)
	addString(types.TagSeriesInstanceUID, types.VR_UI, opts.SeriesInstanceUID)
	addString(types.TagStudyID, types.VR_SH, "1")
	addString(types.TagSeriesNumber, types.VR_IS, "1")
	addString(types.TagInstanceNumber, types.VR_IS, "1")

	addUS := func(tag types.Tag, value uint16) {
		ds.Add(dicom.NewUint16Element(tag, types.VR_US, value))
	}

	switch opts.Flavor {
	case Monochrome:
		addUS(types.TagSamplesPerPixel, 1)
		addString(types.TagPhotometricInterpretation, types.VR_CS, "MONOCHROME2")
	case RGB, RGBMultiFrame:
		addUS(types.TagSamplesPerPixel, 3)
		addString(types.TagPhotometricInterpretation, types.VR_CS, "RGB")
		addUS(types.TagPlanarConfiguration, 0)
	default:
		return nil, fmt.Errorf("unknown flavor %d", opts.Flavor)
	}
	if opts.Flavor == RGBMultiFrame {
		addString(types.TagNumberOfFrames, types.VR_IS, fmt.Sprintf("%d", opts.Frames))
	}
	addUS(types.TagRows, opts.Rows)
	addUS(types.TagColumns, opts.Columns)
	addUS(types.TagBitsAllocated, 8)
	addUS(types.TagBitsStored, 8)
	addUS(types.TagHighBit, 7)
	addUS(types.TagPixelRepresentation, 0)

	pixels := renderPixels(opts)
	ds.Add(dicom.NewBytesElement(types.TagPixelData, types.VR_OW, pixels))
	return ds, nil
}

// renderPixels fills the frames with a deterministic gradient so every frame
// has distinct, non-trivial content.
func renderPixels(opts Options) []byte {
	samples := 1
	if opts.Flavor != Monochrome {
		samples = 3
	}
	frameSize := int(opts.Rows) * int(opts.Columns) * samples
	pixels := make([]byte, frameSize*opts.Frames)

	for frame := 0; frame < opts.Frames; frame++ {
		base := frame * frameSize
		for row := 0; row < int(opts.Rows); row++ {
			for col := 0; col < int(opts.Columns); col++ {
				off := base + (row*int(opts.Columns)+col)*samples
				if samples == 1 {
					pixels[off] = byte((row + col + frame*16) & 0xFF)
				} else {
					pixels[off] = byte(row & 0xFF)
					pixels[off+1] = byte(col & 0xFF)
					pixels[off+2] = byte((frame * 64) & 0xFF)
				}
			}
		}
	}

	// Even length is guaranteed for RGB; pad the odd monochrome case.
	if len(pixels)%2 == 1 {
		pixels = append(pixels, 0x00)
	}
	return pixels
}
