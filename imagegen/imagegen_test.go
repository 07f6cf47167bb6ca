package imagegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/types"
)

func TestNewInstance_Flavors(t *testing.T) {
	tests := []struct {
		name            string
		opts            Options
		sopClass        string
		samplesPerPixel uint16
		photometric     string
		frames          int
	}{
		{
			name:            "monochrome defaults",
			opts:            Options{Flavor: Monochrome},
			sopClass:        types.SecondaryCaptureImageStorage,
			samplesPerPixel: 1,
			photometric:     "MONOCHROME2",
			frames:          1,
		},
		{
			name:            "rgb",
			opts:            Options{Flavor: RGB, Rows: 32, Columns: 48},
			sopClass:        types.SecondaryCaptureImageStorage,
			samplesPerPixel: 3,
			photometric:     "RGB",
			frames:          1,
		},
		{
			name:            "rgb multi-frame",
			opts:            Options{Flavor: RGBMultiFrame},
			sopClass:        types.MultiFrameTrueColorSecondaryCaptureImageStorage,
			samplesPerPixel: 3,
			photometric:     "RGB",
			frames:          3,
		},
		{
			name:            "multi-frame with SOP class override",
			opts:            Options{Flavor: RGBMultiFrame, Frames: 5, SOPClassUID: types.SecondaryCaptureImageStorage},
			sopClass:        types.SecondaryCaptureImageStorage,
			samplesPerPixel: 3,
			photometric:     "RGB",
			frames:          5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewInstance(tt.opts)
			require.NoError(t, err)

			require.Equal(t, tt.sopClass, ds.GetString(types.TagSOPClassUID))
			require.NotEmpty(t, ds.GetString(types.TagSOPInstanceUID))
			require.NotEmpty(t, ds.GetString(types.TagStudyInstanceUID))
			require.NotEmpty(t, ds.GetString(types.TagSeriesInstanceUID))
			require.Equal(t, "FUKUOKA^CHIHIRO", ds.GetString(types.TagPatientName))
			require.Equal(t, "OT", ds.GetString(types.TagModality))
			require.Equal(t, "WSD", ds.GetString(types.TagConversionType))

			samples, ok := ds.GetUint16(types.TagSamplesPerPixel)
			require.True(t, ok)
			require.Equal(t, tt.samplesPerPixel, samples)
			require.Equal(t, tt.photometric, ds.GetString(types.TagPhotometricInterpretation))

			rows, _ := ds.GetUint16(types.TagRows)
			cols, _ := ds.GetUint16(types.TagColumns)
			if tt.opts.Rows == 0 {
				require.Equal(t, uint16(64), rows)
			} else {
				require.Equal(t, tt.opts.Rows, rows)
			}

			bits, _ := ds.GetUint16(types.TagBitsAllocated)
			require.Equal(t, uint16(8), bits)

			pixelData, found := ds.Get(types.TagPixelData)
			require.True(t, found)
			expectedSize := int(rows) * int(cols) * int(tt.samplesPerPixel) * tt.frames
			if expectedSize%2 == 1 {
				expectedSize++
			}
			require.Len(t, pixelData.Value, expectedSize)
		})
	}
}

func TestNewInstance_FrameCountAttribute(t *testing.T) {
	ds, err := NewInstance(Options{Flavor: RGBMultiFrame, Frames: 4})
	require.NoError(t, err)
	require.Equal(t, "4", ds.GetString(types.TagNumberOfFrames))

	// Single-frame flavors omit the attribute.
	mono, err := NewInstance(Options{Flavor: Monochrome})
	require.NoError(t, err)
	_, found := mono.Get(types.TagNumberOfFrames)
	require.False(t, found)
}

func TestNewInstance_SharedStudy(t *testing.T) {
	study := dicom.NewUID()

	first, err := NewInstance(Options{Flavor: Monochrome, StudyInstanceUID: study})
	require.NoError(t, err)
	second, err := NewInstance(Options{Flavor: RGB, StudyInstanceUID: study})
	require.NoError(t, err)

	require.Equal(t, study, first.GetString(types.TagStudyInstanceUID))
	require.Equal(t, study, second.GetString(types.TagStudyInstanceUID))

	// Instance and series UIDs stay distinct.
	require.NotEqual(t, first.GetString(types.TagSOPInstanceUID), second.GetString(types.TagSOPInstanceUID))
	require.NotEqual(t, first.GetString(types.TagSeriesInstanceUID), second.GetString(types.TagSeriesInstanceUID))
}

func TestNewInstance_EncodesInCommonSyntaxes(t *testing.T) {
	ds, err := NewInstance(Options{Flavor: RGBMultiFrame})
	require.NoError(t, err)

	for _, ts := range []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian} {
		encoded, err := dicom.Encode(ds, ts)
		require.NoError(t, err)

		decoded, err := dicom.Decode(encoded, ts)
		require.NoError(t, err)
		require.Equal(t, ds.GetString(types.TagSOPInstanceUID), decoded.GetString(types.TagSOPInstanceUID))
	}
}

func TestEncodePart10(t *testing.T) {
	ds, err := NewInstance(Options{Flavor: Monochrome})
	require.NoError(t, err)

	data, err := EncodePart10(ds, "2.25.1", "LTMONITOR_1.0")
	require.NoError(t, err)

	// 128-byte preamble followed by the DICM prefix.
	require.GreaterOrEqual(t, len(data), 132)
	for _, b := range data[:128] {
		require.Equal(t, byte(0), b)
	}
	require.Equal(t, []byte("DICM"), data[132-4:132])

	// The group length element bounds the meta group; after it the data set
	// starts with the instance's first element.
	meta, err := dicom.Decode(data[132:132+12], types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	e, ok := meta.Get(types.TagFileMetaGroupLength)
	require.True(t, ok)
	require.Len(t, e.Value, 4)
}

func TestEncodePart10_RequiresUIDs(t *testing.T) {
	ds := dicom.NewDataset()
	_, err := EncodePart10(ds, "", "")
	require.Error(t, err)
}

func TestFlavor_String(t *testing.T) {
	require.Equal(t, "monochrome", Monochrome.String())
	require.Equal(t, "rgb", RGB.String())
	require.Equal(t, "rgb-multiframe", RGBMultiFrame.String())
}
