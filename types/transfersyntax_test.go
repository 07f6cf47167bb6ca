package types

import "testing"

func TestGetTransferSyntaxInfo(t *testing.T) {
	tests := []struct {
		name       string
		uid        string
		explicitVR bool
		bigEndian  bool
		compressed bool
	}{
		{"implicit little endian", ImplicitVRLittleEndian, false, false, false},
		{"explicit little endian", ExplicitVRLittleEndian, true, false, false},
		{"explicit big endian", ExplicitVRBigEndian, true, true, false},
		{"jpeg baseline", JPEGBaseline8Bit, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetTransferSyntaxInfo(tt.uid)
			if info == nil {
				t.Fatalf("GetTransferSyntaxInfo(%s) = nil", tt.uid)
			}
			if info.ExplicitVR != tt.explicitVR {
				t.Errorf("ExplicitVR = %v, want %v", info.ExplicitVR, tt.explicitVR)
			}
			if info.BigEndian != tt.bigEndian {
				t.Errorf("BigEndian = %v, want %v", info.BigEndian, tt.bigEndian)
			}
			if info.IsCompressed != tt.compressed {
				t.Errorf("IsCompressed = %v, want %v", info.IsCompressed, tt.compressed)
			}
		})
	}
}

func TestGetTransferSyntaxInfo_Unsupported(t *testing.T) {
	if info := GetTransferSyntaxInfo("1.2.840.10008.1.2.5"); info != nil {
		t.Errorf("expected nil for unsupported syntax, got %+v", info)
	}
	if info := GetTransferSyntaxInfo(""); info != nil {
		t.Errorf("expected nil for empty UID, got %+v", info)
	}
}

func TestIsCompressed(t *testing.T) {
	if IsCompressed(ExplicitVRLittleEndian) {
		t.Error("explicit VR little endian reported compressed")
	}
	if !IsCompressed(JPEGLosslessSV1) {
		t.Error("JPEG lossless not reported compressed")
	}
	if IsCompressed("unknown") {
		t.Error("unknown syntax reported compressed")
	}
}
