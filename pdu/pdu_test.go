package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
)

func TestPDU_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		pduType byte
		body    []byte
	}{
		{"release request", TypeReleaseRQ, ReleaseBody()},
		{"abort", TypeAbort, (&Abort{Source: 0x02}).Encode()},
		{"empty P-DATA-TF", TypePDataTF, nil},
		{"data payload", TypePDataTF, []byte{0x01, 0x02, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePDU(&buf, tt.pduType, tt.body); err != nil {
				t.Fatalf("WritePDU failed: %v", err)
			}

			p, err := ReadPDU(&buf)
			if err != nil {
				t.Fatalf("ReadPDU failed: %v", err)
			}
			if p.Type != tt.pduType {
				t.Errorf("expected type 0x%02X, got 0x%02X", tt.pduType, p.Type)
			}
			if !bytes.Equal(p.Data, tt.body) {
				t.Errorf("body mismatch: expected %v, got %v", tt.body, p.Data)
			}
		})
	}
}

func TestReadPDU_UnknownType(t *testing.T) {
	raw := []byte{0x7F, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := ReadPDU(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for unknown PDU type")
	}
	if !errors.Is(err, dicomerrors.ErrProtocolViolation) {
		t.Errorf("expected protocol violation, got %v", err)
	}
}

func TestReadPDU_OversizeLength(t *testing.T) {
	raw := make([]byte, 6)
	raw[0] = TypePDataTF
	binary.BigEndian.PutUint32(raw[2:6], maxBodyLength+1)
	_, err := ReadPDU(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for oversize PDU length")
	}
}

func TestReadPDU_TruncatedBody(t *testing.T) {
	raw := []byte{TypePDataTF, 0x00, 0x00, 0x00, 0x00, 0x08, 0x01, 0x02}
	_, err := ReadPDU(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
	if !errors.Is(err, dicomerrors.ErrProtocolViolation) {
		t.Errorf("expected protocol violation, got %v", err)
	}
}

func TestWritePDU_Framing(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0xAA, 0xBB}
	if err := WritePDU(&buf, TypeAssociateRQ, body); err != nil {
		t.Fatalf("WritePDU failed: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != 6+len(body) {
		t.Fatalf("expected %d bytes, got %d", 6+len(body), len(raw))
	}
	if raw[0] != TypeAssociateRQ || raw[1] != 0x00 {
		t.Errorf("bad header prefix: %v", raw[:2])
	}
	if got := binary.BigEndian.Uint32(raw[2:6]); got != uint32(len(body)) {
		t.Errorf("expected length %d, got %d", len(body), got)
	}
}
