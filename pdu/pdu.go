// Package pdu encodes and decodes the Upper Layer Protocol Data Units used to
// establish, use and release DICOM associations.
package pdu

import (
	"encoding/binary"
	"io"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
)

// PDU types
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// maxBodyLength caps the PDU length field before allocating, so a corrupt or
// hostile peer cannot make us reserve gigabytes.
const maxBodyLength = 64 * 1024 * 1024

// PDU represents a Protocol Data Unit
type PDU struct {
	Type byte
	Data []byte
}

// ReadPDU reads a complete PDU from the stream. The 6-byte header carries the
// type, a reserved byte and the big-endian body length.
func ReadPDU(r io.Reader) (*PDU, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	pduType := header[0]
	if pduType < TypeAssociateRQ || pduType > TypeAbort {
		return nil, dicomerrors.NewPDUError(pduType, "unknown PDU type")
	}

	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxBodyLength {
		return nil, dicomerrors.NewPDUError(pduType, "declared length %d exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, dicomerrors.NewPDUError(pduType, "truncated body: %v", err)
	}

	return &PDU{Type: pduType, Data: data}, nil
}

// WritePDU frames and writes a single PDU to the stream.
func WritePDU(w io.Writer, pduType byte, data []byte) error {
	header := make([]byte, 6)
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data)))

	buf := append(header, data...)
	_, err := w.Write(buf)
	return err
}
