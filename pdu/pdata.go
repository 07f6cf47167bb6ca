package pdu

import (
	"encoding/binary"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
)

// PDV message control header bits
const (
	pdvCommand      = 0x01
	pdvLastFragment = 0x02
)

// PDV is one Presentation Data Value: a fragment of a command set or data set
// tagged with its presentation context.
type PDV struct {
	ContextID byte
	IsCommand bool
	IsLast    bool
	Data      []byte
}

// pdvOverhead is the per-PDV cost inside a P-DATA-TF body: 4 length bytes,
// the context ID and the message control header.
const pdvOverhead = 6

// EncodePDataTF serializes PDVs into a P-DATA-TF body.
func EncodePDataTF(pdvs []PDV) []byte {
	var buf []byte
	for _, pdv := range pdvs {
		var ctrl byte
		if pdv.IsCommand {
			ctrl |= pdvCommand
		}
		if pdv.IsLast {
			ctrl |= pdvLastFragment
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(pdv.Data)+2))
		buf = append(buf, pdv.ContextID, ctrl)
		buf = append(buf, pdv.Data...)
	}
	return buf
}

// ParsePDataTF decodes the PDVs of a P-DATA-TF body.
func ParsePDataTF(data []byte) ([]PDV, error) {
	var pdvs []PDV
	offset := 0
	for offset < len(data) {
		if offset+pdvOverhead > len(data) {
			return nil, dicomerrors.NewPDUError(TypePDataTF, "truncated PDV header")
		}
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		if length < 2 {
			return nil, dicomerrors.NewPDUError(TypePDataTF, "PDV length %d too small", length)
		}
		end := offset + 4 + int(length)
		if end > len(data) {
			return nil, dicomerrors.NewPDUError(TypePDataTF, "PDV exceeds PDU length")
		}

		ctrl := data[offset+5]
		pdvs = append(pdvs, PDV{
			ContextID: data[offset+4],
			IsCommand: ctrl&pdvCommand != 0,
			IsLast:    ctrl&pdvLastFragment != 0,
			Data:      data[offset+6 : end],
		})
		offset = end
	}
	if len(pdvs) == 0 {
		return nil, dicomerrors.NewPDUError(TypePDataTF, "P-DATA-TF with no PDVs")
	}
	return pdvs, nil
}

// FragmentStream splits payload into PDVs that keep each P-DATA-TF PDU within
// maxPDULength. A maxPDULength of zero means the peer accepts unlimited PDUs
// and the payload travels as one fragment.
func FragmentStream(contextID byte, isCommand bool, payload []byte, maxPDULength uint32) []PDV {
	chunk := len(payload)
	if maxPDULength > 0 {
		chunk = int(maxPDULength) - pdvOverhead
		if chunk < 1 {
			chunk = 1
		}
	}
	if chunk >= len(payload) {
		return []PDV{{ContextID: contextID, IsCommand: isCommand, IsLast: true, Data: payload}}
	}

	var pdvs []PDV
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}
		pdvs = append(pdvs, PDV{
			ContextID: contextID,
			IsCommand: isCommand,
			IsLast:    end == len(payload),
			Data:      payload[off:end],
		})
	}
	return pdvs
}
