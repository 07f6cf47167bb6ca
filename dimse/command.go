// Package dimse encodes DIMSE command sets and moves complete messages across
// an association as fragmented P-DATA-TF PDUs.
package dimse

import (
	"encoding/binary"
	"strings"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// Command set elements, all in group 0000. Command sets are always encoded in
// Implicit VR Little Endian regardless of the negotiated transfer syntax.
const (
	elemGroupLength               = 0x0000
	elemAffectedSOPClassUID       = 0x0002
	elemRequestedSOPClassUID      = 0x0003
	elemCommandField              = 0x0100
	elemMessageID                 = 0x0110
	elemMessageIDBeingRespondedTo = 0x0120
	elemPriority                  = 0x0700
	elemCommandDataSetType        = 0x0800
	elemStatus                    = 0x0900
	elemAffectedSOPInstanceUID    = 0x1000
	elemRequestedSOPInstanceUID   = 0x1001
	elemEventTypeID               = 0x1002
	elemActionTypeID              = 0x1008
)

func appendCommandUS(buf []byte, element uint16, value uint16) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, 2)
	return binary.LittleEndian.AppendUint16(buf, value)
}

func appendCommandUID(buf []byte, element uint16, value string) []byte {
	raw := []byte(value)
	if len(raw)%2 == 1 {
		raw = append(raw, 0x00)
	}
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(raw)))
	return append(buf, raw...)
}

// EncodeCommand serializes a command set, elements in ascending tag order with
// the group length element first.
func EncodeCommand(msg *types.Message) []byte {
	var body []byte
	if msg.AffectedSOPClassUID != "" {
		body = appendCommandUID(body, elemAffectedSOPClassUID, msg.AffectedSOPClassUID)
	}
	if msg.RequestedSOPClassUID != "" {
		body = appendCommandUID(body, elemRequestedSOPClassUID, msg.RequestedSOPClassUID)
	}
	body = appendCommandUS(body, elemCommandField, msg.CommandField)
	if msg.IsRequest() {
		body = appendCommandUS(body, elemMessageID, msg.MessageID)
	} else {
		body = appendCommandUS(body, elemMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	}
	if msg.CommandField == types.CStoreRQ || msg.CommandField == types.CFindRQ {
		body = appendCommandUS(body, elemPriority, msg.Priority)
	}
	body = appendCommandUS(body, elemCommandDataSetType, msg.CommandDataSetType)
	if !msg.IsRequest() {
		body = appendCommandUS(body, elemStatus, msg.Status)
	}
	if msg.AffectedSOPInstanceUID != "" {
		body = appendCommandUID(body, elemAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	}
	if msg.RequestedSOPInstanceUID != "" {
		body = appendCommandUID(body, elemRequestedSOPInstanceUID, msg.RequestedSOPInstanceUID)
	}
	if msg.EventTypeID != nil {
		body = appendCommandUS(body, elemEventTypeID, *msg.EventTypeID)
	}
	if msg.ActionTypeID != nil {
		body = appendCommandUS(body, elemActionTypeID, *msg.ActionTypeID)
	}

	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, elemGroupLength)
	buf = binary.LittleEndian.AppendUint32(buf, 4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	return append(buf, body...)
}

// DecodeCommand parses a command set. Unknown group 0000 elements are skipped;
// elements outside group 0000 are a protocol violation.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{}
	offset := 0

	readUS := func(value []byte, element uint16) (uint16, error) {
		if len(value) != 2 {
			return 0, dicomerrors.NewMalformedDatasetError(offset,
				"command element (0000,%04x) has length %d, want 2", element, len(value))
		}
		return binary.LittleEndian.Uint16(value), nil
	}

	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, dicomerrors.NewMalformedDatasetError(offset, "truncated command element header")
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		valueStart := offset + 8
		valueEnd := valueStart + int(length)

		if group != 0x0000 {
			return nil, dicomerrors.NewMalformedDatasetError(offset,
				"element (%04x,%04x) outside command group", group, element)
		}
		if length%2 == 1 || valueEnd > len(data) {
			return nil, dicomerrors.NewMalformedDatasetError(offset,
				"command element (0000,%04x) has bad length %d", element, length)
		}

		value := data[valueStart:valueEnd]
		var v uint16
		var err error
		switch element {
		case elemGroupLength:
			// Informational; the PDV framing already bounds the command set.
		case elemAffectedSOPClassUID:
			msg.AffectedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
		case elemRequestedSOPClassUID:
			msg.RequestedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
		case elemCommandField:
			if v, err = readUS(value, element); err == nil {
				msg.CommandField = v
			}
		case elemMessageID:
			if v, err = readUS(value, element); err == nil {
				msg.MessageID = v
			}
		case elemMessageIDBeingRespondedTo:
			if v, err = readUS(value, element); err == nil {
				msg.MessageIDBeingRespondedTo = v
			}
		case elemPriority:
			if v, err = readUS(value, element); err == nil {
				msg.Priority = v
			}
		case elemCommandDataSetType:
			if v, err = readUS(value, element); err == nil {
				msg.CommandDataSetType = v
			}
		case elemStatus:
			if v, err = readUS(value, element); err == nil {
				msg.Status = v
			}
		case elemAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = strings.TrimRight(string(value), "\x00 ")
		case elemRequestedSOPInstanceUID:
			msg.RequestedSOPInstanceUID = strings.TrimRight(string(value), "\x00 ")
		case elemEventTypeID:
			if v, err = readUS(value, element); err == nil {
				msg.EventTypeID = &v
			}
		case elemActionTypeID:
			if v, err = readUS(value, element); err == nil {
				msg.ActionTypeID = &v
			}
		}
		if err != nil {
			return nil, err
		}
		offset = valueEnd
	}

	if msg.CommandField == 0 {
		return nil, dicomerrors.NewMalformedDatasetError(0, "command set missing command field")
	}
	return msg, nil
}
