package pdu

import (
	"encoding/binary"
	"fmt"
	"strings"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// Variable item types inside A-ASSOCIATE PDUs
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	itemMaxPDULength          = 0x51
	itemImplementationClass   = 0x52
	itemImplementationVersion = 0x55
)

// Presentation context negotiation results
const (
	ContextAccepted               byte = 0x00
	ContextRejectedUser           byte = 0x01
	ContextRejectedNoReason       byte = 0x02
	ContextRejectedAbstractSyntax byte = 0x03
	ContextRejectedTransferSyntax byte = 0x04
)

// DefaultMaxPDULength is offered when the caller does not set one.
const DefaultMaxPDULength = 16384

// ProposedContext is a presentation context offered in an A-ASSOCIATE-RQ: one
// abstract syntax with the transfer syntaxes the requestor can use for it.
type ProposedContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// ContextResult is the acceptor's verdict on one proposed context.
type ContextResult struct {
	ID             byte
	Result         byte
	TransferSyntax string // set only when Result == ContextAccepted
}

// AssociateRQ represents an A-ASSOCIATE-RQ PDU
type AssociateRQ struct {
	ProtocolVersion           uint16
	CalledAETitle             string
	CallingAETitle            string
	PresentationContexts      []ProposedContext
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
}

// AssociateAC represents an A-ASSOCIATE-AC PDU
type AssociateAC struct {
	ProtocolVersion           uint16
	CalledAETitle             string
	CallingAETitle            string
	Results                   []ContextResult
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
}

// AssociateRJ represents an A-ASSOCIATE-RJ PDU
type AssociateRJ struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source byte
	Reason byte
}

// Abort represents an A-ABORT PDU
type Abort struct {
	Source byte
	Reason byte
}

func padAETitle(title string) []byte {
	if len(title) > 16 {
		title = title[:16]
	}
	return []byte(fmt.Sprintf("%-16s", title))
}

func trimAETitle(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func normalizeUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

func (rq *AssociateRQ) fixedFields() []byte {
	fixed := make([]byte, 68)
	version := rq.ProtocolVersion
	if version == 0 {
		version = 1
	}
	binary.BigEndian.PutUint16(fixed[0:2], version)
	copy(fixed[4:20], padAETitle(rq.CalledAETitle))
	copy(fixed[20:36], padAETitle(rq.CallingAETitle))
	return fixed
}

func (rq *AssociateRQ) userInformation() []byte {
	maxLen := rq.MaxPDULength
	if maxLen == 0 {
		maxLen = DefaultMaxPDULength
	}
	var userInfo []byte
	userInfo = appendItem(userInfo, itemMaxPDULength, binary.BigEndian.AppendUint32(nil, maxLen))
	if rq.ImplementationClassUID != "" {
		userInfo = appendItem(userInfo, itemImplementationClass, []byte(rq.ImplementationClassUID))
	}
	if rq.ImplementationVersionName != "" {
		userInfo = appendItem(userInfo, itemImplementationVersion, []byte(rq.ImplementationVersionName))
	}
	return userInfo
}

// Encode serializes the A-ASSOCIATE-RQ body (without the 6-byte PDU header).
func (rq *AssociateRQ) Encode() []byte {
	buf := rq.fixedFields()
	buf = appendItem(buf, itemApplicationContext, []byte(types.ApplicationContextUID))

	for _, pc := range rq.PresentationContexts {
		var body []byte
		body = append(body, pc.ID, 0x00, 0x00, 0x00)
		body = appendItem(body, itemAbstractSyntax, []byte(pc.AbstractSyntax))
		for _, ts := range pc.TransferSyntaxes {
			body = appendItem(body, itemTransferSyntax, []byte(ts))
		}
		buf = appendItem(buf, itemPresentationContextRQ, body)
	}

	return appendItem(buf, itemUserInformation, rq.userInformation())
}

// Encode serializes the A-ASSOCIATE-AC body (without the 6-byte PDU header).
func (ac *AssociateAC) Encode() []byte {
	rq := AssociateRQ{
		ProtocolVersion:           ac.ProtocolVersion,
		CalledAETitle:             ac.CalledAETitle,
		CallingAETitle:            ac.CallingAETitle,
		MaxPDULength:              ac.MaxPDULength,
		ImplementationClassUID:    ac.ImplementationClassUID,
		ImplementationVersionName: ac.ImplementationVersionName,
	}
	buf := rq.fixedFields()
	buf = appendItem(buf, itemApplicationContext, []byte(types.ApplicationContextUID))

	for _, res := range ac.Results {
		var body []byte
		body = append(body, res.ID, 0x00, res.Result, 0x00)
		if res.Result == ContextAccepted {
			body = appendItem(body, itemTransferSyntax, []byte(res.TransferSyntax))
		}
		buf = appendItem(buf, itemPresentationContextAC, body)
	}

	return appendItem(buf, itemUserInformation, rq.userInformation())
}

// Encode serializes the A-ASSOCIATE-RJ body.
func (rj *AssociateRJ) Encode() []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

// ParseAssociateRJ decodes an A-ASSOCIATE-RJ body.
func ParseAssociateRJ(data []byte) (*AssociateRJ, error) {
	if len(data) < 4 {
		return nil, dicomerrors.NewPDUError(TypeAssociateRJ, "body too short: %d bytes", len(data))
	}
	return &AssociateRJ{Result: data[1], Source: data[2], Reason: data[3]}, nil
}

// Encode serializes the A-ABORT body.
func (a *Abort) Encode() []byte {
	return []byte{0x00, 0x00, a.Source, a.Reason}
}

// ParseAbort decodes an A-ABORT body.
func ParseAbort(data []byte) (*Abort, error) {
	if len(data) < 4 {
		return nil, dicomerrors.NewPDUError(TypeAbort, "body too short: %d bytes", len(data))
	}
	return &Abort{Source: data[2], Reason: data[3]}, nil
}

// ReleaseBody is the body shared by A-RELEASE-RQ and A-RELEASE-RP: four
// reserved zero bytes.
func ReleaseBody() []byte {
	return []byte{0x00, 0x00, 0x00, 0x00}
}

// forEachItem walks the TLV items in data, calling fn with each item's type
// and value.
func forEachItem(pduType byte, data []byte, fn func(itemType byte, value []byte) error) error {
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(itemLength)
		if valueEnd > len(data) {
			return dicomerrors.NewPDUError(pduType, "item 0x%02x exceeds PDU length", itemType)
		}
		if err := fn(itemType, data[valueStart:valueEnd]); err != nil {
			return err
		}
		offset = valueEnd
	}
	if offset != len(data) {
		return dicomerrors.NewPDUError(pduType, "trailing bytes after last item")
	}
	return nil
}

// parseUserInformation extracts the negotiation values from a user
// information item.
func parseUserInformation(pduType byte, data []byte) (maxPDU uint32, implClass, implVersion string, err error) {
	err = forEachItem(pduType, data, func(itemType byte, value []byte) error {
		switch itemType {
		case itemMaxPDULength:
			if len(value) != 4 {
				return dicomerrors.NewPDUError(pduType, "max PDU length sub-item has %d bytes", len(value))
			}
			maxPDU = binary.BigEndian.Uint32(value)
		case itemImplementationClass:
			implClass = normalizeUID(value)
		case itemImplementationVersion:
			implVersion = strings.TrimRight(string(value), "\x00 ")
		}
		return nil
	})
	return
}

// ParseAssociateRQ decodes an A-ASSOCIATE-RQ body.
func ParseAssociateRQ(data []byte) (*AssociateRQ, error) {
	if len(data) < 68 {
		return nil, dicomerrors.NewPDUError(TypeAssociateRQ, "body too short: %d bytes", len(data))
	}

	rq := &AssociateRQ{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   trimAETitle(data[4:20]),
		CallingAETitle:  trimAETitle(data[20:36]),
	}

	err := forEachItem(TypeAssociateRQ, data[68:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemPresentationContextRQ:
			pc, err := parseProposedContext(value)
			if err != nil {
				return err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, *pc)
		case itemUserInformation:
			maxPDU, implClass, implVersion, err := parseUserInformation(TypeAssociateRQ, value)
			if err != nil {
				return err
			}
			rq.MaxPDULength = maxPDU
			rq.ImplementationClassUID = implClass
			rq.ImplementationVersionName = implVersion
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rq, nil
}

func parseProposedContext(data []byte) (*ProposedContext, error) {
	if len(data) < 4 {
		return nil, dicomerrors.NewPDUError(TypeAssociateRQ, "presentation context too short: %d bytes", len(data))
	}
	pc := &ProposedContext{ID: data[0]}
	err := forEachItem(TypeAssociateRQ, data[4:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemAbstractSyntax:
			pc.AbstractSyntax = normalizeUID(value)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, normalizeUID(value))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pc.AbstractSyntax == "" {
		return nil, dicomerrors.NewPDUError(TypeAssociateRQ, "presentation context %d missing abstract syntax", pc.ID)
	}
	return pc, nil
}

// ParseAssociateAC decodes an A-ASSOCIATE-AC body.
func ParseAssociateAC(data []byte) (*AssociateAC, error) {
	if len(data) < 68 {
		return nil, dicomerrors.NewPDUError(TypeAssociateAC, "body too short: %d bytes", len(data))
	}

	ac := &AssociateAC{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   trimAETitle(data[4:20]),
		CallingAETitle:  trimAETitle(data[20:36]),
	}

	err := forEachItem(TypeAssociateAC, data[68:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemPresentationContextAC:
			if len(value) < 4 {
				return dicomerrors.NewPDUError(TypeAssociateAC, "presentation context result too short")
			}
			res := ContextResult{ID: value[0], Result: value[2]}
			err := forEachItem(TypeAssociateAC, value[4:], func(subType byte, subValue []byte) error {
				if subType == itemTransferSyntax {
					res.TransferSyntax = normalizeUID(subValue)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if res.Result == ContextAccepted && res.TransferSyntax == "" {
				return dicomerrors.NewPDUError(TypeAssociateAC, "accepted context %d missing transfer syntax", res.ID)
			}
			ac.Results = append(ac.Results, res)
		case itemUserInformation:
			maxPDU, implClass, implVersion, err := parseUserInformation(TypeAssociateAC, value)
			if err != nil {
				return err
			}
			ac.MaxPDULength = maxPDU
			ac.ImplementationClassUID = implClass
			ac.ImplementationVersionName = implVersion
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ac, nil
}
