package types

// DIMSE Command Field values
const (
	CStoreRQ        = 0x0001
	CStoreRSP       = 0x8001
	CFindRQ         = 0x0020
	CFindRSP        = 0x8020
	CEchoRQ         = 0x0030
	CEchoRSP        = 0x8030
	NEventReportRQ  = 0x0100
	NEventReportRSP = 0x8100
	NActionRQ       = 0x0130
	NActionRSP      = 0x8130
)

// DIMSE Status codes
const (
	StatusSuccess               = 0x0000
	StatusUnrecognizedOperation = 0x0211
	StatusProcessingFailure     = 0x0110
	StatusPending               = 0xFF00
	StatusPendingWithWarnings   = 0xFF01
)

// IsPendingStatus reports whether the status announces that further responses
// to the same request will follow.
func IsPendingStatus(status uint16) bool {
	return status == StatusPending || status == StatusPendingWithWarnings
}

// Command Data Set Type values (0000,0800)
const (
	DataSetPresent = 0x0000
	DataSetAbsent  = 0x0101
)

// Storage Commitment event types carried in N-EVENT-REPORT-RQ.
const (
	EventTypeCommitmentSuccess = 1
	EventTypeCommitmentFailure = 2
)

// Message represents a parsed DIMSE command set
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	RequestedSOPInstanceUID   string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16

	// N-ACTION / N-EVENT-REPORT identifiers. Pointers so that absence is
	// distinguishable from the legal zero value.
	ActionTypeID *uint16
	EventTypeID  *uint16
}

// HasDataSet reports whether the command announces an accompanying data set.
func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != DataSetAbsent
}

// IsRequest reports whether the command field denotes a request primitive.
func (m *Message) IsRequest() bool {
	return m.CommandField&0x8000 == 0
}

// ResponseCommandFor maps a DIMSE request command to its corresponding response command.
func ResponseCommandFor(request uint16) uint16 {
	switch request {
	case CStoreRQ:
		return CStoreRSP
	case CFindRQ:
		return CFindRSP
	case CEchoRQ:
		return CEchoRSP
	case NActionRQ:
		return NActionRSP
	case NEventReportRQ:
		return NEventReportRSP
	default:
		return request | 0x8000
	}
}
