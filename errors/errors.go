// Package errors provides DICOM-specific error types for better error handling
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// classify failures with errors.Is without inspecting concrete types.
var (
	ErrProtocolViolation         = errors.New("dicom: protocol violation")
	ErrMalformedDataset          = errors.New("dicom: malformed dataset")
	ErrAssociationRejected       = errors.New("dicom: association rejected")
	ErrAssociationTimeout        = errors.New("dicom: association timeout")
	ErrAssociationAborted        = errors.New("dicom: association aborted")
	ErrDimseTimeout              = errors.New("dicom: DIMSE timeout")
	ErrPresentationCtxMismatch   = errors.New("dicom: presentation context mismatch")
	ErrNoPresentationCtx         = errors.New("dicom: no matching presentation context")
	ErrStorageRejected           = errors.New("dicom: storage rejected by peer")
	ErrFindRejected              = errors.New("dicom: find rejected by peer")
	ErrCommitmentRejected        = errors.New("dicom: commitment action rejected by peer")
	ErrCommitmentResultTimeout   = errors.New("dicom: commitment result timeout")
	ErrDuplicateTransaction      = errors.New("dicom: duplicate transaction UID")
	ErrAssociationNotEstablished = errors.New("dicom: association not established")
)

// AssociationRejectReason represents why an association was rejected
type AssociationRejectReason byte

const (
	RejectReasonUnknown                        AssociationRejectReason = 0x00
	RejectReasonNoReasonGiven                  AssociationRejectReason = 0x01
	RejectReasonApplicationContextNotSupported AssociationRejectReason = 0x02
	RejectReasonCallingAETitleNotRecognized    AssociationRejectReason = 0x03
	RejectReasonCalledAETitleNotRecognized     AssociationRejectReason = 0x07
)

func (r AssociationRejectReason) String() string {
	switch r {
	case RejectReasonNoReasonGiven:
		return "no-reason-given"
	case RejectReasonApplicationContextNotSupported:
		return "application-context-not-supported"
	case RejectReasonCallingAETitleNotRecognized:
		return "calling-ae-title-not-recognized"
	case RejectReasonCalledAETitleNotRecognized:
		return "called-ae-title-not-recognized"
	default:
		return "unknown"
	}
}

// AssociationRejectSource represents who rejected the association
type AssociationRejectSource byte

const (
	RejectSourceUnknown         AssociationRejectSource = 0x00
	RejectSourceServiceUser     AssociationRejectSource = 0x01
	RejectSourceServiceProvider AssociationRejectSource = 0x02
)

func (s AssociationRejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProvider:
		return "service-provider"
	default:
		return "unknown"
	}
}

// AssociationError carries the result/source/reason triple from an
// A-ASSOCIATE-RJ PDU.
type AssociationError struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source AssociationRejectSource
	Reason AssociationRejectReason
}

func (e *AssociationError) Error() string {
	kind := "permanent"
	if e.Result == 2 {
		kind = "transient"
	}
	return fmt.Sprintf("association rejected (%s, source: %s, reason: %s)",
		kind, e.Source, e.Reason)
}

func (e *AssociationError) Unwrap() error { return ErrAssociationRejected }

// NewAssociationError creates a new association rejection error
func NewAssociationError(result byte, source AssociationRejectSource, reason AssociationRejectReason) *AssociationError {
	return &AssociationError{Result: result, Source: source, Reason: reason}
}

// MalformedDatasetError reports a decode failure with the byte offset at which
// decoding stopped.
type MalformedDatasetError struct {
	Offset int
	Msg    string
}

func (e *MalformedDatasetError) Error() string {
	return fmt.Sprintf("malformed dataset at offset %d: %s", e.Offset, e.Msg)
}

func (e *MalformedDatasetError) Unwrap() error { return ErrMalformedDataset }

// NewMalformedDatasetError creates a new dataset decode error
func NewMalformedDatasetError(offset int, format string, args ...any) *MalformedDatasetError {
	return &MalformedDatasetError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// PDUError represents a PDU-level protocol error, fatal to the connection.
type PDUError struct {
	PDUType byte
	Msg     string
}

func (e *PDUError) Error() string {
	return fmt.Sprintf("PDU error (type: 0x%02X): %s", e.PDUType, e.Msg)
}

func (e *PDUError) Unwrap() error { return ErrProtocolViolation }

// NewPDUError creates a new PDU error
func NewPDUError(pduType byte, format string, args ...any) *PDUError {
	return &PDUError{PDUType: pduType, Msg: fmt.Sprintf(format, args...)}
}

// AbortError represents an A-ABORT PDU received from the peer.
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	sourceStr := "unknown"
	if e.Source == 0x00 {
		sourceStr = "service-user"
	} else if e.Source == 0x02 {
		sourceStr = "service-provider"
	}
	return fmt.Sprintf("connection aborted by %s (reason: 0x%02X)", sourceStr, e.Reason)
}

func (e *AbortError) Unwrap() error { return ErrAssociationAborted }

// NewAbortError creates a new abort error
func NewAbortError(source, reason byte) *AbortError {
	return &AbortError{Source: source, Reason: reason}
}

// TimeoutError represents an expired protocol timer.
type TimeoutError struct {
	Operation string
	Kind      error // ErrAssociationTimeout, ErrDimseTimeout or ErrCommitmentResultTimeout
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s", e.Operation)
}

func (e *TimeoutError) Timeout() bool { return true }

func (e *TimeoutError) Unwrap() error { return e.Kind }

// NewTimeoutError creates a timeout error of the given kind
func NewTimeoutError(kind error, operation string) *TimeoutError {
	return &TimeoutError{Operation: operation, Kind: kind}
}

// StatusError carries a non-success DIMSE status reported by the peer. The
// status is surfaced verbatim; retry policy belongs to the caller.
type StatusError struct {
	Operation string
	Status    uint16
	Kind      error // ErrStorageRejected or ErrCommitmentRejected
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status 0x%04X", e.Operation, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// NewStatusError creates an error for a non-success DIMSE response status
func NewStatusError(kind error, operation string, status uint16) *StatusError {
	return &StatusError{Operation: operation, Status: status, Kind: kind}
}
