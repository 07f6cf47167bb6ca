package commitment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/metrics"
	"github.com/ltmonitor/dicomharness/server"
	"github.com/ltmonitor/dicomharness/types"
)

// Listener handles the inbound side of storage commitment: it accepts
// N-EVENT-REPORT requests carrying transaction results and answers C-ECHO
// probes. It implements server.Handler.
type Listener struct {
	table  *Table
	logger zerolog.Logger
}

// NewListener creates a listener resolving results against table.
func NewListener(table *Table, logger zerolog.Logger) *Listener {
	return &Listener{table: table, logger: logger}
}

// SupportedSyntaxes returns the abstract syntaxes the listener negotiates,
// suitable for server.New.
func SupportedSyntaxes() map[string][]string {
	transfer := []string{
		types.ExplicitVRLittleEndian,
		types.ImplicitVRLittleEndian,
	}
	return map[string][]string{
		types.VerificationSOPClass:       transfer,
		types.StorageCommitmentPushModel: transfer,
	}
}

// HandleMessage routes one DIMSE request. The event report response is always
// success: commitment results are acknowledged even when they report
// failures, since the failure is the archive's verdict, not a protocol error.
// Commands other than N-EVENT-REPORT-RQ and C-ECHO-RQ are answered with
// status unrecognized-operation.
func (l *Listener) HandleMessage(_ context.Context, req *server.Request) (*server.Response, error) {
	switch req.Command.CommandField {
	case types.CEchoRQ:
		return &server.Response{Command: &types.Message{
			CommandField:              types.CEchoRSP,
			MessageIDBeingRespondedTo: req.Command.MessageID,
			AffectedSOPClassUID:       types.VerificationSOPClass,
			Status:                    types.StatusSuccess,
		}}, nil
	case types.NEventReportRQ:
		return l.handleEventReport(req), nil
	default:
		l.logger.Warn().
			Uint16("command", req.Command.CommandField).
			Msg("unexpected DIMSE command on listener")
		metrics.EventReportsReceived.WithLabelValues(metrics.DispositionUnexpected).Inc()
		return &server.Response{Command: &types.Message{
			CommandField:              types.ResponseCommandFor(req.Command.CommandField),
			MessageIDBeingRespondedTo: req.Command.MessageID,
			Status:                    types.StatusUnrecognizedOperation,
		}}, nil
	}
}

func (l *Listener) handleEventReport(req *server.Request) *server.Response {
	rsp := &server.Response{Command: &types.Message{
		CommandField:              types.NEventReportRSP,
		MessageIDBeingRespondedTo: req.Command.MessageID,
		AffectedSOPClassUID:       types.StorageCommitmentPushModel,
		AffectedSOPInstanceUID:    types.StorageCommitmentPushModelInstance,
		Status:                    types.StatusSuccess,
		EventTypeID:               req.Command.EventTypeID,
	}}

	result, err := parseEventReport(req)
	if err != nil {
		l.logger.Warn().Err(err).Msg("malformed commitment event report")
		metrics.EventReportsReceived.WithLabelValues(metrics.DispositionIgnored).Inc()
		return rsp
	}

	if l.table.Resolve(*result) {
		metrics.EventReportsReceived.WithLabelValues(metrics.DispositionCorrelated).Inc()
		l.logger.Debug().
			Str("transaction_uid", result.TransactionUID).
			Uint16("event_type", result.EventTypeID).
			Msg("commitment result correlated")
	} else {
		// A result for a transaction we never issued (or already timed out)
		// is acknowledged but dropped.
		metrics.EventReportsReceived.WithLabelValues(metrics.DispositionIgnored).Inc()
		l.logger.Warn().
			Str("transaction_uid", result.TransactionUID).
			Msg("commitment result for unknown transaction ignored")
	}
	return rsp
}

// parseEventReport extracts the commitment result from the event information
// data set.
func parseEventReport(req *server.Request) (*Result, error) {
	ds, err := dicom.Decode(req.DataSet, req.TransferSyntax)
	if err != nil {
		return nil, err
	}

	transactionUID := ds.GetString(types.TagTransactionUID)
	if transactionUID == "" {
		return nil, fmt.Errorf("event information missing transaction UID")
	}

	result := &Result{TransactionUID: transactionUID}
	if req.Command.EventTypeID != nil {
		result.EventTypeID = *req.Command.EventTypeID
	}

	if items, ok := ds.GetSequence(types.TagReferencedSOPSequence); ok {
		for _, item := range items {
			ref, err := parseSOPReference(item)
			if err != nil {
				return nil, err
			}
			result.Committed = append(result.Committed, *ref)
		}
	}

	if items, ok := ds.GetSequence(types.TagFailedSOPSequence); ok {
		for _, item := range items {
			ref, err := parseSOPReference(item)
			if err != nil {
				return nil, err
			}
			reason, ok := item.GetUint16(types.TagFailureReason)
			if !ok {
				return nil, fmt.Errorf("failed SOP item missing failure reason")
			}
			result.Failed = append(result.Failed, FailedSOPReference{
				SOPReference:  *ref,
				FailureReason: reason,
			})
		}
	}

	return result, nil
}

func parseSOPReference(item *dicom.Dataset) (*SOPReference, error) {
	classUID := item.GetString(types.TagReferencedSOPClassUID)
	instanceUID := item.GetString(types.TagReferencedSOPInstanceUID)
	if classUID == "" || instanceUID == "" {
		return nil, fmt.Errorf("SOP reference item missing class or instance UID")
	}
	return &SOPReference{SOPClassUID: classUID, SOPInstanceUID: instanceUID}, nil
}
