package client

import (
	"fmt"

	"github.com/ltmonitor/dicomharness/dicom"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// StoreResult reports the outcome of one C-STORE exchange.
type StoreResult struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
}

// StoreInstance sends a data set via C-STORE and waits for the response. The
// data set is encoded in the transfer syntax negotiated for its SOP class; a
// non-success status surfaces as a storage rejection error alongside the
// result.
func (a *Association) StoreInstance(ds *dicom.Dataset) (*StoreResult, error) {
	sopClassUID := ds.GetString(types.TagSOPClassUID)
	if sopClassUID == "" {
		return nil, fmt.Errorf("data set missing SOP class UID")
	}
	sopInstanceUID := ds.GetString(types.TagSOPInstanceUID)
	if sopInstanceUID == "" {
		return nil, fmt.Errorf("data set missing SOP instance UID")
	}

	ctx, err := a.PresentationContextFor(sopClassUID)
	if err != nil {
		return nil, err
	}

	payload, err := dicom.Encode(ds, ctx.TransferSyntax)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data set: %w", err)
	}

	msg := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              a.NextMessageID(),
		Priority:               0x0000, // medium
		CommandDataSetType:     types.DataSetPresent,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
	}

	a.logger.Debug().
		Str("sop_class", sopClassUID).
		Str("sop_instance", sopInstanceUID).
		Str("transfer_syntax", ctx.TransferSyntax).
		Int("data_size", len(payload)).
		Msg("sending C-STORE-RQ")

	in, err := a.exchange(ctx, "C-STORE-RSP", msg, payload)
	if err != nil {
		return nil, err
	}
	if in.Command.CommandField != types.CStoreRSP {
		a.abortOnViolation()
		return nil, fmt.Errorf("%w: unexpected command 0x%04x while awaiting C-STORE-RSP",
			dicomerrors.ErrProtocolViolation, in.Command.CommandField)
	}

	result := &StoreResult{
		Status:         in.Command.Status,
		MessageID:      in.Command.MessageIDBeingRespondedTo,
		SOPClassUID:    sopClassUID,
		SOPInstanceUID: sopInstanceUID,
		TransferSyntax: ctx.TransferSyntax,
	}
	if in.Command.Status != types.StatusSuccess {
		return result, dicomerrors.NewStatusError(dicomerrors.ErrStorageRejected, "C-STORE", in.Command.Status)
	}

	a.logger.Info().
		Str("sop_instance", sopInstanceUID).
		Msg("instance stored")
	return result, nil
}
