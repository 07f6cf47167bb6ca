package client

import (
	"fmt"

	"github.com/ltmonitor/dicomharness/dicom"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// SendNAction issues an N-ACTION request against the given SOP class and
// instance and waits for the response. The action information data set is
// encoded in the transfer syntax of the negotiated context. A non-success
// status surfaces as a commitment rejection error.
func (a *Association) SendNAction(sopClassUID, sopInstanceUID string, actionTypeID uint16, actionInfo *dicom.Dataset) (uint16, error) {
	ctx, err := a.PresentationContextFor(sopClassUID)
	if err != nil {
		return 0, err
	}

	var payload []byte
	dataSetType := uint16(types.DataSetAbsent)
	if actionInfo != nil {
		payload, err = dicom.Encode(actionInfo, ctx.TransferSyntax)
		if err != nil {
			return 0, fmt.Errorf("failed to encode action information: %w", err)
		}
		dataSetType = types.DataSetPresent
	}

	msg := &types.Message{
		CommandField:            types.NActionRQ,
		MessageID:               a.NextMessageID(),
		CommandDataSetType:      dataSetType,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		ActionTypeID:            &actionTypeID,
	}

	a.logger.Debug().
		Str("sop_class", sopClassUID).
		Uint16("action_type", actionTypeID).
		Msg("sending N-ACTION-RQ")

	in, err := a.exchange(ctx, "N-ACTION-RSP", msg, payload)
	if err != nil {
		return 0, err
	}
	if in.Command.CommandField != types.NActionRSP {
		a.abortOnViolation()
		return 0, fmt.Errorf("%w: unexpected command 0x%04x while awaiting N-ACTION-RSP",
			dicomerrors.ErrProtocolViolation, in.Command.CommandField)
	}

	if in.Command.Status != types.StatusSuccess {
		return in.Command.Status, dicomerrors.NewStatusError(
			dicomerrors.ErrCommitmentRejected, "N-ACTION", in.Command.Status)
	}
	return in.Command.Status, nil
}
