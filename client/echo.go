package client

import (
	"fmt"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/types"
)

// Verify performs a C-ECHO exchange and returns the response status.
func (a *Association) Verify() (uint16, error) {
	ctx, err := a.PresentationContextFor(types.VerificationSOPClass)
	if err != nil {
		return 0, err
	}

	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           a.NextMessageID(),
		CommandDataSetType:  types.DataSetAbsent,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}

	in, err := a.exchange(ctx, "C-ECHO-RSP", msg, nil)
	if err != nil {
		return 0, err
	}
	if in.Command.CommandField != types.CEchoRSP {
		a.abortOnViolation()
		return 0, fmt.Errorf("%w: unexpected command 0x%04x while awaiting C-ECHO-RSP",
			dicomerrors.ErrProtocolViolation, in.Command.CommandField)
	}

	a.logger.Debug().Uint16("status", in.Command.Status).Msg("C-ECHO completed")
	return in.Command.Status, nil
}
