package server

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/dimse"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

func TestDispatch_UnacceptedContext(t *testing.T) {
	s := &Server{Logger: zerolog.Nop()}
	state := &assocState{contexts: map[byte]pdu.ContextResult{}}
	in := &dimse.IncomingMessage{
		ContextID: 5,
		Command:   &types.Message{CommandField: types.CStoreRQ},
	}

	err := s.dispatch(context.Background(), nil, state, in, zerolog.Nop())
	if !errors.Is(err, dicomerrors.ErrPresentationCtxMismatch) {
		t.Fatalf("dispatch error = %v, want ErrPresentationCtxMismatch", err)
	}
}
