package dimse

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

// IncomingMessage is a fully reassembled DIMSE message: the command set and,
// when one was announced, its data set.
type IncomingMessage struct {
	ContextID byte
	Command   *types.Message
	DataSet   []byte
}

// WriteMessage encodes the command set (and optional data set) and writes them
// as P-DATA-TF PDUs. Payloads larger than the peer's maximum PDU length are
// split across fragments; a limit of zero means the peer accepts unbounded
// PDUs.
func WriteMessage(w io.Writer, contextID byte, maxPDULength uint32, msg *types.Message, dataSet []byte) error {
	pdvs := pdu.FragmentStream(contextID, true, EncodeCommand(msg), maxPDULength)
	if len(dataSet) > 0 {
		pdvs = append(pdvs, pdu.FragmentStream(contextID, false, dataSet, maxPDULength)...)
	}
	for _, p := range pdvs {
		if err := pdu.WritePDU(w, pdu.TypePDataTF, pdu.EncodePDataTF([]pdu.PDV{p})); err != nil {
			return fmt.Errorf("failed to write P-DATA-TF: %w", err)
		}
	}
	return nil
}

// Assembler reassembles one DIMSE message from a sequence of PDVs. Command and
// data set fragments accumulate independently until each stream has seen its
// last-fragment marker.
type Assembler struct {
	contextID   byte
	started     bool
	command     []byte
	commandDone bool
	msg         *types.Message
	dataSet     []byte
	dataDone    bool
}

// Add feeds one PDV into the assembler. It reports true once the message is
// complete.
func (a *Assembler) Add(p pdu.PDV) (bool, error) {
	if !a.started {
		a.contextID = p.ContextID
		a.started = true
	} else if p.ContextID != a.contextID {
		return false, fmt.Errorf("%w: PDV for context %d while assembling context %d",
			dicomerrors.ErrPresentationCtxMismatch, p.ContextID, a.contextID)
	}

	if p.IsCommand {
		if a.commandDone {
			return false, dicomerrors.NewPDUError(pdu.TypePDataTF, "command fragment after last fragment")
		}
		a.command = append(a.command, p.Data...)
		if p.IsLast {
			msg, err := DecodeCommand(a.command)
			if err != nil {
				return false, err
			}
			a.msg = msg
			a.commandDone = true
		}
	} else {
		if a.dataDone {
			return false, dicomerrors.NewPDUError(pdu.TypePDataTF, "data fragment after last fragment")
		}
		a.dataSet = append(a.dataSet, p.Data...)
		if p.IsLast {
			a.dataDone = true
		}
	}
	return a.complete(), nil
}

func (a *Assembler) complete() bool {
	if !a.commandDone {
		return false
	}
	if a.msg.HasDataSet() {
		return a.dataDone
	}
	return true
}

// Take returns the assembled message and resets the assembler for the next
// one.
func (a *Assembler) Take() *IncomingMessage {
	in := &IncomingMessage{ContextID: a.contextID, Command: a.msg, DataSet: a.dataSet}
	*a = Assembler{}
	return in
}

// ReadMessage reads P-DATA-TF PDUs from the connection until one complete
// DIMSE message has been assembled. A peer A-ABORT surfaces as an abort error
// and an expired read deadline as a DIMSE timeout attributed to operation.
func ReadMessage(conn net.Conn, timeout time.Duration, operation string) (*IncomingMessage, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	var asm Assembler
	for {
		p, err := pdu.ReadPDU(conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, dicomerrors.NewTimeoutError(dicomerrors.ErrDimseTimeout, operation)
			}
			return nil, err
		}

		switch p.Type {
		case pdu.TypePDataTF:
			pdvs, err := pdu.ParsePDataTF(p.Data)
			if err != nil {
				return nil, err
			}
			for _, pdv := range pdvs {
				done, err := asm.Add(pdv)
				if err != nil {
					return nil, err
				}
				if done {
					return asm.Take(), nil
				}
			}
		case pdu.TypeAbort:
			ab, err := pdu.ParseAbort(p.Data)
			if err != nil {
				return nil, err
			}
			return nil, dicomerrors.NewAbortError(ab.Source, ab.Reason)
		default:
			return nil, dicomerrors.NewPDUError(p.Type, "unexpected PDU while awaiting DIMSE message")
		}
	}
}
