// Package client implements the SCU side of a DICOM association: association
// establishment, the storage and verification services, and the storage
// commitment N-ACTION request.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/dimse"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

// State tracks the association lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateEstablished
	StateReleasing
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateEstablished:
		return "established"
	case StateReleasing:
		return "releasing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config holds client association configuration
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	Contexts       []pdu.ProposedContext
	MaxPDULength   uint32

	ConnectTimeout time.Duration // TCP connect (default: 10s)
	ACSETimeout    time.Duration // association establishment and release (default: 10s)
	DIMSETimeout   time.Duration // waiting for a DIMSE response (default: 30s)

	ImplementationClassUID    string
	ImplementationVersionName string

	Logger zerolog.Logger
}

// AcceptedContext is a presentation context the peer accepted, with the
// transfer syntax it selected.
type AcceptedContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
}

// Association represents a client-side DICOM association
type Association struct {
	conn             net.Conn
	cfg              Config
	state            State
	peerMaxPDULength uint32
	accepted         map[byte]AcceptedContext
	nextMessageID    uint16
	logger           zerolog.Logger
}

// Connect dials the SCP and negotiates an association. A rejection surfaces
// as an association error carrying the peer's result, source and reason.
func Connect(address string, cfg Config) (*Association, error) {
	if cfg.MaxPDULength == 0 {
		cfg.MaxPDULength = pdu.DefaultMaxPDULength
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ACSETimeout == 0 {
		cfg.ACSETimeout = 10 * time.Second
	}
	if cfg.DIMSETimeout == 0 {
		cfg.DIMSETimeout = 30 * time.Second
	}
	if len(cfg.Contexts) == 0 {
		return nil, fmt.Errorf("no presentation contexts to propose")
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	a := &Association{
		conn:   conn,
		cfg:    cfg,
		state:  StateRequesting,
		logger: cfg.Logger.With().Str("called_ae", cfg.CalledAETitle).Str("remote_addr", address).Logger(),
	}

	if err := a.negotiate(); err != nil {
		conn.Close()
		a.state = StateClosed
		return nil, err
	}

	a.state = StateEstablished
	a.logger.Info().
		Str("calling_ae", cfg.CallingAETitle).
		Int("accepted_contexts", len(a.accepted)).
		Uint32("peer_max_pdu", a.peerMaxPDULength).
		Msg("association established")
	return a, nil
}

func (a *Association) negotiate() error {
	rq := &pdu.AssociateRQ{
		CalledAETitle:             a.cfg.CalledAETitle,
		CallingAETitle:            a.cfg.CallingAETitle,
		PresentationContexts:      a.cfg.Contexts,
		MaxPDULength:              a.cfg.MaxPDULength,
		ImplementationClassUID:    a.cfg.ImplementationClassUID,
		ImplementationVersionName: a.cfg.ImplementationVersionName,
	}
	if err := pdu.WritePDU(a.conn, pdu.TypeAssociateRQ, rq.Encode()); err != nil {
		return fmt.Errorf("failed to send A-ASSOCIATE-RQ: %w", err)
	}

	if err := a.conn.SetReadDeadline(time.Now().Add(a.cfg.ACSETimeout)); err != nil {
		return err
	}
	defer a.conn.SetReadDeadline(time.Time{})

	p, err := pdu.ReadPDU(a.conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return dicomerrors.NewTimeoutError(dicomerrors.ErrAssociationTimeout, "A-ASSOCIATE-AC")
		}
		return fmt.Errorf("failed to read association response: %w", err)
	}

	switch p.Type {
	case pdu.TypeAssociateAC:
		ac, err := pdu.ParseAssociateAC(p.Data)
		if err != nil {
			return err
		}
		return a.applyAccept(ac)
	case pdu.TypeAssociateRJ:
		rj, err := pdu.ParseAssociateRJ(p.Data)
		if err != nil {
			return err
		}
		a.logger.Warn().
			Uint8("result", rj.Result).
			Uint8("source", rj.Source).
			Uint8("reason", rj.Reason).
			Msg("association rejected")
		return dicomerrors.NewAssociationError(rj.Result,
			dicomerrors.AssociationRejectSource(rj.Source),
			dicomerrors.AssociationRejectReason(rj.Reason))
	case pdu.TypeAbort:
		ab, err := pdu.ParseAbort(p.Data)
		if err != nil {
			return err
		}
		return dicomerrors.NewAbortError(ab.Source, ab.Reason)
	default:
		return dicomerrors.NewPDUError(p.Type, "unexpected PDU during association establishment")
	}
}

// applyAccept validates the acceptor's verdicts against what was proposed and
// records the accepted contexts.
func (a *Association) applyAccept(ac *pdu.AssociateAC) error {
	proposed := make(map[byte]pdu.ProposedContext, len(a.cfg.Contexts))
	for _, pc := range a.cfg.Contexts {
		proposed[pc.ID] = pc
	}

	a.accepted = make(map[byte]AcceptedContext)
	for _, res := range ac.Results {
		pc, ok := proposed[res.ID]
		if !ok {
			return dicomerrors.NewPDUError(pdu.TypeAssociateAC, "result for unproposed context %d", res.ID)
		}
		if res.Result != pdu.ContextAccepted {
			a.logger.Debug().
				Uint8("context_id", res.ID).
				Str("abstract_syntax", pc.AbstractSyntax).
				Uint8("result", res.Result).
				Msg("presentation context rejected")
			continue
		}
		offered := false
		for _, ts := range pc.TransferSyntaxes {
			if ts == res.TransferSyntax {
				offered = true
				break
			}
		}
		if !offered {
			return dicomerrors.NewPDUError(pdu.TypeAssociateAC,
				"context %d accepted with unproposed transfer syntax %s", res.ID, res.TransferSyntax)
		}
		a.accepted[res.ID] = AcceptedContext{
			ID:             res.ID,
			AbstractSyntax: pc.AbstractSyntax,
			TransferSyntax: res.TransferSyntax,
		}
	}

	a.peerMaxPDULength = ac.MaxPDULength
	return nil
}

// PresentationContextFor returns the accepted context for the given abstract
// syntax.
func (a *Association) PresentationContextFor(abstractSyntax string) (AcceptedContext, error) {
	for _, ctx := range a.accepted {
		if ctx.AbstractSyntax == abstractSyntax {
			return ctx, nil
		}
	}
	return AcceptedContext{}, fmt.Errorf("%w: %s", dicomerrors.ErrNoPresentationCtx, abstractSyntax)
}

// NextMessageID returns a fresh message ID, skipping zero on wrap.
func (a *Association) NextMessageID() uint16 {
	a.nextMessageID++
	if a.nextMessageID == 0 {
		a.nextMessageID = 1
	}
	return a.nextMessageID
}

// State returns the current association state.
func (a *Association) State() State {
	return a.state
}

// exchange sends one DIMSE request and waits for the matching response on the
// same presentation context.
func (a *Association) exchange(ctx AcceptedContext, operation string, msg *types.Message, dataSet []byte) (*dimse.IncomingMessage, error) {
	if a.state != StateEstablished {
		return nil, dicomerrors.ErrAssociationNotEstablished
	}

	if err := dimse.WriteMessage(a.conn, ctx.ID, a.peerMaxPDULength, msg, dataSet); err != nil {
		return nil, err
	}

	in, err := dimse.ReadMessage(a.conn, a.cfg.DIMSETimeout, operation)
	if err != nil {
		if errors.Is(err, dicomerrors.ErrAssociationAborted) {
			a.state = StateAborted
			a.conn.Close()
		}
		return nil, err
	}
	if in.ContextID != ctx.ID {
		a.abortOnViolation()
		return nil, fmt.Errorf("%w: response on context %d, request on %d",
			dicomerrors.ErrPresentationCtxMismatch, in.ContextID, ctx.ID)
	}
	if in.Command.MessageIDBeingRespondedTo != msg.MessageID {
		a.abortOnViolation()
		return nil, dicomerrors.NewPDUError(pdu.TypePDataTF,
			"response to message %d while awaiting %d",
			in.Command.MessageIDBeingRespondedTo, msg.MessageID)
	}
	return in, nil
}

// abortOnViolation tears the association down after a protocol violation.
func (a *Association) abortOnViolation() {
	a.writeAbort(0x02, 0x00) // service-provider, reason not specified
}

// Abort sends an A-ABORT and closes the connection immediately.
func (a *Association) Abort() error {
	return a.writeAbort(0x00, 0x00) // service-user
}

func (a *Association) writeAbort(source, reason byte) error {
	if a.state == StateClosed || a.state == StateAborted {
		return nil
	}
	ab := &pdu.Abort{Source: source, Reason: reason}
	err := pdu.WritePDU(a.conn, pdu.TypeAbort, ab.Encode())
	a.conn.Close()
	a.state = StateAborted
	a.logger.Warn().Uint8("source", source).Msg("association aborted")
	return err
}

// Release performs the graceful release handshake and closes the connection.
func (a *Association) Release() error {
	if a.state != StateEstablished {
		return dicomerrors.ErrAssociationNotEstablished
	}
	a.state = StateReleasing

	if err := pdu.WritePDU(a.conn, pdu.TypeReleaseRQ, pdu.ReleaseBody()); err != nil {
		a.conn.Close()
		a.state = StateClosed
		return fmt.Errorf("failed to send A-RELEASE-RQ: %w", err)
	}

	if err := a.conn.SetReadDeadline(time.Now().Add(a.cfg.ACSETimeout)); err == nil {
		defer a.conn.SetReadDeadline(time.Time{})
		for {
			p, err := pdu.ReadPDU(a.conn)
			if err != nil {
				a.logger.Debug().Err(err).Msg("release response not received")
				break
			}
			if p.Type == pdu.TypeReleaseRP {
				break
			}
			// Outstanding P-DATA-TF may still arrive during release; drain it.
			if p.Type != pdu.TypePDataTF {
				a.logger.Debug().Uint8("pdu_type", p.Type).Msg("unexpected PDU during release")
				break
			}
		}
	}

	a.state = StateClosed
	a.logger.Info().Msg("association released")
	return a.conn.Close()
}
