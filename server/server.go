// Package server implements the SCP side of a DICOM association: it accepts
// connections, negotiates presentation contexts and hands reassembled DIMSE
// messages to a Handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/dimse"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/metrics"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

// Request is one reassembled DIMSE request together with the association
// context it arrived on.
type Request struct {
	CallingAETitle string
	Command        *types.Message
	DataSet        []byte
	TransferSyntax string
}

// Response is what a Handler returns: a command set and, optionally, a data
// set to encode in the context's negotiated transfer syntax.
type Response struct {
	Command *types.Message
	DataSet *dicom.Dataset
}

// Handler processes DIMSE requests. Returning an error aborts the
// association; protocol-level refusals belong in the response status instead.
type Handler interface {
	HandleMessage(ctx context.Context, req *Request) (*Response, error)
}

// ResponseSender delivers responses on the association while a streamed
// request is in flight.
type ResponseSender interface {
	Send(resp *Response) error
}

// StreamHandler serves operations that produce more than one response per
// request, such as C-FIND. When the configured Handler also implements
// StreamHandler, every request is routed through it instead of HandleMessage.
type StreamHandler interface {
	HandleMessageStream(ctx context.Context, req *Request, sender ResponseSender) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithACSETimeout sets the timeout for receiving the association request.
func WithACSETimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ACSETimeout = timeout
	}
}

// WithIdleTimeout sets the per-read timeout within an established
// association.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.IdleTimeout = timeout
	}
}

// WithMaxPDULength sets the maximum PDU length offered to peers.
func WithMaxPDULength(length uint32) Option {
	return func(s *Server) {
		s.MaxPDULength = length
	}
}

// WithImplementation sets the implementation identification sent in the
// A-ASSOCIATE-AC.
func WithImplementation(classUID, versionName string) Option {
	return func(s *Server) {
		s.ImplementationClassUID = classUID
		s.ImplementationVersionName = versionName
	}
}

// Server exposes a reusable DICOM listener. SupportedSyntaxes maps each
// accepted abstract syntax to the transfer syntaxes the server is willing to
// negotiate for it, in order of preference.
type Server struct {
	AETitle           string
	Handler           Handler
	SupportedSyntaxes map[string][]string
	MaxPDULength      uint32
	ACSETimeout       time.Duration // receiving A-ASSOCIATE-RQ (default: 10s)
	IdleTimeout       time.Duration // waiting for the next PDU (default: 60s)

	ImplementationClassUID    string
	ImplementationVersionName string

	Logger zerolog.Logger
}

// New builds a Server with the provided AE title, handler and supported
// syntaxes.
func New(aeTitle string, handler Handler, supported map[string][]string, opts ...Option) *Server {
	srv := &Server{
		AETitle:           aeTitle,
		Handler:           handler,
		SupportedSyntaxes: supported,
		MaxPDULength:      pdu.DefaultMaxPDULength,
		ACSETimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context is
// done or an error occurs.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.Logger.Info().
		Str("address", listener.Addr().String()).
		Str("ae_title", s.AETitle).
		Msg("DICOM server listening")

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Logger.Warn().Err(err).Msg("accept timeout")
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// assocState is the per-connection negotiated state.
type assocState struct {
	callingAE    string
	maxPDULength uint32
	contexts     map[byte]pdu.ContextResult
	abstract     map[byte]string
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.Logger.With().Stringer("remote_addr", conn.RemoteAddr()).Logger()
	logger.Info().Msg("accepted DICOM connection")

	state, err := s.establish(conn, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("association not established")
		return
	}
	metrics.AssociationsAccepted.Inc()

	logger = logger.With().Str("calling_ae", state.callingAE).Logger()
	if err := s.serveAssociation(ctx, conn, state, logger); err != nil {
		logger.Warn().Err(err).Msg("association ended with error")
	} else {
		logger.Info().Msg("association closed")
	}
}

// establish runs the acceptor side of the association handshake. A called AE
// title that does not match ours is rejected permanently with reason
// called-AE-title-not-recognized.
func (s *Server) establish(conn net.Conn, logger zerolog.Logger) (*assocState, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.ACSETimeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	p, err := pdu.ReadPDU(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read association request: %w", err)
	}
	if p.Type != pdu.TypeAssociateRQ {
		ab := &pdu.Abort{Source: 0x02}
		pdu.WritePDU(conn, pdu.TypeAbort, ab.Encode())
		return nil, fmt.Errorf("expected A-ASSOCIATE-RQ, got PDU type 0x%02x", p.Type)
	}

	rq, err := pdu.ParseAssociateRQ(p.Data)
	if err != nil {
		ab := &pdu.Abort{Source: 0x02}
		pdu.WritePDU(conn, pdu.TypeAbort, ab.Encode())
		return nil, err
	}

	if rq.CalledAETitle != s.AETitle {
		rj := &pdu.AssociateRJ{Result: 0x01, Source: 0x01, Reason: 0x07}
		if err := pdu.WritePDU(conn, pdu.TypeAssociateRJ, rj.Encode()); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("called AE title %q does not match %q", rq.CalledAETitle, s.AETitle)
	}

	state := &assocState{
		callingAE:    rq.CallingAETitle,
		maxPDULength: rq.MaxPDULength,
		contexts:     make(map[byte]pdu.ContextResult),
		abstract:     make(map[byte]string),
	}

	results := make([]pdu.ContextResult, 0, len(rq.PresentationContexts))
	for _, pc := range rq.PresentationContexts {
		res := s.negotiateContext(pc)
		results = append(results, res)
		if res.Result == pdu.ContextAccepted {
			state.contexts[pc.ID] = res
			state.abstract[pc.ID] = pc.AbstractSyntax
		}
		logger.Debug().
			Uint8("context_id", pc.ID).
			Str("abstract_syntax", pc.AbstractSyntax).
			Uint8("result", res.Result).
			Str("transfer_syntax", res.TransferSyntax).
			Msg("presentation context negotiated")
	}

	ac := &pdu.AssociateAC{
		CalledAETitle:             rq.CalledAETitle,
		CallingAETitle:            rq.CallingAETitle,
		Results:                   results,
		MaxPDULength:              s.MaxPDULength,
		ImplementationClassUID:    s.ImplementationClassUID,
		ImplementationVersionName: s.ImplementationVersionName,
	}
	if err := pdu.WritePDU(conn, pdu.TypeAssociateAC, ac.Encode()); err != nil {
		return nil, fmt.Errorf("failed to send A-ASSOCIATE-AC: %w", err)
	}

	logger.Info().
		Str("calling_ae", rq.CallingAETitle).
		Int("accepted_contexts", len(state.contexts)).
		Msg("association accepted")
	return state, nil
}

// negotiateContext picks the first proposed transfer syntax we support for
// the abstract syntax.
func (s *Server) negotiateContext(pc pdu.ProposedContext) pdu.ContextResult {
	acceptable, ok := s.SupportedSyntaxes[pc.AbstractSyntax]
	if !ok {
		return pdu.ContextResult{ID: pc.ID, Result: pdu.ContextRejectedAbstractSyntax}
	}
	for _, proposed := range pc.TransferSyntaxes {
		for _, ts := range acceptable {
			if proposed == ts {
				return pdu.ContextResult{ID: pc.ID, Result: pdu.ContextAccepted, TransferSyntax: proposed}
			}
		}
	}
	return pdu.ContextResult{ID: pc.ID, Result: pdu.ContextRejectedTransferSyntax}
}

// serveAssociation runs the established-phase PDU loop until release, abort
// or connection loss.
func (s *Server) serveAssociation(ctx context.Context, conn net.Conn, state *assocState, logger zerolog.Logger) error {
	var asm dimse.Assembler

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.IdleTimeout)); err != nil {
				return err
			}
		}

		p, err := pdu.ReadPDU(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch p.Type {
		case pdu.TypePDataTF:
			pdvs, err := pdu.ParsePDataTF(p.Data)
			if err != nil {
				s.abort(conn)
				return err
			}
			for _, pdv := range pdvs {
				done, err := asm.Add(pdv)
				if err != nil {
					s.abort(conn)
					return err
				}
				if !done {
					continue
				}
				in := asm.Take()
				if err := s.dispatch(ctx, conn, state, in, logger); err != nil {
					s.abort(conn)
					return err
				}
			}
		case pdu.TypeReleaseRQ:
			if err := pdu.WritePDU(conn, pdu.TypeReleaseRP, pdu.ReleaseBody()); err != nil {
				return err
			}
			logger.Debug().Msg("association released by peer")
			return nil
		case pdu.TypeAbort:
			ab, _ := pdu.ParseAbort(p.Data)
			if ab != nil {
				logger.Warn().Uint8("source", ab.Source).Uint8("reason", ab.Reason).Msg("peer aborted association")
			}
			return nil
		default:
			s.abort(conn)
			return fmt.Errorf("unexpected PDU type 0x%02x in established association", p.Type)
		}
	}
}

// dispatch hands one complete message to the handler and writes its response.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, state *assocState, in *dimse.IncomingMessage, logger zerolog.Logger) error {
	res, ok := state.contexts[in.ContextID]
	if !ok {
		return fmt.Errorf("%w: message on unaccepted presentation context %d", dicomerrors.ErrPresentationCtxMismatch, in.ContextID)
	}

	req := &Request{
		CallingAETitle: state.callingAE,
		Command:        in.Command,
		DataSet:        in.DataSet,
		TransferSyntax: res.TransferSyntax,
	}

	logger.Debug().
		Str("command", fmt.Sprintf("0x%04x", in.Command.CommandField)).
		Uint16("message_id", in.Command.MessageID).
		Int("data_size", len(in.DataSet)).
		Msg("dispatching DIMSE message")

	if sh, ok := s.Handler.(StreamHandler); ok {
		sender := &responseSender{
			conn:         conn,
			contextID:    in.ContextID,
			maxPDULength: state.maxPDULength,
			syntax:       res.TransferSyntax,
		}
		return sh.HandleMessageStream(ctx, req, sender)
	}

	resp, err := s.Handler.HandleMessage(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return writeResponse(conn, in.ContextID, state.maxPDULength, res.TransferSyntax, resp)
}

type responseSender struct {
	conn         net.Conn
	contextID    byte
	maxPDULength uint32
	syntax       string
}

func (r *responseSender) Send(resp *Response) error {
	return writeResponse(r.conn, r.contextID, r.maxPDULength, r.syntax, resp)
}

// writeResponse encodes the optional data set in the context's transfer syntax
// and writes the complete response message.
func writeResponse(conn net.Conn, contextID byte, maxPDULength uint32, syntax string, resp *Response) error {
	var payload []byte
	if resp.DataSet != nil {
		var err error
		payload, err = dicom.Encode(resp.DataSet, syntax)
		if err != nil {
			return fmt.Errorf("failed to encode response data set: %w", err)
		}
		resp.Command.CommandDataSetType = types.DataSetPresent
	} else {
		resp.Command.CommandDataSetType = types.DataSetAbsent
	}
	return dimse.WriteMessage(conn, contextID, maxPDULength, resp.Command, payload)
}

func (s *Server) abort(conn net.Conn) {
	ab := &pdu.Abort{Source: 0x02} // service-provider
	pdu.WritePDU(conn, pdu.TypeAbort, ab.Encode())
}
