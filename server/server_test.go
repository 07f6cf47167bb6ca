package server_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ltmonitor/dicomharness/client"
	"github.com/ltmonitor/dicomharness/dicom"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/imagegen"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/server"
	"github.com/ltmonitor/dicomharness/types"
)

// echoStoreHandler answers C-ECHO and C-STORE with success and records what it
// received.
type echoStoreHandler struct {
	stored []*server.Request
}

func (h *echoStoreHandler) HandleMessage(_ context.Context, req *server.Request) (*server.Response, error) {
	cmd := &types.Message{
		CommandField:              types.ResponseCommandFor(req.Command.CommandField),
		MessageIDBeingRespondedTo: req.Command.MessageID,
		AffectedSOPClassUID:       req.Command.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.Command.AffectedSOPInstanceUID,
		CommandDataSetType:        types.DataSetAbsent,
		Status:                    types.StatusSuccess,
	}
	if req.Command.CommandField == types.CStoreRQ {
		h.stored = append(h.stored, req)
	}
	return &server.Response{Command: cmd}, nil
}

func startServer(t *testing.T, handler server.Handler) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New("IM", handler, map[string][]string{
		types.VerificationSOPClass:         {types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
		types.SecondaryCaptureImageStorage: {types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
	}, server.WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return listener.Addr().String()
}

func defaultContexts() []pdu.ProposedContext {
	return []pdu.ProposedContext{
		{
			ID:               1,
			AbstractSyntax:   types.VerificationSOPClass,
			TransferSyntaxes: []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
		},
		{
			ID:               3,
			AbstractSyntax:   types.SecondaryCaptureImageStorage,
			TransferSyntaxes: []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
		},
	}
}

func testInstance() *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.Add(dicom.NewStringElement(types.TagSOPClassUID, types.VR_UI, types.SecondaryCaptureImageStorage))
	ds.Add(dicom.NewStringElement(types.TagSOPInstanceUID, types.VR_UI, dicom.NewUID()))
	ds.Add(dicom.NewStringElement(types.TagPatientName, types.VR_PN, "DOE^JANE"))
	ds.Add(dicom.NewStringElement(types.TagModality, types.VR_CS, "OT"))
	return ds
}

func TestClientServer_EchoAndStore(t *testing.T) {
	handler := &echoStoreHandler{}
	addr := startServer(t, handler)

	assoc, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts:       defaultContexts(),
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Equal(t, client.StateEstablished, assoc.State())

	status, err := assoc.Verify()
	require.NoError(t, err)
	require.Equal(t, uint16(types.StatusSuccess), status)

	instance := testInstance()
	result, err := assoc.StoreInstance(instance)
	require.NoError(t, err)
	require.Equal(t, uint16(types.StatusSuccess), result.Status)
	require.Equal(t, instance.GetString(types.TagSOPInstanceUID), result.SOPInstanceUID)

	require.NoError(t, assoc.Release())
	require.Equal(t, client.StateClosed, assoc.State())

	require.Len(t, handler.stored, 1)
	req := handler.stored[0]
	require.Equal(t, "LTMONITOR", req.CallingAETitle)

	// The stored payload decodes under the negotiated transfer syntax.
	ds, err := dicom.Decode(req.DataSet, req.TransferSyntax)
	require.NoError(t, err)
	require.Equal(t, "DOE^JANE", ds.GetString(types.TagPatientName))
}

func TestClientServer_StoreGeneratedImage(t *testing.T) {
	handler := &echoStoreHandler{}
	addr := startServer(t, handler)

	contexts := []pdu.ProposedContext{
		{
			ID:               1,
			AbstractSyntax:   types.SecondaryCaptureImageStorage,
			TransferSyntaxes: []string{types.ImplicitVRLittleEndian},
		},
	}
	assoc, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts:       contexts,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	defer assoc.Release()

	instance, err := imagegen.NewInstance(imagegen.Options{
		Flavor:  imagegen.Monochrome,
		Rows:    16,
		Columns: 16,
	})
	require.NoError(t, err)

	result, err := assoc.StoreInstance(instance)
	require.NoError(t, err)
	require.Equal(t, uint16(types.StatusSuccess), result.Status)
	require.Equal(t, types.ImplicitVRLittleEndian, result.TransferSyntax)

	require.Len(t, handler.stored, 1)
	ds, err := dicom.Decode(handler.stored[0].DataSet, types.ImplicitVRLittleEndian)
	require.NoError(t, err)
	rows, _ := ds.GetUint16(types.TagRows)
	require.Equal(t, uint16(16), rows)
	require.Equal(t, "MONOCHROME2", ds.GetString(types.TagPhotometricInterpretation))
}

func TestClientServer_AcceptorPicksSupportedSyntax(t *testing.T) {
	// Acceptor only supports the second proposed syntax; that one wins.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New("IM", &echoStoreHandler{}, map[string][]string{
		types.SecondaryCaptureImageStorage: {types.ImplicitVRLittleEndian},
	}, server.WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	assoc, err := client.Connect(listener.Addr().String(), client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts: []pdu.ProposedContext{
			{
				ID:               1,
				AbstractSyntax:   types.SecondaryCaptureImageStorage,
				TransferSyntaxes: []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian},
			},
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer assoc.Release()

	accepted, err := assoc.PresentationContextFor(types.SecondaryCaptureImageStorage)
	require.NoError(t, err)
	require.Equal(t, types.ImplicitVRLittleEndian, accepted.TransferSyntax)
}

func TestClientServer_CalledAEMismatch(t *testing.T) {
	addr := startServer(t, &echoStoreHandler{})

	_, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "NOTME",
		Contexts:       defaultContexts(),
		Logger:         zerolog.Nop(),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrAssociationRejected), "got %v", err)

	var assocErr *dicomerrors.AssociationError
	require.ErrorAs(t, err, &assocErr)
	require.Equal(t, byte(0x01), assocErr.Result)
	require.Equal(t, dicomerrors.RejectSourceServiceUser, assocErr.Source)
	require.Equal(t, dicomerrors.RejectReasonCalledAETitleNotRecognized, assocErr.Reason)
}

func TestClientServer_NegotiationPicksFirstProposed(t *testing.T) {
	addr := startServer(t, &echoStoreHandler{})

	contexts := []pdu.ProposedContext{
		{
			ID:               1,
			AbstractSyntax:   types.SecondaryCaptureImageStorage,
			TransferSyntaxes: []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian},
		},
	}

	assoc, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts:       contexts,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	defer assoc.Release()

	ctx, err := assoc.PresentationContextFor(types.SecondaryCaptureImageStorage)
	require.NoError(t, err)
	require.Equal(t, types.ImplicitVRLittleEndian, ctx.TransferSyntax)
}

func TestClientServer_UnsupportedAbstractSyntaxRejected(t *testing.T) {
	addr := startServer(t, &echoStoreHandler{})

	contexts := append(defaultContexts(), pdu.ProposedContext{
		ID:               5,
		AbstractSyntax:   types.StorageCommitmentPushModel,
		TransferSyntaxes: []string{types.ImplicitVRLittleEndian},
	})

	assoc, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts:       contexts,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	defer assoc.Release()

	// The commitment context was rejected, the others survive.
	_, err = assoc.PresentationContextFor(types.StorageCommitmentPushModel)
	require.True(t, errors.Is(err, dicomerrors.ErrNoPresentationCtx), "got %v", err)

	_, err = assoc.PresentationContextFor(types.VerificationSOPClass)
	require.NoError(t, err)
}

func TestServer_ValidatesConfiguration(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	tests := []struct {
		name string
		srv  *server.Server
	}{
		{"missing handler", server.New("IM", nil, nil)},
		{"missing AE title", server.New("", server.HandlerFunc(func(context.Context, *server.Request) (*server.Response, error) {
			return nil, nil
		}), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.srv.Serve(context.Background(), listener)
			require.Error(t, err)
		})
	}
}

func TestClientServer_HandlerErrorAborts(t *testing.T) {
	handler := server.HandlerFunc(func(context.Context, *server.Request) (*server.Response, error) {
		return nil, errors.New("handler refused")
	})
	addr := startServer(t, handler)

	assoc, err := client.Connect(addr, client.Config{
		CallingAETitle: "LTMONITOR",
		CalledAETitle:  "IM",
		Contexts:       defaultContexts(),
		DIMSETimeout:   2 * time.Second,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = assoc.Verify()
	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrAssociationAborted), "got %v", err)
	require.Equal(t, client.StateAborted, assoc.State())
}
