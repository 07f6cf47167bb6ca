package dimse

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

func TestWriteReadMessage(t *testing.T) {
	tests := []struct {
		name         string
		maxPDULength uint32
		dataSet      []byte
	}{
		{"command only", 16384, nil},
		{"command and data set", 16384, bytes.Repeat([]byte{0xAB}, 512)},
		{"small PDU forces fragmentation", 64, bytes.Repeat([]byte{0xCD}, 1000)},
		{"unlimited PDU", 0, bytes.Repeat([]byte{0xEF}, 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			msg := &types.Message{
				CommandField:           types.CStoreRQ,
				MessageID:              5,
				AffectedSOPClassUID:    types.SecondaryCaptureImageStorage,
				AffectedSOPInstanceUID: "1.2.3.4",
				CommandDataSetType:     types.DataSetPresent,
			}
			if len(tt.dataSet) == 0 {
				msg.CommandDataSetType = types.DataSetAbsent
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- WriteMessage(client, 1, tt.maxPDULength, msg, tt.dataSet)
			}()

			in, err := ReadMessage(server, 5*time.Second, "C-STORE-RQ")
			require.NoError(t, err)
			require.NoError(t, <-errCh)

			require.Equal(t, byte(1), in.ContextID)
			require.Equal(t, uint16(types.CStoreRQ), in.Command.CommandField)
			require.Equal(t, uint16(5), in.Command.MessageID)
			require.True(t, bytes.Equal(in.DataSet, tt.dataSet))
		})
	}
}

func TestReadMessage_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	start := time.Now()
	_, err := ReadMessage(server, 100*time.Millisecond, "C-STORE-RSP")
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrDimseTimeout), "got %v", err)
	require.Less(t, elapsed, time.Second)

	var timeoutErr *dicomerrors.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.True(t, timeoutErr.Timeout())
	require.Contains(t, timeoutErr.Error(), "C-STORE-RSP")
}

func TestReadMessage_PeerAbort(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		ab := pdu.Abort{Source: 0x02, Reason: 0x00}
		pdu.WritePDU(client, pdu.TypeAbort, ab.Encode())
	}()

	_, err := ReadMessage(server, 5*time.Second, "C-STORE-RSP")
	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrAssociationAborted), "got %v", err)
}

func TestReadMessage_UnexpectedPDU(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		pdu.WritePDU(client, pdu.TypeReleaseRQ, pdu.ReleaseBody())
	}()

	_, err := ReadMessage(server, 5*time.Second, "C-STORE-RSP")
	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrProtocolViolation), "got %v", err)
}

func TestAssembler_ContextMismatch(t *testing.T) {
	var asm Assembler
	cmd := EncodeCommand(&types.Message{
		CommandField:       types.CEchoRQ,
		MessageID:          1,
		CommandDataSetType: types.DataSetPresent,
	})

	_, err := asm.Add(pdu.PDV{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd})
	require.NoError(t, err)

	_, err = asm.Add(pdu.PDV{ContextID: 3, IsCommand: false, IsLast: true, Data: []byte{0x00, 0x00}})
	require.Error(t, err)
	require.True(t, errors.Is(err, dicomerrors.ErrPresentationCtxMismatch))
}

func TestAssembler_FragmentAfterLast(t *testing.T) {
	var asm Assembler
	cmd := EncodeCommand(&types.Message{
		CommandField:       types.CEchoRQ,
		MessageID:          1,
		CommandDataSetType: types.DataSetPresent,
	})

	done, err := asm.Add(pdu.PDV{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd})
	require.NoError(t, err)
	require.False(t, done)

	_, err = asm.Add(pdu.PDV{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd})
	require.Error(t, err)
}

func TestAssembler_SplitCommand(t *testing.T) {
	var asm Assembler
	cmd := EncodeCommand(&types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           2,
		AffectedSOPClassUID: types.VerificationSOPClass,
		CommandDataSetType:  types.DataSetAbsent,
	})

	mid := len(cmd) / 2
	done, err := asm.Add(pdu.PDV{ContextID: 1, IsCommand: true, Data: cmd[:mid]})
	require.NoError(t, err)
	require.False(t, done)

	done, err = asm.Add(pdu.PDV{ContextID: 1, IsCommand: true, IsLast: true, Data: cmd[mid:]})
	require.NoError(t, err)
	require.True(t, done)

	in := asm.Take()
	require.Equal(t, uint16(types.CEchoRQ), in.Command.CommandField)
	require.Equal(t, uint16(2), in.Command.MessageID)
}
