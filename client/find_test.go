package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ltmonitor/dicomharness/types"
)

func TestWorklistQuery(t *testing.T) {
	q := WorklistQuery("CR", "LTMONITOR", "20260831")

	require.Equal(t, "*", q.GetString(types.TagPatientName))
	require.Equal(t, "*", q.GetString(types.TagPatientID))
	require.Equal(t, "*", q.GetString(types.TagAccessionNumber))

	// Universal matching attributes are requested with empty values.
	_, ok := q.Get(types.TagStudyInstanceUID)
	require.True(t, ok)

	sps, ok := q.GetSequence(types.TagScheduledProcedureStepSequence)
	require.True(t, ok)
	require.Len(t, sps, 1)
	require.Equal(t, "CR", sps[0].GetString(types.TagModality))
	require.Equal(t, "LTMONITOR", sps[0].GetString(types.TagScheduledStationAETitle))
	require.Equal(t, "20260831", sps[0].GetString(types.TagScheduledProcedureStepStartDate))
}

func TestSendCFind_RequiresQuery(t *testing.T) {
	a := &Association{state: StateEstablished}
	_, err := a.SendCFind(types.ModalityWorklistInformationModelFind, nil)
	require.Error(t, err)
}
