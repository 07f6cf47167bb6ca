package client

import (
	"errors"
	"fmt"

	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/dimse"
	dicomerrors "github.com/ltmonitor/dicomharness/errors"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/types"
)

// FindResponse is one C-FIND response from the SCP. Pending responses carry a
// matching identifier data set; the final response carries none.
type FindResponse struct {
	Status  uint16
	DataSet *dicom.Dataset
}

// FindWorklist queries the Modality Worklist information model and returns the
// scheduled procedure step items matching the query.
func (a *Association) FindWorklist(query *dicom.Dataset) ([]*dicom.Dataset, error) {
	responses, err := a.SendCFind(types.ModalityWorklistInformationModelFind, query)
	if err != nil {
		return nil, err
	}
	var items []*dicom.Dataset
	for _, r := range responses {
		if types.IsPendingStatus(r.Status) && r.DataSet != nil {
			items = append(items, r.DataSet)
		}
	}
	return items, nil
}

// SendCFind issues a C-FIND query against the given information model and
// collects responses until the SCP reports a final status. A final status
// other than success surfaces as a find rejection error alongside the
// responses received so far.
func (a *Association) SendCFind(sopClassUID string, query *dicom.Dataset) ([]*FindResponse, error) {
	if query == nil {
		return nil, fmt.Errorf("c-find requires a query data set")
	}

	ctx, err := a.PresentationContextFor(sopClassUID)
	if err != nil {
		return nil, err
	}

	payload, err := dicom.Encode(query, ctx.TransferSyntax)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query data set: %w", err)
	}

	if a.state != StateEstablished {
		return nil, dicomerrors.ErrAssociationNotEstablished
	}

	msg := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           a.NextMessageID(),
		Priority:            0x0000, // medium
		CommandDataSetType:  types.DataSetPresent,
		AffectedSOPClassUID: sopClassUID,
	}

	a.logger.Debug().
		Str("sop_class", sopClassUID).
		Int("query_size", len(payload)).
		Msg("sending C-FIND-RQ")

	if err := dimse.WriteMessage(a.conn, ctx.ID, a.peerMaxPDULength, msg, payload); err != nil {
		return nil, err
	}

	var responses []*FindResponse
	for {
		in, err := dimse.ReadMessage(a.conn, a.cfg.DIMSETimeout, "C-FIND-RSP")
		if err != nil {
			if errors.Is(err, dicomerrors.ErrAssociationAborted) {
				a.state = StateAborted
				a.conn.Close()
			}
			return responses, err
		}
		if in.ContextID != ctx.ID {
			a.abortOnViolation()
			return responses, fmt.Errorf("%w: response on context %d, request on %d",
				dicomerrors.ErrPresentationCtxMismatch, in.ContextID, ctx.ID)
		}
		if in.Command.MessageIDBeingRespondedTo != msg.MessageID {
			a.abortOnViolation()
			return responses, dicomerrors.NewPDUError(pdu.TypePDataTF,
				"response to message %d while awaiting %d",
				in.Command.MessageIDBeingRespondedTo, msg.MessageID)
		}
		if in.Command.CommandField != types.CFindRSP {
			a.abortOnViolation()
			return responses, fmt.Errorf("%w: unexpected command 0x%04x while awaiting C-FIND-RSP",
				dicomerrors.ErrProtocolViolation, in.Command.CommandField)
		}

		var match *dicom.Dataset
		if len(in.DataSet) > 0 {
			match, err = dicom.Decode(in.DataSet, ctx.TransferSyntax)
			if err != nil {
				return responses, fmt.Errorf("failed to decode match data set: %w", err)
			}
		}
		responses = append(responses, &FindResponse{Status: in.Command.Status, DataSet: match})

		if types.IsPendingStatus(in.Command.Status) {
			continue
		}
		if in.Command.Status != types.StatusSuccess {
			return responses, dicomerrors.NewStatusError(dicomerrors.ErrFindRejected, "C-FIND", in.Command.Status)
		}
		a.logger.Info().
			Int("matches", len(responses)-1).
			Msg("c-find completed")
		return responses, nil
	}
}

// WorklistQuery builds a broad worklist query: wildcard patient matching plus
// a scheduled procedure step item constraining modality, scheduled station AE
// title and start date. Empty constraint values request the attribute without
// filtering on it.
func WorklistQuery(modality, stationAETitle, startDate string) *dicom.Dataset {
	sps := dicom.NewDataset()
	sps.Add(dicom.NewStringElement(types.TagModality, types.VR_CS, modality))
	sps.Add(dicom.NewStringElement(types.TagScheduledStationAETitle, types.VR_AE, stationAETitle))
	sps.Add(dicom.NewStringElement(types.TagScheduledProcedureStepStartDate, types.VR_DA, startDate))
	sps.Add(dicom.NewStringElement(types.TagScheduledProcedureStepStartTime, types.VR_TM, ""))
	sps.Add(dicom.NewStringElement(types.TagScheduledProcedureStepID, types.VR_SH, "*"))

	query := dicom.NewDataset()
	query.Add(dicom.NewStringElement(types.TagAccessionNumber, types.VR_SH, "*"))
	query.Add(dicom.NewStringElement(types.TagPatientName, types.VR_PN, "*"))
	query.Add(dicom.NewStringElement(types.TagPatientID, types.VR_LO, "*"))
	query.Add(dicom.NewStringElement(types.TagPatientBirthDate, types.VR_DA, ""))
	query.Add(dicom.NewStringElement(types.TagPatientSex, types.VR_CS, ""))
	query.Add(dicom.NewStringElement(types.TagStudyInstanceUID, types.VR_UI, ""))
	query.Add(dicom.NewSequenceElement(types.TagScheduledProcedureStepSequence, sps))
	return query
}
