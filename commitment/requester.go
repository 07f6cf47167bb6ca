package commitment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/client"
	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/metrics"
	"github.com/ltmonitor/dicomharness/types"
)

// actionTypeCommitmentRequest is the sole action type of the storage
// commitment push model SOP class.
const actionTypeCommitmentRequest = 1

// Requester issues storage commitment requests and awaits their asynchronous
// results through a shared transaction table.
type Requester struct {
	table  *Table
	logger zerolog.Logger
}

// NewRequester creates a requester delivering results via table.
func NewRequester(table *Table, logger zerolog.Logger) *Requester {
	return &Requester{table: table, logger: logger}
}

// buildActionInfo assembles the N-ACTION action information data set: the
// transaction UID and one referenced SOP sequence item per instance.
func buildActionInfo(transactionUID string, refs []SOPReference) *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.Add(dicom.NewStringElement(types.TagTransactionUID, types.VR_UI, transactionUID))

	items := make([]*dicom.Dataset, 0, len(refs))
	for _, ref := range refs {
		item := dicom.NewDataset()
		item.Add(dicom.NewStringElement(types.TagReferencedSOPClassUID, types.VR_UI, ref.SOPClassUID))
		item.Add(dicom.NewStringElement(types.TagReferencedSOPInstanceUID, types.VR_UI, ref.SOPInstanceUID))
		items = append(items, item)
	}
	ds.Add(dicom.NewSequenceElement(types.TagReferencedSOPSequence, items...))
	return ds
}

// Request sends a storage commitment N-ACTION for the given instances over an
// established association and returns the transaction UID along with the
// channel its result will arrive on. The transaction is registered before the
// request goes out so a result racing the N-ACTION response is not lost.
func (r *Requester) Request(assoc *client.Association, refs []SOPReference) (string, <-chan Result, error) {
	if len(refs) == 0 {
		return "", nil, fmt.Errorf("no SOP instances to commit")
	}

	transactionUID := dicom.NewUID()
	ch, err := r.table.Register(transactionUID)
	if err != nil {
		return "", nil, err
	}

	actionInfo := buildActionInfo(transactionUID, refs)
	status, err := assoc.SendNAction(
		types.StorageCommitmentPushModel,
		types.StorageCommitmentPushModelInstance,
		actionTypeCommitmentRequest,
		actionInfo,
	)
	if err != nil {
		r.table.Forget(transactionUID)
		metrics.CommitmentRequests.WithLabelValues(metrics.OutcomeFailure).Inc()
		return "", nil, err
	}

	metrics.CommitmentRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	r.logger.Info().
		Str("transaction_uid", transactionUID).
		Int("instances", len(refs)).
		Uint16("status", status).
		Msg("storage commitment requested")
	return transactionUID, ch, nil
}

// RequestAndWait sends a commitment request and blocks until the archive
// reports the result or ctx expires.
func (r *Requester) RequestAndWait(ctx context.Context, assoc *client.Association, refs []SOPReference) (*Result, error) {
	transactionUID, ch, err := r.Request(assoc, refs)
	if err != nil {
		return nil, err
	}

	result, err := r.table.Wait(ctx, transactionUID, ch)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("transaction_uid", result.TransactionUID).
		Uint16("event_type", result.EventTypeID).
		Int("committed", len(result.Committed)).
		Int("failed", len(result.Failed)).
		Msg("storage commitment result received")
	return result, nil
}
