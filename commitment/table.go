// Package commitment implements the storage commitment push model: the
// N-ACTION request, the transaction table correlating asynchronous results,
// and the listener-side N-EVENT-REPORT handling.
package commitment

import (
	"context"
	"fmt"
	"sync"

	dicomerrors "github.com/ltmonitor/dicomharness/errors"
)

// SOPReference identifies one stored instance under commitment.
type SOPReference struct {
	SOPClassUID    string
	SOPInstanceUID string
}

// FailedSOPReference is an instance the archive declined to commit, with the
// peer's failure reason code.
type FailedSOPReference struct {
	SOPReference
	FailureReason uint16
}

// Result is the outcome of one commitment transaction as reported by the
// archive's N-EVENT-REPORT.
type Result struct {
	TransactionUID string
	EventTypeID    uint16
	Committed      []SOPReference
	Failed         []FailedSOPReference
}

// Success reports whether every referenced instance was committed.
func (r *Result) Success() bool {
	return r.EventTypeID == 1 && len(r.Failed) == 0
}

// Table correlates outstanding commitment transactions with the results that
// arrive asynchronously, possibly on a different association.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan Result
}

// NewTable creates an empty transaction table.
func NewTable() *Table {
	return &Table{pending: make(map[string]chan Result)}
}

// Register adds a transaction and returns the channel its result will be
// delivered on. Registering a transaction UID twice is an error.
func (t *Table) Register(transactionUID string) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.pending[transactionUID]; exists {
		return nil, fmt.Errorf("%w: %s", dicomerrors.ErrDuplicateTransaction, transactionUID)
	}
	ch := make(chan Result, 1)
	t.pending[transactionUID] = ch
	return ch, nil
}

// Resolve delivers a result to the registered waiter and removes the
// transaction. It reports false when the transaction UID is unknown, in which
// case the result is dropped.
func (t *Table) Resolve(result Result) bool {
	t.mu.Lock()
	ch, ok := t.pending[result.TransactionUID]
	if ok {
		delete(t.pending, result.TransactionUID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	return true
}

// Forget removes a transaction without delivering a result, e.g. after the
// N-ACTION itself failed.
func (t *Table) Forget(transactionUID string) {
	t.mu.Lock()
	delete(t.pending, transactionUID)
	t.mu.Unlock()
}

// Wait blocks until the transaction's result arrives or the context expires.
// Expiry surfaces as a commitment result timeout and deregisters the
// transaction.
func (t *Table) Wait(ctx context.Context, transactionUID string, ch <-chan Result) (*Result, error) {
	select {
	case result := <-ch:
		return &result, nil
	case <-ctx.Done():
		t.Forget(transactionUID)
		return nil, dicomerrors.NewTimeoutError(dicomerrors.ErrCommitmentResultTimeout,
			"N-EVENT-REPORT for transaction "+transactionUID)
	}
}

// Pending returns the number of outstanding transactions.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
