// Package metrics exposes Prometheus counters for the harness's protocol
// activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AssociationsAccepted counts associations accepted by the listener.
	AssociationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicom_associations_accepted_total",
		Help: "Number of inbound DICOM associations accepted.",
	})

	// StoresCompleted counts C-STORE exchanges by outcome.
	StoresCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_store_requests_total",
		Help: "Number of C-STORE requests sent, by outcome.",
	}, []string{"outcome"})

	// CommitmentRequests counts storage commitment N-ACTION requests by
	// outcome.
	CommitmentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_commitment_requests_total",
		Help: "Number of storage commitment N-ACTION requests sent, by outcome.",
	}, []string{"outcome"})

	// WorklistQueries counts modality worklist C-FIND queries by outcome.
	WorklistQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_worklist_queries_total",
		Help: "Number of modality worklist C-FIND queries sent, by outcome.",
	}, []string{"outcome"})

	// EventReportsReceived counts N-EVENT-REPORT requests received by the
	// listener, by disposition.
	EventReportsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_event_reports_received_total",
		Help: "Number of N-EVENT-REPORT requests received, by disposition.",
	}, []string{"disposition"})
)

// Outcome and disposition label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	DispositionCorrelated = "correlated"
	DispositionIgnored    = "ignored"
	DispositionUnexpected = "unexpected"
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
