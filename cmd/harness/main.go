// Command harness runs one end-to-end conformance pass against a PACS
// archive: it starts the storage commitment listener, verifies the archive
// with C-ECHO, stores synthetic instances with C-STORE, requests storage
// commitment with N-ACTION and waits for the archive's N-EVENT-REPORT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ltmonitor/dicomharness/client"
	"github.com/ltmonitor/dicomharness/commitment"
	"github.com/ltmonitor/dicomharness/config"
	"github.com/ltmonitor/dicomharness/dicom"
	"github.com/ltmonitor/dicomharness/imagegen"
	"github.com/ltmonitor/dicomharness/metrics"
	"github.com/ltmonitor/dicomharness/pdu"
	"github.com/ltmonitor/dicomharness/server"
	"github.com/ltmonitor/dicomharness/types"
)

const (
	implementationClassUID    = "2.25.84816319811329831229931771645957740674"
	implementationVersionName = "LTMONITOR_1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("harness run failed")
		os.Exit(1)
	}
	logger.Info().Msg("harness run completed")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, logger)
	}

	table := commitment.NewTable()
	listener := commitment.NewListener(table, logger.With().Str("component", "listener").Logger())

	srv := server.New(cfg.CallingAETitle, listener, commitment.SupportedSyntaxes(),
		server.WithLogger(logger.With().Str("component", "server").Logger()),
		server.WithMaxPDULength(cfg.MaxPDULength),
		server.WithImplementation(implementationClassUID, implementationVersionName),
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe(ctx, cfg.ListenAddress)
	}()

	if err := waitForTarget(ctx, cfg.TargetAddress, cfg.ConnectTimeout); err != nil {
		return err
	}

	if err := exercise(ctx, cfg, table, logger); err != nil {
		return err
	}

	if cfg.WorklistAddress != "" {
		if err := queryWorklist(cfg, logger); err != nil {
			return err
		}
	}

	// Leave the listener running briefly so a trailing event report on a new
	// association is not refused mid-handshake, then shut down.
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

func serveMetrics(address string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info().Str("address", address).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(address, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics endpoint stopped")
	}
}

// waitForTarget probes the archive's TCP port until it accepts or the budget
// is spent.
func waitForTarget(ctx context.Context, address string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", address, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("archive at %s not reachable: %w", address, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func proposedContexts() []pdu.ProposedContext {
	transfer := []string{
		types.ExplicitVRLittleEndian,
		types.ImplicitVRLittleEndian,
	}
	return []pdu.ProposedContext{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: transfer},
		{ID: 3, AbstractSyntax: types.SecondaryCaptureImageStorage, TransferSyntaxes: transfer},
		{ID: 5, AbstractSyntax: types.MultiFrameTrueColorSecondaryCaptureImageStorage, TransferSyntaxes: transfer},
		{ID: 7, AbstractSyntax: types.StorageCommitmentPushModel, TransferSyntaxes: transfer},
	}
}

// exercise runs the SCU sequence: C-ECHO, the three C-STOREs, then the
// commitment request and wait.
func exercise(ctx context.Context, cfg *config.Config, table *commitment.Table, logger zerolog.Logger) error {
	assoc, err := client.Connect(cfg.TargetAddress, client.Config{
		CallingAETitle:            cfg.CallingAETitle,
		CalledAETitle:             cfg.CalledAETitle,
		Contexts:                  proposedContexts(),
		MaxPDULength:              cfg.MaxPDULength,
		ConnectTimeout:            cfg.ConnectTimeout,
		ACSETimeout:               cfg.ACSETimeout,
		DIMSETimeout:              cfg.DIMSETimeout,
		ImplementationClassUID:    implementationClassUID,
		ImplementationVersionName: implementationVersionName,
		Logger:                    logger.With().Str("component", "scu").Logger(),
	})
	if err != nil {
		return err
	}
	released := false
	defer func() {
		if !released && assoc.State() == client.StateEstablished {
			assoc.Release()
		}
	}()

	status, err := assoc.Verify()
	if err != nil {
		return fmt.Errorf("C-ECHO failed: %w", err)
	}
	logger.Info().Uint16("status", status).Msg("archive verified")

	studyUID := dicom.NewUID()
	refs := make([]commitment.SOPReference, 0, 3)
	for _, flavor := range []imagegen.Flavor{imagegen.Monochrome, imagegen.RGB, imagegen.RGBMultiFrame} {
		ds, err := imagegen.NewInstance(imagegen.Options{Flavor: flavor, StudyInstanceUID: studyUID})
		if err != nil {
			return err
		}
		if cfg.DumpDir != "" {
			name := filepath.Join(cfg.DumpDir, ds.GetString(types.TagSOPInstanceUID)+".dcm")
			if err := imagegen.WriteFile(name, ds, implementationClassUID, implementationVersionName); err != nil {
				logger.Warn().Err(err).Str("path", name).Msg("instance dump failed")
			}
		}

		result, err := assoc.StoreInstance(ds)
		if err != nil {
			metrics.StoresCompleted.WithLabelValues(metrics.OutcomeFailure).Inc()
			return fmt.Errorf("C-STORE (%s) failed: %w", flavor, err)
		}
		metrics.StoresCompleted.WithLabelValues(metrics.OutcomeSuccess).Inc()
		logger.Info().
			Stringer("flavor", flavor).
			Str("sop_instance", result.SOPInstanceUID).
			Msg("instance stored")
		refs = append(refs, commitment.SOPReference{
			SOPClassUID:    result.SOPClassUID,
			SOPInstanceUID: result.SOPInstanceUID,
		})
	}

	requester := commitment.NewRequester(table, logger.With().Str("component", "commitment").Logger())
	waitCtx, cancel := context.WithTimeout(ctx, cfg.CommitTimeout)
	defer cancel()

	result, err := requester.RequestAndWait(waitCtx, assoc, refs)

	// Release regardless of the commitment outcome; the archive may have
	// already delivered the event report on its own association.
	if relErr := assoc.Release(); relErr != nil && !errors.Is(relErr, net.ErrClosed) {
		logger.Warn().Err(relErr).Msg("association release failed")
	}
	released = true

	if err != nil {
		return fmt.Errorf("storage commitment failed: %w", err)
	}
	if !result.Success() {
		for _, failed := range result.Failed {
			logger.Error().
				Str("sop_instance", failed.SOPInstanceUID).
				Uint16("failure_reason", failed.FailureReason).
				Msg("instance not committed")
		}
		return fmt.Errorf("archive committed %d of %d instances",
			len(result.Committed), len(refs))
	}

	logger.Info().Int("instances", len(result.Committed)).Msg("storage commitment confirmed")
	return nil
}

// queryWorklist runs the optional modality worklist step against a separate
// worklist SCP, querying today's scheduled procedure steps for our station.
func queryWorklist(cfg *config.Config, logger zerolog.Logger) error {
	transfer := []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian}
	assoc, err := client.Connect(cfg.WorklistAddress, client.Config{
		CallingAETitle: cfg.CallingAETitle,
		CalledAETitle:  cfg.WorklistAETitle,
		Contexts: []pdu.ProposedContext{
			{ID: 1, AbstractSyntax: types.ModalityWorklistInformationModelFind, TransferSyntaxes: transfer},
		},
		MaxPDULength:              cfg.MaxPDULength,
		ConnectTimeout:            cfg.ConnectTimeout,
		ACSETimeout:               cfg.ACSETimeout,
		DIMSETimeout:              cfg.DIMSETimeout,
		ImplementationClassUID:    implementationClassUID,
		ImplementationVersionName: implementationVersionName,
		Logger:                    logger.With().Str("component", "mwl").Logger(),
	})
	if err != nil {
		return fmt.Errorf("worklist association failed: %w", err)
	}

	query := client.WorklistQuery(cfg.WorklistModality, cfg.CallingAETitle, time.Now().Format("20060102"))
	items, err := assoc.FindWorklist(query)

	if relErr := assoc.Release(); relErr != nil && !errors.Is(relErr, net.ErrClosed) {
		logger.Warn().Err(relErr).Msg("worklist association release failed")
	}

	if err != nil {
		metrics.WorklistQueries.WithLabelValues(metrics.OutcomeFailure).Inc()
		return fmt.Errorf("worklist query failed: %w", err)
	}
	metrics.WorklistQueries.WithLabelValues(metrics.OutcomeSuccess).Inc()

	for _, item := range items {
		logger.Info().
			Str("patient", item.GetString(types.TagPatientName)).
			Str("accession", item.GetString(types.TagAccessionNumber)).
			Msg("worklist item")
	}
	logger.Info().Int("items", len(items)).Msg("worklist query completed")
	return nil
}
