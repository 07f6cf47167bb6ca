// Package config loads harness configuration from the environment, with a
// .env file honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the harness needs to talk to the archive under
// test.
type Config struct {
	// SCU side.
	TargetAddress  string        // archive DICOM endpoint
	CalledAETitle  string        // archive AE title
	CallingAETitle string        // our AE title, also used by the listener
	MaxPDULength   uint32        //
	ConnectTimeout time.Duration // TCP connect
	ACSETimeout    time.Duration // association establishment/release
	DIMSETimeout   time.Duration // DIMSE response wait
	CommitTimeout  time.Duration // storage commitment result wait

	// Listener side.
	ListenAddress string

	// Observability.
	MetricsAddress string // empty disables the metrics endpoint
	LogLevel       string
	LogFormat      string // "console" or "json"

	// Optional Modality Worklist target; an empty address disables the
	// worklist query step.
	WorklistAddress  string
	WorklistAETitle  string
	WorklistModality string

	// Optional directory for Part 10 dumps of generated instances.
	DumpDir string
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getUint32(key string, fallback uint32) (uint32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(n), nil
}

// Load reads the configuration from the environment. Defaults match the
// monitoring deployment: archive at 127.0.0.1:11113 with AE title IM, our AE
// title LTMONITOR, event listener on port 11112.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TargetAddress:  getEnv("DICOM_TARGET_ADDR", "127.0.0.1:11113"),
		CalledAETitle:  getEnv("DICOM_CALLED_AE", "IM"),
		CallingAETitle: getEnv("DICOM_CALLING_AE", "LTMONITOR"),
		ListenAddress:  getEnv("DICOM_LISTEN_ADDR", ":11112"),
		MetricsAddress: getEnv("METRICS_ADDR", "127.0.0.1:2112"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		DumpDir:        os.Getenv("DICOM_DUMP_DIR"),

		WorklistAddress:  os.Getenv("DICOM_MWL_ADDR"),
		WorklistAETitle:  getEnv("DICOM_MWL_AE", "OF"),
		WorklistModality: getEnv("DICOM_MWL_MODALITY", "CR"),
	}

	var err error
	if cfg.MaxPDULength, err = getUint32("DICOM_MAX_PDU", 16384); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = getDuration("DICOM_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ACSETimeout, err = getDuration("DICOM_ACSE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DIMSETimeout, err = getDuration("DICOM_DIMSE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CommitTimeout, err = getDuration("DICOM_COMMIT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if len(cfg.CallingAETitle) > 16 || len(cfg.CalledAETitle) > 16 || len(cfg.WorklistAETitle) > 16 {
		return nil, fmt.Errorf("AE titles are limited to 16 characters")
	}
	return cfg, nil
}
