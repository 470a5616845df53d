package shiftsim

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/offerwise/pkg/logger"
)

// SetupLogging logs to both console and file. If logFile is empty, a
// timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		logFile = "shift_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), logger.FormatText); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the shift simulator.
func ShowHelp() {
	os.Stdout.WriteString(`offerwise shift simulator
=========================

Plays a synthetic driver shift against a running offerwise server: it opens
a session, scores and works through offers, answers both surveys, trains the
weights and closes the session, then checks the session totals.

Usage:
  go run ./cmd/shift-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -offers int
        Number of offers in the shift (default 40)
  -seed uint
        Random seed; the same seed replays the same shift (default: time based)
  -timeout duration
        HTTP request timeout (default 10s)
  -retries uint
        Retries per request on connection errors (default 3)
  -output string
        Output file for the generated offers
  -log string
        Log file for the run (default: shift_TIMESTAMP.log)
  -verbose
        Log every offer
  -help
        Show this help message
`)
}
