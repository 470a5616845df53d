package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/offerwise/internal/shiftsim"
	"github.com/okian/offerwise/pkg/logger"
)

func main() {
	cfg := &shiftsim.Config{}
	var help bool

	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	flag.IntVar(&cfg.Offers, "offers", 40, "Number of offers in the shift")
	flag.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed") //nolint:gosec // non-negative
	flag.DurationVar(&cfg.Timeout, "timeout", shiftsim.DefaultTimeout, "HTTP request timeout")
	flag.Uint64Var(&cfg.Retries, "retries", shiftsim.DefaultRetries, "Retries per request on connection errors")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output file for the generated offers")
	flag.StringVar(&cfg.LogFile, "log", "", "Log file for the run")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log every offer")
	flag.BoolVar(&help, "help", false, "Show help message")
	flag.Parse()

	if help {
		shiftsim.ShowHelp()
		return
	}
	if cfg.Offers <= 0 {
		os.Stderr.WriteString("offers must be positive\n")
		os.Exit(2)
	}

	if err := shiftsim.SetupLogging(cfg.LogFile); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := shiftsim.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "shift simulation failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
