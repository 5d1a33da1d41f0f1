package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	_ "github.com/2lambda123/facebook-prophet/internal/backend/cmdstan"
	_ "github.com/2lambda123/facebook-prophet/internal/backend/numpyro"
	"github.com/2lambda123/facebook-prophet/internal/config"
	"github.com/2lambda123/facebook-prophet/internal/logging"
	"github.com/2lambda123/facebook-prophet/internal/metrics"
	"github.com/2lambda123/facebook-prophet/internal/tracing"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	rootLogLevel    string
	rootMetricsFile string
	rootTrace       bool

	logger        *logrus.Logger
	shutdownTrace func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:               "prophet",
	Short:             "Fit Prophet models on interchangeable inference backends",
	Long:              "Prophet fits and samples the Prophet forecasting model through CmdStan or NumPyro.",
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupRoot,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootLogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.StringVar(&rootMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	flags.BoolVar(&rootTrace, "trace", false, "Export trace spans to stderr")
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if teardownErr := teardownRoot(); teardownErr != nil && err == nil {
		err = teardownErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupRoot(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if err := loadConfigForCwd(); err != nil {
		return err
	}
	settings, err := config.Current()
	if err != nil {
		return err
	}

	level := settings.Logging.Level
	if rootLogLevel != "" {
		level = rootLogLevel
	}
	logger, err = logging.New(level, settings.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}

	if err := backend.Validate(); err != nil {
		return err
	}

	if rootTrace {
		shutdownTrace, err = tracing.Init(os.Stderr)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
	}
	return nil
}

func teardownRoot() error {
	if shutdownTrace != nil {
		if err := shutdownTrace(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "flush traces: %v\n", err)
		}
		shutdownTrace = nil
	}
	if rootMetricsFile != "" {
		if err := metrics.WriteTextfile(rootMetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func loadConfigForCwd() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}
	_, err = config.LoadConfig(cwd)
	return err
}
