package cli

import (
	"fmt"
	"os"

	"github.com/kumasuke/s3check/internal/config"
	"github.com/kumasuke/s3check/internal/conformance"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile   string
	endpoint     string
	bucket       string
	accessKey    string
	secretKey    string
	region       string
	noCleanup    bool
	deleteBucket bool
	reportPath   string
	logLevel     string
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "check",
		Short:        "Run the conformance battery against an endpoint",
		Long:         "Run the full scripted sequence of S3 operations against the configured endpoint and print a per-case PASS/FAIL report.",
		RunE:         runCheck,
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "endpoint URL (default http://localhost:8080)")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "bucket name (default test-bucket)")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "access key")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "secret key")
	cmd.Flags().StringVar(&region, "region", "", "region (default us-east-1)")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "skip post-run cleanup of created objects")
	cmd.Flags().BoolVar(&deleteBucket, "delete-bucket", false, "delete the bucket after the object battery")
	cmd.Flags().StringVar(&reportPath, "json", "", "write a JSON report to this path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Load configuration
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override with command line flags
	if endpoint != "" {
		cfg.Target.Endpoint = endpoint
	}
	if bucket != "" {
		cfg.Target.Bucket = bucket
	}
	if accessKey != "" {
		cfg.Target.AccessKey = accessKey
	}
	if secretKey != "" {
		cfg.Target.SecretKey = secretKey
	}
	if region != "" {
		cfg.Target.Region = region
	}
	if noCleanup {
		cfg.Run.Cleanup = false
	}
	if deleteBucket {
		cfg.Run.DeleteBucket = true
	}
	if reportPath != "" {
		cfg.Run.ReportPath = reportPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Setup logging
	setupLogging(cfg.Logging)

	log.Info().
		Str("endpoint", cfg.Target.Endpoint).
		Str("bucket", cfg.Target.Bucket).
		Msg("Starting conformance run")

	runner, err := conformance.NewRunner(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	report, ok := runner.Run(cmd.Context())
	report.Print(os.Stdout)

	if cfg.Run.ReportPath != "" {
		if err := report.WriteJSON(cfg.Run.ReportPath); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if !ok {
		if len(report.Cases) == 0 {
			return fmt.Errorf("endpoint %s never became ready", cfg.Target.Endpoint)
		}
		return fmt.Errorf("%d of %d cases failed", report.FailCount(), len(report.Cases))
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
