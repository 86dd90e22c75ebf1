package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/csvdir"
	iamadapter "github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/iam"
	httphandler "github.com/ericfisherdev/iamkeycheck/internal/adapter/driving/http"
	"github.com/ericfisherdev/iamkeycheck/internal/application"
	"github.com/ericfisherdev/iamkeycheck/internal/config"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
	"github.com/ericfisherdev/iamkeycheck/internal/telemetry/logging"
)

// errNoCredentials makes extract-creds exit non-zero after printing "{}".
var errNoCredentials = errors.New("no credentials found")

// identitiesFunc builds the identity client factory for a check.
type identitiesFunc func(ctx context.Context, cfg *config.Config) (driven.IdentityClientFactory, error)

func defaultIdentities(ctx context.Context, cfg *config.Config) (driven.IdentityClientFactory, error) {
	return iamadapter.NewFactory(ctx, iamadapter.Options{
		Region:        cfg.AWSRegion,
		Endpoint:      cfg.IAMEndpoint,
		CallTimeout:   cfg.CallTimeout,
		DefaultKeyID:  cfg.DefaultKeyID,
		DefaultSecret: cfg.DefaultSecret,
	})
}

type rootFlags struct {
	csvDir string
	hours  int
}

// newRootCmd assembles the command tree. Commands write results to the
// command's stdout and logs to its stderr.
func newRootCmd(identities identitiesFunc) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "iamkeyctl",
		Short:         "Inspect exported IAM credentials and find stale access keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.csvDir, "csv-dir", "", "credential export directory (overrides IAMKEYCHECK_CSV_DIR)")

	extractCmd := &cobra.Command{
		Use:   "extract-creds",
		Short: "Print the first exported credential pair as JSON",
		Long: `Print the first credential pair found in the export directory as
{"AWS_ACCESS_KEY_ID": "...", "AWS_SECRET_ACCESS_KEY": "..."}.

Files are read in name order, so the pair is stable for a given directory.
When no pair is found "{}" is printed and the command exits 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := setup(cmd, flags, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := svc.LoadCredentials(cmd.Context())
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "{}")
				return errNoCredentials
			}

			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"AWS_ACCESS_KEY_ID":     records[0].KeyID,
				"AWS_SECRET_ACCESS_KEY": records[0].Secret,
			})
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one stale-key check and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.hours < 0 {
				return application.ErrNegativeThreshold
			}

			svc, closeFn, err := setup(cmd, flags, identities)
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := svc.CheckStale(cmd.Context(), flags.hours)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), httphandler.NewStaleKeysResponse(results))
		},
	}
	checkCmd.Flags().IntVar(&flags.hours, "hours", 24, "age threshold in hours")

	root.AddCommand(extractCmd, checkCmd)
	return root
}

// setup loads configuration, applies flag overrides, and builds the logger
// and the stale key service. With a nil identities func the service can only
// load credentials.
func setup(cmd *cobra.Command, flags rootFlags, identities identitiesFunc) (*application.StaleKeyService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if flags.csvDir != "" {
		cfg.CSVDir = flags.csvDir
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Stdout: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = logger.Close() }

	var factory driven.IdentityClientFactory
	if identities != nil {
		factory, err = identities(cmd.Context(), cfg)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	loader := csvdir.NewLoader(cfg.CSVDir, logger.Logger)
	logger.Debug("credential source", "dir", loader.Dir())

	svc := application.NewStaleKeyService(loader, factory, logger.Logger,
		application.WithConcurrency(cfg.Concurrency),
		application.WithCallTimeout(cfg.CallTimeout),
	)

	return svc, closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
