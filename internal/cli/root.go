// Package cli implements the landform command tree.
package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/landform-io/landform/internal/provider"
	"github.com/landform-io/landform/internal/state"
	"github.com/landform-io/landform/internal/telemetry"
	"github.com/landform-io/landform/providers/aws"
	"github.com/landform-io/landform/providers/docker"
	"github.com/landform-io/landform/providers/null"
)

var (
	rootChdir       string
	rootProperties  map[string]string
	rootState       string
	rootLogLevel    string
	rootLogFormat   string
	rootMetricsAddr string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "landform",
	Short: "Declarative resource reconciliation",
	Long: `Landform reconciles declared resources against recorded state.

Declarations are Pkl modules (plain JSON also works). Each run evaluates
the configuration, diffs it against the state store, and drives the
resource providers until the two converge:
  • landform plan   shows what would change
  • landform apply  makes the changes
  • landform state  inspects and repairs the record of what exists`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = telemetry.NewLogger(telemetry.LogConfig{
			Level:  rootLogLevel,
			Format: rootLogFormat,
			Output: "stderr",
		})
		if err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootChdir, "chdir", "C", ".", "Run as if started in this directory")
	rootCmd.PersistentFlags().StringToStringVarP(&rootProperties, "prop", "p", nil, "Set external properties (format: key=value)")
	rootCmd.PersistentFlags().StringVar(&rootState, "state", "", "State location: a SQLite path or s3://bucket/key?region=..&table=.. (default .landform/state.db)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().StringVar(&rootMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during apply")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveEntryPoint decides the project directory and the configuration
// entry point. With no argument the project directory is the --chdir
// directory and the entry point is main.pkl; an argument may name either
// a directory (entry point main.pkl inside it) or a configuration file.
func resolveEntryPoint(baseDir string, args []string) (dir string, entryPoint string, err error) {
	dir, err = filepath.Abs(baseDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve directory %s: %w", baseDir, err)
	}
	entryPoint = "main.pkl"

	if len(args) == 0 {
		return dir, entryPoint, nil
	}

	target := args[0]
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if info.IsDir() {
		return target, entryPoint, nil
	}
	return filepath.Dir(target), filepath.Base(target), nil
}

// parseStateDSN maps the --state flag onto a store configuration. Empty
// means the project-local SQLite database; s3:// URLs select the remote
// store with region, table and profile as query parameters.
func parseStateDSN(dir, dsn string) (state.Config, error) {
	if dsn == "" {
		return state.Config{Path: filepath.Join(dir, ".landform", "state.db")}, nil
	}
	if strings.HasPrefix(dsn, "s3://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return state.Config{}, fmt.Errorf("invalid state URL %s: %w", dsn, err)
		}
		if u.Host == "" {
			return state.Config{}, fmt.Errorf("invalid state URL %s: missing bucket", dsn)
		}
		q := u.Query()
		return state.Config{
			Backend:       "s3",
			Bucket:        u.Host,
			Key:           strings.TrimPrefix(u.Path, "/"),
			Region:        q.Get("region"),
			DynamoDBTable: q.Get("table"),
			Profile:       q.Get("profile"),
		}, nil
	}
	return state.Config{Path: dsn}, nil
}

func openStore(ctx context.Context, dir string) (state.Store, error) {
	cfg, err := parseStateDSN(dir, rootState)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// lockStore takes the run lock when the store supports one. The returned
// func releases it.
func lockStore(ctx context.Context, store state.Store) (func(), error) {
	locker, ok := store.(state.Locker)
	if !ok {
		return func() {}, nil
	}
	if err := locker.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock state: %w", err)
	}
	return func() {
		if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("failed to release state lock")
		}
	}, nil
}

// builtinRegistry returns the provider registry with every built-in
// provider registered.
func builtinRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register("null", null.New())
	registry.Register("docker", docker.New())
	registry.Register("aws", aws.New())
	return registry
}
