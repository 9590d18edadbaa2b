package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/capadapt/capadapt/internal/api"
	"github.com/capadapt/capadapt/internal/app"
	"github.com/capadapt/capadapt/internal/config"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
	"github.com/capadapt/capadapt/pkg/utils"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type options struct {
	configPath string
	logLevel   string
	output     string
	trace      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "capadapt",
		Short: "Inspect, monitor and back up capability-adapted caches",
		Long: `capadapt builds the caches described in a configuration file, resolves
their statistics and backup adapters, and exposes them through Prometheus
metrics, health checks and backups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputText, outputJSON:
				return nil
			}
			return errors.Newf(errors.ErrCodeInvalidConfig, "invalid output format %q (must be text or json)", opts.output)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	flags.StringVarP(&opts.output, "output", "o", outputText, "output format: text or json")
	flags.BoolVar(&opts.trace, "trace", false, "print OpenTelemetry spans to stderr")

	root.AddCommand(
		newAdaptersCmd(opts),
		newStatsCmd(opts),
		newHealthCmd(opts),
		newBackupCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig layers the file, the environment and the flags over the defaults.
func loadConfig(opts *options) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if opts.configPath != "" {
		if err := cfg.LoadFromFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Global.LogLevel = strings.ToUpper(opts.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp builds the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closer, err := utils.NewLogger(utils.LoggerConfig{
		Level:    cfg.Global.LogLevel,
		Format:   cfg.Global.LogFormat,
		File:     cfg.Global.LogFile,
		Rotation: cfg.Global.LogRotation,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.trace {
		shutdown, err := installTracing(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if serr := shutdown(context.Background()); serr != nil {
				logger.Warn("flush traces", "error", serr)
			}
		}()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

// installTracing exports spans to w until the returned shutdown is called.
func installTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	return func(ctx context.Context) error {
		otel.SetTracerProvider(previous)
		return provider.Shutdown(ctx)
	}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAdaptersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List adapter registrations and how each cache resolves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				registry := a.Registry()
				var registrations []string
				for _, f := range registry.Families() {
					for _, reg := range registry.Lookup(f) {
						registrations = append(registrations, reg.String())
					}
					if reg, ok := registry.Fallback(f); ok {
						registrations = append(registrations, reg.String())
					}
				}
				resolutions := a.Resolutions()

				out := cmd.OutOrStdout()
				if opts.output == outputJSON {
					return writeJSON(out, map[string]interface{}{
						"registrations": registrations,
						"resolutions":   resolutions,
					})
				}

				fmt.Fprintln(out, "Registrations:")
				for _, r := range registrations {
					fmt.Fprintln(out, "  "+r)
				}
				fmt.Fprintln(out)

				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "Cache\tType\tFamily\tAdapter")
				fmt.Fprintln(w, "-----\t----\t------\t-------")
				for _, r := range resolutions {
					impl := r.Implementation
					switch {
					case r.Error != "":
						impl = "error: " + r.Error
					case r.Fallback:
						impl += " (fallback)"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Cache, r.Type, r.Family, impl)
				}
				return w.Flush()
			})
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the statistics of every configured cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				all, err := a.Stats(ctx)
				out := cmd.OutOrStdout()
				if opts.output == outputJSON {
					if werr := writeJSON(out, all); werr != nil {
						return werr
					}
					return err
				}

				for _, nc := range a.Caches() {
					values, ok := all[nc.Name]
					if !ok {
						continue
					}
					fmt.Fprintf(out, "%s (%s)\n", nc.Name, nc.Kind)
					if len(values) == 0 {
						fmt.Fprintln(out, "  no statistics available")
						continue
					}
					w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
					for _, key := range sortedKeys(values) {
						fmt.Fprintf(w, "  %s\t%s\n", key, formatStatistic(key, values[key]))
					}
					if werr := w.Flush(); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatStatistic(key string, value interface{}) string {
	switch key {
	case "size", "capacity":
		if n, ok := value.(int64); ok {
			return utils.FormatBytes(n)
		}
	case "hit_rate", "utilization":
		if f, ok := value.(float64); ok {
			return fmt.Sprintf("%.2f%%", f*100)
		}
	}
	return fmt.Sprint(value)
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run every cache health check once",
		Long:  "Run every cache health check once. Exits non-zero when any cache reports an error.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				results, err := a.Health(ctx)

				worst := health.SeverityOK
				for _, r := range results {
					if s := health.Worst(r); s > worst {
						worst = s
					}
				}

				out := cmd.OutOrStdout()
				if opts.output == outputJSON {
					if werr := writeJSON(out, map[string]interface{}{
						"status":  worst,
						"overall": a.Tracker().GetOverallHealth().String(),
						"caches":  results,
					}); werr != nil {
						return werr
					}
				} else {
					w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
					fmt.Fprintln(w, "Cache\tSeverity\tMessage")
					fmt.Fprintln(w, "-----\t--------\t-------")
					for _, nc := range a.Caches() {
						for _, r := range results[nc.Name] {
							fmt.Fprintf(w, "%s\t%s\t%s\n", nc.Name, r.Severity, r.Message)
						}
					}
					if werr := w.Flush(); werr != nil {
						return werr
					}
				}

				if err != nil {
					return err
				}
				if worst == health.SeverityError {
					return errors.NewError(errors.ErrCodeOperationFailed, "one or more caches are unhealthy")
				}
				return nil
			})
		},
	}
}

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [cache...]",
		Short: "Back up the named caches, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				results, err := a.Backup(ctx, args...)
				out := cmd.OutOrStdout()
				if opts.output == outputJSON {
					if werr := writeJSON(out, results); werr != nil {
						return werr
					}
					return err
				}

				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "Cache\tFormat\tEntries\tSize\tLocation")
				fmt.Fprintln(w, "-----\t------\t-------\t----\t--------")
				for _, r := range results {
					location := r.Location
					if r.Report.Skipped {
						location = "skipped: " + r.Report.Message
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						r.Name, r.Report.Format, r.Report.Entries, utils.FormatBytes(r.Report.Bytes), location)
				}
				if werr := w.Flush(); werr != nil {
					return werr
				}
				return err
			})
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and the admin API and run periodic health checks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) (err error) {
				apiConfig := a.Config().Monitoring.API
				if apiConfig.Enabled {
					server := api.NewServer(apiConfig, a, slog.Default())
					if err := server.Start(ctx); err != nil {
						return err
					}
					defer func() {
						stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						if serr := server.Shutdown(stopCtx); serr != nil && err == nil {
							err = serr
						}
					}()
				}
				return a.Serve(ctx)
			})
		},
	}
}
