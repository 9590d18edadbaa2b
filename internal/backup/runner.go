package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/retry"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Sink receives the backups. Required.
	Sink Sink

	// Prefix is prepended to every object name.
	Prefix string

	// Retry controls retries of Sink.Store.
	Retry retry.Config

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

// Result describes one completed run.
type Result struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Location string        `json:"location,omitempty"`
	Report   Report        `json:"report"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Runner adapts caches to Backup, serializes them and stores the result.
type Runner struct {
	sink    Sink
	prefix  string
	retryer *retry.Retryer
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner validates cfg and builds a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Sink == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "backup sink is required").
			WithComponent("backup")
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		sink:    cfg.Sink,
		prefix:  cfg.Prefix,
		retryer: retry.New(cfg.Retry),
		tracer:  tp.Tracer("capadapt.backup"),
		logger:  logger.With("component", "backup"),
		now:     time.Now,
	}, nil
}

// Run backs up one adaptable under name. Caches without backup support produce a
// skipped result and store nothing.
func (r *Runner) Run(ctx context.Context, name string, a adapter.Adaptable) (*Result, error) {
	id := uuid.NewString()
	start := r.now()

	ctx, span := r.tracer.Start(ctx, "backup.Run", trace.WithAttributes(
		attribute.String("backup.name", name),
		attribute.String("backup.id", id),
	))
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backup failed")
		r.logger.Error("backup failed", "name", name, "id", id, "error", err)
		return nil, err
	}

	b, err := adapter.As[Backup](a)
	if err != nil {
		return fail(fmt.Errorf("backup adapter for %s: %w", name, err))
	}

	var buf bytes.Buffer
	report, err := b.Backup(ctx, &buf)
	if err != nil {
		return fail(fmt.Errorf("backup %s: %w", name, err))
	}

	result := &Result{ID: id, Name: name, Report: report}
	span.SetAttributes(
		attribute.String("backup.format", report.Format),
		attribute.Int("backup.entries", report.Entries),
		attribute.Int64("backup.bytes", report.Bytes),
	)

	if report.Skipped {
		span.SetAttributes(attribute.Bool("backup.skipped", true))
		r.logger.Warn("backup skipped", "name", name, "reason", report.Message)
		result.Duration = r.now().Sub(start)
		return result, nil
	}

	object := r.objectName(name, id, start, report.Format)
	var location string
	attempts, err := r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		loc, err := r.sink.Store(ctx, object, buf.Bytes())
		if err != nil {
			return err
		}
		location = loc
		return nil
	})
	result.Attempts = attempts
	if err != nil {
		return fail(fmt.Errorf("store backup %s: %w", name, err))
	}

	result.Location = location
	result.Duration = r.now().Sub(start)
	span.SetAttributes(attribute.String("backup.location", location))
	r.logger.Info("backup stored",
		"name", name,
		"id", id,
		"location", location,
		"entries", report.Entries,
		"bytes", report.Bytes,
		"attempts", attempts,
	)
	return result, nil
}

func (r *Runner) objectName(name, id string, at time.Time, format string) string {
	file := at.UTC().Format("20060102T150405Z") + "-" + id + Extension(format)
	return path.Join(r.prefix, name, file)
}
