package stats

import (
	"context"
	stderr "errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/health"
)

var tracer = otel.Tracer("capadapt.stats")

// Target is a named adaptable to check.
type Target struct {
	Name  string
	Cache adapter.Adaptable
}

// Of returns the CacheStatistics adapter of a.
func Of(a adapter.Adaptable) (CacheStatistics, error) {
	return adapter.As[CacheStatistics](a)
}

// CheckAll runs CheckHealth on every target and records the results in tracker when
// it is non-nil. Targets whose adapter cannot be resolved are recorded as errors and
// reported in the returned error; the remaining targets are still checked.
func CheckAll(ctx context.Context, targets []Target, tracker *health.Tracker) (map[string][]health.Result, error) {
	ctx, span := tracer.Start(ctx, "stats.CheckAll",
		trace.WithAttributes(attribute.Int("stats.targets", len(targets))),
	)
	defer span.End()

	out := make(map[string][]health.Result, len(targets))
	var errs []error

	for _, target := range targets {
		if tracker != nil {
			tracker.RegisterComponent(target.Name)
		}

		s, err := Of(target.Cache)
		if err != nil {
			err = fmt.Errorf("statistics for %s: %w", target.Name, err)
			errs = append(errs, err)
			if tracker != nil {
				tracker.RecordError(target.Name, err)
			}
			out[target.Name] = []health.Result{{
				Component: target.Name,
				Severity:  health.SeverityError,
				Message:   err.Error(),
			}}
			continue
		}

		results := s.CheckHealth(ctx)
		out[target.Name] = results
		if tracker != nil {
			tracker.RecordResults(target.Name, results)
		}
	}

	err := stderr.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics resolution failed")
	}
	span.SetAttributes(attribute.Int("stats.failures", len(errs)))
	return out, err
}
