package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/visionboost/portal/internal/api"
)

// maxParallelFetches bounds the upstream calls one page load has in flight.
const maxParallelFetches = 6

// Fetch is one named call in a page load.
type Fetch struct {
	Name string
	Run  func(ctx context.Context) error
}

// Into builds a Fetch that stores fn's result in dst on success. On failure
// dst keeps its zero value.
func Into[T any](name string, dst *T, fn func(ctx context.Context) (T, error)) Fetch {
	return Fetch{Name: name, Run: func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}}
}

// Failure records one fetch that did not complete.
type Failure struct {
	Name string
	Err  error
}

// Failures lists the fetches of a page load that failed.
type Failures []Failure

// Unauthorized reports whether any fetch was rejected with 401.
func (f Failures) Unauthorized() bool {
	for _, failure := range f {
		if api.IsUnauthorized(failure.Err) {
			return true
		}
	}
	return false
}

// Failed reports whether the named fetch failed.
func (f Failures) Failed(name string) bool {
	for _, failure := range f {
		if failure.Name == name {
			return true
		}
	}
	return false
}

// Messages returns one user-facing line per failure.
func (f Failures) Messages() []string {
	out := make([]string, 0, len(f))
	for _, failure := range f {
		out = append(out, failure.Name+": "+api.UserMessage(failure.Err))
	}
	return out
}

// Err joins the failures, nil when every fetch succeeded.
func (f Failures) Err() error {
	errs := make([]error, 0, len(f))
	for _, failure := range f {
		errs = append(errs, failure.Err)
	}
	return errors.Join(errs...)
}

// Join runs fetches concurrently and waits for all of them. A failing fetch
// never cancels its siblings; successes are kept and failures are logged and
// returned in fetch order.
func Join(ctx context.Context, logger *slog.Logger, fetches ...Fetch) Failures {
	errs := make([]error, len(fetches))
	// Each slot keeps its own error; returning it to the group would only
	// surface the first one.
	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, f := range fetches {
		g.Go(func() error {
			errs[i] = f.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failures Failures
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := fetches[i].Name
		failures = append(failures, Failure{Name: name, Err: err})
		if logger == nil {
			continue
		}
		attrs := []any{slog.String("fetch", name), slog.Any("error", err)}
		switch {
		case api.IsShape(err):
			logger.Warn("unexpected response shape", attrs...)
		case errors.Is(err, context.Canceled):
			logger.Debug("fetch cancelled", attrs...)
		default:
			logger.Warn("dashboard fetch failed", attrs...)
		}
	}
	return failures
}
