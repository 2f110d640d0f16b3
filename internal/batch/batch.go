// Package batch drives bounded-concurrency installs of many wheels at once
// (spec.md section 4.9, the parallel store-mode driver). Each wheel installs
// into its own store slot and so needs only its own slot lock: distinct
// wheels never contend, and errgroup's limit is purely a concurrency cap, not
// a mutual-exclusion mechanism.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/install"
)

// Job is one wheel to install, paired with the environment it targets.
// Distinct jobs may target distinct environments (e.g. several venvs
// sharing one store), so Spec travels with the job rather than being
// shared across the whole batch.
type Job struct {
	WheelPath string
	Spec      envspec.Spec
}

// Outcome is one job's result.
type Outcome struct {
	Job     Job
	Summary install.Summary
	Err     error
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxWorkers bounds how many installs run concurrently. Defaults to
// runtime.GOMAXPROCS(0).
func WithMaxWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxWorkers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithStopOnError aborts remaining jobs as soon as one fails. Default is to
// run every job to completion and report all outcomes.
func WithStopOnError(enabled bool) Option {
	return func(d *Driver) {
		d.stopOnError = enabled
	}
}

// Driver installs a batch of wheels concurrently, reusing a single
// install.Installer (typically one built with install.WithStore, so distinct
// wheels land in distinct slots instead of colliding on one venv).
type Driver struct {
	installer   install.Installer
	maxWorkers  int
	logger      *slog.Logger
	stopOnError bool
}

// New creates a Driver that installs each job with installer.
func New(installer install.Installer, opts ...Option) *Driver {
	d := &Driver{
		installer:  installer,
		maxWorkers: runtime.GOMAXPROCS(0),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run installs every job, up to maxWorkers at a time, and returns one
// Outcome per job in input order. Run itself never returns an error for
// individual install failures; those are carried in each Outcome.Err. Run
// only returns an error when stopOnError is set and at least one job failed,
// after every in-flight job has drained.
func (d *Driver) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxWorkers)

	var firstErr error

	for i, job := range jobs {
		g.Go(func() error {
			d.logger.Debug("batch install starting", slog.String("wheel", job.WheelPath))

			summary, err := d.installer.Install(gctx, job.WheelPath, job.Spec)

			mu.Lock()
			outcomes[i] = Outcome{Job: job, Summary: summary, Err: err}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("installing %s: %w", job.WheelPath, err)
			}
			mu.Unlock()

			if err != nil {
				d.logger.Warn("batch install failed", slog.String("wheel", job.WheelPath), slog.String("error", err.Error()))

				if d.stopOnError {
					return err
				}

				return nil
			}

			d.logger.Debug("batch install complete",
				slog.String("wheel", job.WheelPath),
				slog.String("dest", summary.Dest),
				slog.Bool("already_complete", summary.AlreadyComplete),
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	if d.stopOnError && firstErr != nil {
		return outcomes, firstErr
	}

	return outcomes, nil
}

// Failures filters outcomes down to the ones that errored.
func Failures(outcomes []Outcome) []Outcome {
	var failed []Outcome

	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}

	return failed
}
