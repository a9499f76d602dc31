// Package controller drives diagnostic runs end to end: submit to the
// executor, poll for completion, honor external cancellation, classify
// the response, iterate.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/accelkit/acceldiag/internal/daemon"
	"github.com/accelkit/acceldiag/internal/diag"
	"github.com/accelkit/acceldiag/internal/executor"
	"github.com/accelkit/acceldiag/internal/schema"
	"github.com/accelkit/acceldiag/internal/sigbridge"
)

// Outcome is one iteration's terminal state. Err set means an executor or
// daemon level error: no valid response existed to classify, and the error
// kind takes precedence over any verdict.
type Outcome struct {
	// Iteration is 1-based; 0 for a single-shot run.
	Iteration uint32

	Verdict  diag.Verdict
	Response *schema.RunResponse
	Err      error
}

// Failed reports whether this outcome stops an iterative run.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Verdict != diag.VerdictOK
}

// Result is a whole run: the final outcome plus, for iterative runs, every
// iteration that executed.
type Result struct {
	Final      Outcome
	Iterations []Outcome
}

type Controller struct {
	exec         *executor.Executor
	bridge       *sigbridge.Bridge
	iterations   uint32
	cadence      time.Duration
	manageWindow bool
	log          *slog.Logger
}

type Option func(*Controller)

// WithIterations sets how many times the run is repeated. Values <= 1 mean
// a single run with no iteration bookkeeping.
func WithIterations(n uint32) Option {
	return func(c *Controller) { c.iterations = n }
}

// WithCadence overrides the poll interval.
func WithCadence(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cadence = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// withExternalWindow leaves the bridge's cancellable window to the caller;
// used when several controllers share one window (RunHosts).
func withExternalWindow() Option {
	return func(c *Controller) { c.manageWindow = false }
}

func New(client daemon.Client, bridge *sigbridge.Bridge, opts ...Option) *Controller {
	c := &Controller{
		exec:         executor.New(client),
		bridge:       bridge,
		iterations:   1,
		cadence:      executor.DefaultCadence,
		manageWindow: true,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs the configured number of iterations, fail-fast. Iteration
// i+1 is never submitted before iteration i's background task terminated,
// and responses are classified one at a time, in iteration order.
func (c *Controller) Run(ctx context.Context, req schema.RunRequest) Result {
	if c.iterations <= 1 {
		return Result{Final: c.runOnce(ctx, req)}
	}

	req.TotalIterations = c.iterations

	var iterations []Outcome
	var out Outcome
	for i := uint32(0); i < c.iterations; i++ {
		c.log.InfoContext(ctx, "running iteration",
			"current", i+1, "total", c.iterations)
		req.CurrentIteration = i

		out = c.runOnce(ctx, req)
		out.Iteration = i + 1
		iterations = append(iterations, out)

		if out.Failed() {
			break
		}
	}
	return Result{Final: out, Iterations: iterations}
}

func (c *Controller) runOnce(ctx context.Context, req schema.RunRequest) Outcome {
	c.bridge.Install()
	if c.manageWindow {
		c.bridge.SetCancellable(true)
		defer c.bridge.SetCancellable(false)
	}

	h, err := c.exec.Submit(ctx, req)
	if err != nil {
		return Outcome{Err: err}
	}

	ticker := time.NewTicker(c.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.exec.RequestStop(context.WithoutCancel(ctx), h)
			return Outcome{Verdict: diag.VerdictKilled}

		case <-ticker.C:
			// The signal check rides the poll tick, so an abort is observed
			// within one cadence even while the daemon round trip blocks.
			if c.bridge.SignalSeen() {
				c.exec.RequestStop(ctx, h)
				return Outcome{Verdict: diag.VerdictKilled}
			}

			res, done := h.Poll()
			if !done {
				continue
			}
			if res.Err != nil {
				if errors.Is(res.Err, executor.ErrKilled) {
					return Outcome{Verdict: diag.VerdictKilled}
				}
				return Outcome{Err: res.Err}
			}
			return Outcome{
				Verdict:  diag.Classify(res.Response),
				Response: res.Response,
			}
		}
	}
}
