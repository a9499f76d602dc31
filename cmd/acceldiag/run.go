package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/accelkit/acceldiag/internal/controller"
	"github.com/accelkit/acceldiag/internal/daemon"
	"github.com/accelkit/acceldiag/internal/diag"
	"github.com/accelkit/acceldiag/internal/render"
	"github.com/accelkit/acceldiag/internal/schema"
	"github.com/accelkit/acceldiag/internal/service"
	"github.com/accelkit/acceldiag/internal/sigbridge"
)

// Exit codes. Transport and daemon level failures rank above any verdict
// because no trustworthy response existed.
const (
	exitOK              = 0
	exitGenericFailure  = 2
	exitIsolateFailure  = 3
	exitKilled          = 4
	exitExecutionFailed = 5
)

func doRun(cmd *cobra.Command, _ []string) error {
	code, err := runDiagnostics(cmd.Context())
	if err != nil {
		return err
	}
	if code != exitOK {
		os.Exit(code)
	}
	return nil
}

func doWatch(cmd *cobra.Command, _ []string) error {
	if config.Schedule == nil {
		return fmt.Errorf("watch needs a diag.schedule section in %s", configPath)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Between runs the bridge forwards signals here instead of killing the
	// process, so the scheduler winds down cleanly.
	for _, sig := range sigbridge.Signals {
		sigbridge.Default.Chain(sig, func(s os.Signal) {
			slog.Info("stopping watch", "signal", s.String())
			cancel()
		})
	}
	sigbridge.Default.Install()

	s, err := service.NewScheduler(ctx, config.Schedule, func() {
		if code, err := runDiagnostics(ctx); err != nil {
			slog.Error("scheduled run failed", "err", err)
		} else if code != exitOK {
			slog.Warn("scheduled run unhealthy", "exitCode", code)
		}
	})
	if err != nil {
		return err
	}

	s.Start()
	slog.Info("watching", "schedule", config.Schedule)
	<-ctx.Done()
	return s.Shutdown()
}

// runDiagnostics performs one configured run (single host or fleet),
// reports it, and maps the outcome to an exit code.
func runDiagnostics(ctx context.Context) (int, error) {
	req := config.RunRequest()
	opts := []controller.Option{
		controller.WithIterations(config.Iterations),
		controller.WithCadence(config.Cadence),
	}

	if len(config.Hosts) > 0 {
		results := controller.RunHosts(ctx, sigbridge.Default, config.Hosts, req,
			func(host string) (daemon.Client, error) {
				return daemon.NewHTTPClient(host, config.Version)
			}, opts...)

		code := exitOK
		for _, host := range config.Hosts {
			res, ok := results[host]
			if !ok {
				continue
			}
			fmt.Printf("=== %s ===\n", host)
			c := report(res)
			if c > code {
				code = c
			}
		}
		return code, nil
	}

	client, err := daemon.NewHTTPClient(config.Host, config.Version)
	if err != nil {
		return exitExecutionFailed, err
	}
	c := controller.New(client, sigbridge.Default, opts...)
	return report(c.Run(ctx, req)), nil
}

// report prints one run's final outcome and returns its exit code.
func report(res controller.Result) int {
	out := res.Final

	if out.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", out.Err)
		return exitExecutionFailed
	}

	if out.Response != nil {
		var err error
		if flagJSON {
			err = render.JSON(os.Stdout, out.Response, out.Verdict)
		} else {
			err = render.Table(os.Stdout, out.Response, config.Verbose)
		}
		if err != nil {
			slog.Error("writing report", "err", err)
		}
	}

	if out.Iteration > 0 {
		fmt.Printf("Result after %d of %d iterations: %s\n",
			out.Iteration, config.Iterations, out.Verdict)
	}

	switch out.Verdict {
	case diag.VerdictOK:
		return exitOK
	case diag.VerdictIsolateFailure:
		summarize(out.Response)
		return exitIsolateFailure
	case diag.VerdictKilled:
		fmt.Fprintln(os.Stderr, "Diagnostic was aborted before completion")
		return exitKilled
	default:
		summarize(out.Response)
		return exitGenericFailure
	}
}

// summarize lists the failures behind a non-passing verdict, isolate
// class first.
func summarize(res *schema.RunResponse) {
	if res == nil {
		return
	}
	for _, f := range diag.Failures(res) {
		where := f.TestName
		if f.DeviceID != schema.DeviceIDNone {
			where = fmt.Sprintf("%s (device %d)", f.TestName, f.DeviceID)
		}
		if f.Priority == diag.PriorityIsolate {
			fmt.Fprintf(os.Stderr, "isolate: %s: %s\n", where, render.Sanitize(f.Message))
			continue
		}
		fmt.Fprintf(os.Stderr, "fail: %s: %s\n", where, render.Sanitize(f.Message))
	}
}
