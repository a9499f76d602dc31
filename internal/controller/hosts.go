package controller

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/accelkit/acceldiag/internal/daemon"
	"github.com/accelkit/acceldiag/internal/log"
	"github.com/accelkit/acceldiag/internal/schema"
	"github.com/accelkit/acceldiag/internal/sigbridge"
)

// hostConcurrency bounds how many daemons are diagnosed at once.
const hostConcurrency = 4

// ClientFactory builds a daemon client for one host.
type ClientFactory func(host string) (daemon.Client, error)

// RunHosts runs the same request against several daemons concurrently and
// collects per-host results. The cancellable window spans the whole fan
// out: one termination signal aborts every in-flight run. One host's
// problems never touch the others: fail-fast applies within a host's own
// iterations only, and a host whose client cannot be built gets that
// error as its result while the rest keep running.
func RunHosts(ctx context.Context, bridge *sigbridge.Bridge, hosts []string, req schema.RunRequest, newClient ClientFactory, opts ...Option) map[string]Result {
	bridge.Install()
	bridge.SetCancellable(true)
	defer bridge.SetCancellable(false)

	var g errgroup.Group
	g.SetLimit(hostConcurrency)

	var mu sync.Mutex
	results := make(map[string]Result, len(hosts))
	record := func(host string, res Result) {
		mu.Lock()
		results[host] = res
		mu.Unlock()
	}

	for _, host := range hosts {
		host := host
		g.Go(func() error {
			client, err := newClient(host)
			if err != nil {
				record(host, Result{Final: Outcome{Err: fmt.Errorf("host %s: %w", host, err)}})
				return nil
			}
			c := New(client, bridge, append(opts, withExternalWindow())...)
			record(host, c.Run(log.HostAttrs(ctx, host), req))
			return nil
		})
	}

	_ = g.Wait()
	return results
}
