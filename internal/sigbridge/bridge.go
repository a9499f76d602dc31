// Package sigbridge turns process termination signals into a cooperative
// cancellation flag while a diagnostic run is in flight, and passes them
// through to whatever handling was in place otherwise.
//
// Signal delivery is process global, so a process normally uses the
// package Default bridge; tests construct their own.
package sigbridge

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signals is the fixed set of termination signals the bridge intercepts.
var Signals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTERM,
}

// Handler forwards a signal the bridge chose not to consume.
type Handler func(os.Signal)

// Bridge maps asynchronous termination signals to a cancellation flag.
// The flag path does no allocation and no I/O; both flags are lock free so
// they are safe to read from any goroutine at any time.
type Bridge struct {
	installOnce sync.Once
	installed   atomic.Bool

	cancellable atomic.Bool
	seen        atomic.Bool

	ch   chan os.Signal
	done chan struct{}

	mu   sync.Mutex
	prev map[os.Signal]Handler
}

// Default is the process-wide bridge.
var Default = New()

func New() *Bridge {
	return &Bridge{prev: make(map[os.Signal]Handler)}
}

// Chain records the previously active handling for sig, to be invoked when
// a signal arrives outside a cancellable window. Must be called before
// Install; signals without an explicit entry get the default disposition
// re-raise at install time.
func (b *Bridge) Chain(sig os.Signal, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prev[sig] = h
}

// Install takes over the termination signals. Idempotent: the second and
// later calls are no-ops.
func (b *Bridge) Install() {
	b.installOnce.Do(func() {
		b.mu.Lock()
		for _, sig := range Signals {
			if _, ok := b.prev[sig]; !ok {
				b.prev[sig] = b.resendDefault
			}
		}
		b.mu.Unlock()

		b.ch = make(chan os.Signal, len(Signals))
		b.done = make(chan struct{})
		signal.Notify(b.ch, Signals...)
		b.installed.Store(true)
		go b.loop()
	})
}

// Uninstall releases the signals and stops the bridge goroutine.
func (b *Bridge) Uninstall() {
	if !b.installed.CompareAndSwap(true, false) {
		return
	}
	signal.Stop(b.ch)
	close(b.done)
}

func (b *Bridge) loop() {
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.ch:
			if b.cancellable.Load() {
				b.seen.Store(true)
				continue
			}
			b.Resend(sig)
		}
	}
}

// SetCancellable opens or closes the cancellable window. Either transition
// clears the signal flag: the flag's lifetime is one run.
func (b *Bridge) SetCancellable(v bool) {
	b.cancellable.Store(v)
	b.seen.Store(false)
}

// Cancellable reports whether a run is currently marked abortable.
func (b *Bridge) Cancellable() bool {
	return b.cancellable.Load()
}

// SignalSeen reports whether a termination signal arrived inside the
// current cancellable window.
func (b *Bridge) SignalSeen() bool {
	return b.seen.Load()
}

// Resend forwards sig through the previous-handler registry, for use in a
// normal execution context when no diagnostic is running.
func (b *Bridge) Resend(sig os.Signal) {
	b.mu.Lock()
	h := b.prev[sig]
	b.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

// resendDefault restores the OS default disposition, re-raises, then
// re-arms the bridge. For terminating signals the process ends inside the
// raise; re-arming matters only for dispositions that let it survive.
func (b *Bridge) resendDefault(sig os.Signal) {
	ss, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	signal.Reset(sig)
	_ = unix.Kill(os.Getpid(), ss)
	signal.Notify(b.ch, sig)
}
