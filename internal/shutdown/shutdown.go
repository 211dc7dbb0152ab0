// Package shutdown turns termination signals into context cancellation
// and runs registered cleanup hooks once.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

var Signals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

type Handler struct {
	mu     sync.Mutex
	funcs  []func()
	done   bool
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// Listen returns a context cancelled on the first termination signal.
// A second signal exits the process immediately.
func Listen(parent context.Context, log logrus.FieldLogger) (context.Context, *Handler) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, Signals...)
	return listen(parent, log, sigs, func() { os.Exit(1) })
}

func listen(parent context.Context, log logrus.FieldLogger, sigs <-chan os.Signal, force func()) (context.Context, *Handler) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{cancel: cancel, log: log}
	go func() {
		select {
		case sig := <-sigs:
			log.Warnf("received %v, stopping; press Ctrl+C again to force", sig)
			h.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigs:
			log.Errorf("received %v again, exiting", sig)
			force()
		case <-parent.Done():
		}
	}()
	return ctx, h
}

// Register adds f to the hooks run on Stop, in registration order. If
// Stop has already run, f runs immediately.
func (h *Handler) Register(f func()) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		f()
		return
	}
	h.funcs = append(h.funcs, f)
	h.mu.Unlock()
}

// Stop runs the hooks and cancels the context. Later calls are no-ops.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	for _, f := range h.funcs {
		f()
	}
	h.cancel()
}
