package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// SignalHandler manages OS signals for graceful shutdown
type SignalHandler struct {
	sigChan chan os.Signal
}

// NewSignalHandler creates a signal handler registered for SIGINT and SIGTERM
func NewSignalHandler() *SignalHandler {
	sh := &SignalHandler{
		sigChan: make(chan os.Signal, 1),
	}
	signal.Notify(sh.sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sh
}

// HandleSignals cancels the returned context on the first shutdown signal or
// when parent is done. Call Stop once the context is no longer needed.
func (sh *SignalHandler) HandleSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		select {
		case sig, ok := <-sh.sigChan:
			if ok {
				log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			}
		case <-ctx.Done():
		}
	}()
	return ctx
}

// Stop unregisters the handler.
func (sh *SignalHandler) Stop() {
	signal.Stop(sh.sigChan)
}

// notify delivers sig as if the OS had sent it.
func (sh *SignalHandler) notify(sig os.Signal) {
	sh.sigChan <- sig
}
