package orchestrator

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleSignals_CancelsOnSignal(t *testing.T) {
	sh := NewSignalHandler()
	defer sh.Stop()

	ctx := sh.HandleSignals(context.Background())
	sh.notify(syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after SIGTERM")
	}
}

func TestHandleSignals_FollowsParent(t *testing.T) {
	sh := NewSignalHandler()
	defer sh.Stop()

	parent, cancel := context.WithCancel(context.Background())
	ctx := sh.HandleSignals(parent)
	assert.NoError(t, ctx.Err())

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled with its parent")
	}
}
