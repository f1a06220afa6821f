package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), nil, time.Second, "ok", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestSafeGo_LogsError(t *testing.T) {
	out := &syncBuffer{}
	logger := observability.NewLogger(observability.DebugLevel, out)

	SafeGo(context.Background(), logger, time.Second, "failing task", func(ctx context.Context) error {
		return errors.New("boom")
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "background task failed")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "failing task")
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	out := &syncBuffer{}
	logger := observability.NewLogger(observability.DebugLevel, out)

	SafeGo(context.Background(), logger, time.Second, "panicky", func(ctx context.Context) error {
		panic("kaboom")
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "PANIC recovered")
	}, time.Second, 5*time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	errCh := make(chan error, 1)
	SafeGo(context.Background(), nil, 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("timeout not enforced")
	}
}

func TestSafeGoNoError(t *testing.T) {
	done := make(chan struct{})
	SafeGoNoError(context.Background(), nil, 0, "noerr", func(ctx context.Context) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
