package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interax-protocol/interax-go/pkg/model"
)

var testPath = model.CommandPath{Endpoint: 1, Cluster: 10, Command: 1}

func TestInvokeSuccess(t *testing.T) {
	d := New(nil)

	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"echo": params["in"]}, nil
	}

	result, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, map[string]any{"in": "hello"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", result["echo"])
	assert.Equal(t, 0, d.PendingCount())
}

func TestInvokeHandlerError(t *testing.T) {
	d := New(nil)

	boom := errors.New("relay stuck")
	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, boom
	}

	_, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, nil, time.Second)
	require.Error(t, err)

	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.ErrorIs(t, err, boom)
}

func TestInvokeDeadlineExceeded(t *testing.T) {
	d := New(nil)

	released := make(chan struct{})
	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		<-released
		return map[string]any{"late": true}, nil
	}

	start := time.Now()
	_, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, nil, 100*time.Millisecond)
	close(released)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, d.PendingCount())
}

func TestInvokeHandlerSeesDeadline(t *testing.T) {
	d := New(nil)

	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("no deadline on handler context")
		}
		return map[string]any{"remaining_ms": time.Until(deadline).Milliseconds()}, nil
	}

	result, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, nil, time.Second)
	require.NoError(t, err)
	assert.Greater(t, result["remaining_ms"].(int64), int64(0))
}

func TestInvokeDefaultDeadline(t *testing.T) {
	d := New(nil)

	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		deadline, _ := ctx.Deadline()
		return map[string]any{"deadline": deadline}, nil
	}

	result, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, nil, 0)
	require.NoError(t, err)

	deadline := result["deadline"].(time.Time)
	assert.WithinDuration(t, time.Now().Add(DefaultDeadline), deadline, 2*time.Second)
}

func TestCancelEndpointUnblocksCaller(t *testing.T) {
	d := New(nil)

	started := make(chan struct{})
	blocked := make(chan struct{})
	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		close(started)
		<-blocked
		return nil, nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, nil, time.Minute)
		errCh <- err
	}()

	<-started
	assert.Equal(t, 1, d.PendingForEndpoint(1))

	d.CancelEndpoint(1)
	close(blocked)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("caller not unblocked by cancellation")
	}
	assert.Equal(t, 0, d.PendingForEndpoint(1))
}

func TestCancelSubject(t *testing.T) {
	d := New(nil)

	blocked := make(chan struct{})
	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		<-blocked
		return nil, nil
	}
	defer close(blocked)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, subject := range []model.Identity{"fab-1/2", "fab-1/2"} {
		wg.Add(1)
		go func(s model.Identity) {
			defer wg.Done()
			_, err := d.Invoke(context.Background(), s, testPath, handler, nil, time.Minute)
			errs <- err
		}(subject)
	}

	require.Eventually(t, func() bool { return d.PendingCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	d.CancelSubject("fab-1/2")
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrCancelled)
	}
}

func TestFirstTerminalStatusWins(t *testing.T) {
	inv := newInvocation(1, "fab-1/2", testPath, time.Now().Add(time.Second))

	assert.True(t, inv.finish(StatusCompleted, map[string]any{"ok": true}, nil))
	assert.False(t, inv.finish(StatusTimedOut, nil, ErrTimeout))
	assert.False(t, inv.finish(StatusCancelled, nil, ErrCancelled))

	status, result, err := inv.outcome()
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, true, result["ok"])
	assert.NoError(t, err)
}

func TestNextCorrelationIDNeverZero(t *testing.T) {
	d := New(nil)

	// Force the counter near wraparound
	d.nextID.Store(^uint32(0) - 1)

	seen := make(map[uint32]bool)
	for i := 0; i < 4; i++ {
		id := d.NextCorrelationID()
		assert.NotZero(t, id)
		assert.False(t, seen[id], "correlation id reused")
		seen[id] = true
	}
}

func TestConcurrentInvokes(t *testing.T) {
	d := New(nil)

	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"n": params["n"]}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := d.Invoke(context.Background(), "fab-1/2", testPath, handler, map[string]any{"n": n}, time.Second)
			assert.NoError(t, err)
			assert.Equal(t, n, result["n"])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, d.PendingCount())
}
