package workers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"dapp-bootstrap/core"
	"dapp-bootstrap/workers"

	"github.com/ChainSafe/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	lock         sync.Mutex
	running      map[string]int
	started      []string
	failAccounts error
}

func (w *fakeWatcher) run(ctx context.Context, name string) error {
	w.lock.Lock()
	w.running[name]++
	w.started = append(w.started, name)
	w.lock.Unlock()
	<-ctx.Done()
	w.lock.Lock()
	w.running[name]--
	w.lock.Unlock()
	return ctx.Err()
}

func (w *fakeWatcher) active() map[string]int {
	w.lock.Lock()
	defer w.lock.Unlock()
	out := make(map[string]int)
	for k, v := range w.running {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (w *fakeWatcher) PollBlocks(ctx context.Context, req core.StartBlockPolling) error {
	return w.run(ctx, "poll")
}

func (w *fakeWatcher) ListenBlocks(ctx context.Context, req core.StartBlockListening) error {
	return w.run(ctx, "listen")
}

func (w *fakeWatcher) PollAccounts(ctx context.Context, req core.StartAccountPolling) error {
	if w.failAccounts != nil {
		return w.failAccounts
	}
	return w.run(ctx, "accounts")
}

func start(t *testing.T, w *fakeWatcher) (*core.Store, *core.Runner) {
	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())
	runner := core.NewRunner(logger)
	s := core.NewStore(logger, map[string]core.Reducer{}, nil, runner.Middleware())
	require.NoError(t, runner.Run(context.Background(), workers.Blocks(w), workers.Accounts(w)))
	t.Cleanup(runner.Stop)
	return s, runner
}

func TestSingleBlockObserver(t *testing.T) {
	w := &fakeWatcher{running: make(map[string]int)}
	s, runner := start(t, w)

	require.NoError(t, s.Dispatch(core.StartBlockPolling{Interval: time.Second}))
	require.Eventually(t, func() bool { return w.active()["poll"] == 1 }, time.Second, 2*time.Millisecond)

	require.NoError(t, s.Dispatch(core.StartBlockListening{}))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(map[string]int{"listen": 1}, w.active())
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, s.Dispatch(core.StartBlockListening{}))
	require.Eventually(t, func() bool {
		w.lock.Lock()
		defer w.lock.Unlock()
		return len(w.started) == 3
	}, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(map[string]int{"listen": 1}, w.active())
	}, time.Second, 2*time.Millisecond)

	runner.Stop()
	require.NoError(t, runner.Wait())
	assert.Empty(t, w.active())
}

func TestAccountPollerRestarts(t *testing.T) {
	w := &fakeWatcher{running: make(map[string]int)}
	s, runner := start(t, w)

	require.NoError(t, s.Dispatch(core.StartAccountPolling{Interval: time.Second}))
	require.NoError(t, s.Dispatch(core.StartAccountPolling{Interval: 2 * time.Second}))
	require.Eventually(t, func() bool {
		w.lock.Lock()
		defer w.lock.Unlock()
		return len(w.started) >= 1
	}, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(map[string]int{"accounts": 1}, w.active())
	}, time.Second, 2*time.Millisecond)

	runner.Stop()
	assert.NoError(t, runner.Wait())
}

func TestWorkerFailureIsFatal(t *testing.T) {
	boom := assert.AnError
	w := &fakeWatcher{running: make(map[string]int), failAccounts: boom}
	s, runner := start(t, w)

	require.NoError(t, s.Dispatch(core.StartBlockListening{}))
	require.NoError(t, s.Dispatch(core.StartAccountPolling{Interval: time.Second}))

	assert.ErrorIs(t, runner.Wait(), boom)
	assert.Empty(t, w.active())
}
