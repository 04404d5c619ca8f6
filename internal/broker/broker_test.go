package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/codemicro/sharesrv/internal/auth"
	"github.com/codemicro/sharesrv/internal/vfs"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func testStore(t *testing.T) *auth.Store {
	return auth.New(auth.Snapshot{
		Mount: []*vfs.Node{{Name: "pub", RealPath: t.TempDir(), ReadACL: map[string]bool{"*": true}}},
	}, testLog())
}

// TestWorkerAskControllerRoundTrip reproduces spec §8 end-to-end scenario
// 6: a worker asks "counter.get", the controller replies with [7], and
// the pending table returns to empty afterward.
func TestWorkerAskControllerRoundTrip(t *testing.T) {
	registry := map[string]Handler{
		"counter.get": func(args []any) []any { return []any{7} },
	}
	ctrl := NewController(registry, testLog())

	pend := make(chan Message, 4)
	yield := make(chan Message, 4)
	w := NewWorker(0, pend, yield, testStore(t), nil, testLog())

	h := &workerHandle{worker: w, pend: pend, yield: yield}
	ctrl.workers = append(ctrl.workers, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()
	go func() { _ = ctrl.drain(ctx, h) }()

	rv, err := w.Ask(context.Background(), "counter.get")
	require.NoError(t, err)
	require.Equal(t, []any{7}, rv)

	require.Eventually(t, func() bool { return w.PendingLen() == 0 }, time.Second, time.Millisecond)
}

func TestWorkerDispatchesRegisteredDottedPath(t *testing.T) {
	registry := map[string]Handler{
		"httpsrv.num_clients": func(args []any) []any { return []any{42} },
	}
	pend := make(chan Message, 4)
	yield := make(chan Message, 4)
	w := NewWorker(0, pend, yield, testStore(t), registry, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	pend <- Message{CorrID: "abc", Dest: "httpsrv.num_clients"}
	select {
	case msg := <-yield:
		require.Equal(t, DestRetq, msg.Dest)
		require.Equal(t, []any{42}, msg.Args)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retq")
	}
}

func TestWorkerUnknownDestIsFatal(t *testing.T) {
	pend := make(chan Message, 4)
	yield := make(chan Message, 4)
	w := NewWorker(0, pend, yield, testStore(t), nil, testLog())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	pend <- Message{Dest: "no.such.op"}
	select {
	case err := <-errCh:
		require.Error(t, err)
		var unk *ErrUnknownDest
		require.ErrorAs(t, err, &unk)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on unknown dest")
	}
}

func TestWorkerShutdownExitsCleanly(t *testing.T) {
	pend := make(chan Message, 4)
	yield := make(chan Message, 4)
	w := NewWorker(0, pend, yield, testStore(t), nil, testLog())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	pend <- Message{Dest: DestShutdown}
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on shutdown")
	}
}

func TestWorkerReloadSessions(t *testing.T) {
	store := testStore(t)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	store.Reload(auth.Snapshot{Users: []*auth.User{{Name: "bob", BcryptHash: hash}}})
	require.True(t, store.Login("tok", "pw"))
	require.Equal(t, "bob", store.Resolve("tok"))

	pend := make(chan Message, 4)
	yield := make(chan Message, 4)
	w := NewWorker(0, pend, yield, store, nil, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	pend <- Message{Dest: DestReloadSessions}
	require.Eventually(t, func() bool { return store.Resolve("tok") == "*" }, time.Second, time.Millisecond)
}

func TestPendingTableEmptyAfterRoundTrip(t *testing.T) {
	pt := NewPendingTable()
	ch := pt.Register("id-1")
	require.Equal(t, 1, pt.Len())

	require.NoError(t, pt.Resolve("id-1", []any{"ok"}))
	require.Equal(t, 0, pt.Len())
	require.Equal(t, []any{"ok"}, <-ch)
}

func TestPendingTableUnknownCorrIDFails(t *testing.T) {
	pt := NewPendingTable()
	err := pt.Resolve("missing", nil)
	require.Error(t, err)
}

type countingRestarter struct {
	mu sync.Mutex
	n  int
}

func (c *countingRestarter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingRestarter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// TestSpawnRespawnsCrashedWorker reproduces spec §7's "the controller is
// responsible for respawning": a worker that hits an unknown dotted
// destination exits with a fatal error, and Spawn brings up a replacement
// on fresh channels rather than tearing down the whole pool.
func TestSpawnRespawnsCrashedWorker(t *testing.T) {
	ctrl := NewController(nil, testLog())
	restarts := &countingRestarter{}
	ctrl.Restarts = restarts

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Spawn(ctx, 1, testStore(t), nil) }()

	require.Eventually(t, func() bool {
		return ctrl.workerAt(0) != nil
	}, time.Second, time.Millisecond)

	ctrl.workerAt(0).pend <- Message{Dest: "no.such.op"}

	require.Eventually(t, func() bool { return restarts.count() >= 1 }, time.Second, time.Millisecond)

	// the replacement worker is alive, fresh, and has nothing pending.
	require.Equal(t, 0, ctrl.workerAt(0).worker.PendingLen())

	cancel()
	<-done
}
