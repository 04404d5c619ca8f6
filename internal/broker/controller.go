package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/codemicro/sharesrv/internal/auth"
)

func askCorrID() string { return uuid.New().String() }

// workerHandle is the controller's view of one spawned worker: its two
// channels and the Worker value itself (so the controller can, e.g., read
// PendingLen() in tests).
type workerHandle struct {
	worker *Worker
	pend   chan Message // controller → worker
	yield  chan Message // worker → controller
}

// RestartCounter is the narrow metrics hook the controller increments each
// time it respawns a crashed worker (spec §7: "the controller is
// responsible for respawning"). Kept as an interface rather than a direct
// *metrics.Collectors field so this package doesn't need to import
// internal/metrics just to count restarts.
type RestartCounter interface {
	Inc()
}

// Controller owns N workers and the control-plane side of the broker
// (spec §4.6 "Controller"). Request dispatch of accepted sockets is out of
// scope here (spec §4.6): the Controller only ever routes IPC messages.
type Controller struct {
	Registry map[string]Handler
	Log      *logrus.Entry

	// Restarts counts worker respawns, if set. Nil is fine; Spawn just
	// skips the increment.
	Restarts RestartCounter

	mu      sync.RWMutex
	workers []*workerHandle
	pending *PendingTable
}

func (c *Controller) workerAt(idx int) *workerHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx >= len(c.workers) {
		return nil
	}
	return c.workers[idx]
}

func (c *Controller) setWorkerAt(idx int, h *workerHandle) {
	c.mu.Lock()
	c.workers[idx] = h
	c.mu.Unlock()
}

func (c *Controller) allWorkers() []*workerHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*workerHandle(nil), c.workers...)
}

func (c *Controller) appendWorker(h *workerHandle) {
	c.mu.Lock()
	c.workers = append(c.workers, h)
	c.mu.Unlock()
}

// NewController builds a Controller. registry is the set of dotted-path
// operations workers may invoke on the controller; spawned workers get
// their own registry from Spawn's workerRegistry argument.
func NewController(registry map[string]Handler, log *logrus.Entry) *Controller {
	return &Controller{
		Registry: registry,
		Log:      log,
		pending:  NewPendingTable(),
	}
}

// Spawn starts n workers against store and blocks until ctx is cancelled
// or every worker has exited cleanly.
// Each worker is supervised independently (spec §7: "a dispatched call
// that crashes terminates the worker; the controller is responsible for
// respawning"): a worker that exits with a fatal invariant-violation error
// is logged and replaced with a fresh one on new channels rather than
// tearing down the whole pool, incrementing Restarts if set. A worker that
// exits cleanly (shutdown message, or ctx cancellation) is not respawned.
func (c *Controller) Spawn(ctx context.Context, n int, store *auth.Store, workerRegistry map[string]Handler) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		idx := i
		pend := make(chan Message, 16)
		yield := make(chan Message, 16)
		w := NewWorker(idx, pend, yield, store, workerRegistry, c.Log)
		h := &workerHandle{worker: w, pend: pend, yield: yield}
		c.appendWorker(h)

		g.Go(func() error { return c.superviseWorker(gctx, idx, store, workerRegistry) })
	}

	return g.Wait()
}

// superviseWorker runs the worker at idx, and its own yield-drain loop,
// to completion. A fatal error from either respawns both together on
// fresh channels so a crashed worker's stale yield channel is never left
// undrained; ctx cancellation or a clean exit (shutdown) ends supervision
// for good.
func (c *Controller) superviseWorker(ctx context.Context, idx int, store *auth.Store, workerRegistry map[string]Handler) error {
	for {
		h := c.workerAt(idx)

		genCtx, stop := context.WithCancel(ctx)
		drainErr := make(chan error, 1)
		go func() {
			derr := c.drain(genCtx, h)
			stop()
			drainErr <- derr
		}()

		err := h.worker.Run(genCtx)
		stop()
		if derr := <-drainErr; err != nil && derr != nil && derr != context.Canceled {
			err = derr
		}

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		if c.Log != nil {
			c.Log.WithError(err).WithField("worker", idx).Warn("worker crashed, respawning")
		}
		if c.Restarts != nil {
			c.Restarts.Inc()
		}

		pend := make(chan Message, 16)
		yield := make(chan Message, 16)
		nw := NewWorker(idx, pend, yield, store, workerRegistry, c.Log)
		c.setWorkerAt(idx, &workerHandle{worker: nw, pend: pend, yield: yield})
	}
}

// drain is the controller-side reader of one worker's yield channel: it
// interprets `(_, "log", [src, msg, lvl])` as an async log event, resolves
// `retq` replies to the controller's own pending Ask calls, and otherwise
// dispatches dotted-path requests against the controller's registry,
// mirroring spec §4.6 "Controller→worker round-trip. Symmetric."
func (c *Controller) drain(ctx context.Context, h *workerHandle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-h.yield:
			if !ok {
				return nil
			}
			if err := c.handleFromWorker(h, msg); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) handleFromWorker(h *workerHandle, msg Message) error {
	switch msg.Dest {
	case DestLog:
		if c.Log != nil && len(msg.Args) >= 2 {
			src, _ := msg.Args[0].(string)
			text, _ := msg.Args[1].(string)
			c.Log.WithField("src", src).Info(text)
		}
		return nil
	case DestRetq:
		if err := c.pending.Resolve(msg.CorrID, msg.Args); err != nil {
			return err
		}
		return nil
	default:
		handler, ok := c.Registry[msg.Dest]
		if !ok {
			return &ErrUnknownDest{Dest: msg.Dest}
		}
		rv := handler(msg.Args)
		if msg.CorrID != "" {
			h.pend <- Message{CorrID: msg.CorrID, Dest: DestRetq, Args: rv}
		}
		return nil
	}
}

// Reload broadcasts a `reload` message carrying snap to every worker
// (spec §4.6 "reload").
func (c *Controller) Reload(snap auth.Snapshot) {
	for _, h := range c.allWorkers() {
		h.pend <- Message{Dest: DestReload, Args: []any{snap}}
	}
}

// ReloadSessions broadcasts `reload_sessions` to every worker.
func (c *Controller) ReloadSessions() {
	for _, h := range c.allWorkers() {
		h.pend <- Message{Dest: DestReloadSessions}
	}
}

// Shutdown broadcasts `shutdown` to every worker so each exits its control
// loop (spec §4.6 state machine: RUNNING → DRAINING → exit).
func (c *Controller) Shutdown() {
	for _, h := range c.allWorkers() {
		h.pend <- Message{Dest: DestShutdown}
	}
}

// Ask issues a controller-initiated request/response round-trip to a
// specific worker, symmetric to Worker.Ask (spec §4.6
// "Controller→worker round-trip. Symmetric.").
func (c *Controller) Ask(ctx context.Context, workerIdx int, dest string, args ...any) ([]any, error) {
	h := c.workerAt(workerIdx)
	corrID := askCorrID()
	ch := c.pending.Register(corrID)
	h.pend <- Message{CorrID: corrID, Dest: dest, Args: args}
	select {
	case rv := <-ch:
		return rv, nil
	case <-ctx.Done():
		c.pending.Forget(corrID)
		return nil, ctx.Err()
	}
}
