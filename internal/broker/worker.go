package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codemicro/sharesrv/internal/auth"
)

// Handler is a registered dotted-path operation (spec §9 "Dynamic
// attribute dispatch… a registry mapping string operation names to typed
// handler functions, registered at startup"). Invoking an unregistered
// name is a fatal invariant violation.
type Handler func(args []any) []any

// Worker is one HTTP-serving unit's control-plane side (spec §4.6 "Worker
// main loop"). Each Worker owns a pending table for its own outbound Ask
// calls and a registry of operations the controller can invoke on it
// (Controller.Ask).
type Worker struct {
	N int // worker index, mirrors copyparty's `self.n`

	Pend  <-chan Message // controller → worker
	Yield chan<- Message // worker → controller

	Auth     *auth.Store
	Registry map[string]Handler
	Log      *logrus.Entry

	pending *PendingTable
}

// NewWorker builds a Worker wired to its two channels.
func NewWorker(n int, pend <-chan Message, yield chan<- Message, store *auth.Store, registry map[string]Handler, log *logrus.Entry) *Worker {
	return &Worker{
		N:        n,
		Pend:     pend,
		Yield:    yield,
		Auth:     store,
		Registry: registry,
		Log:      log,
		pending:  NewPendingTable(),
	}
}

func (w *Worker) logw(msg string) {
	if w.Log != nil {
		w.Log.WithField("src", fmt.Sprintf("mp%d", w.N)).Info(msg)
	}
}

// Run drives the control-plane loop (spec §4.6 "Worker main loop") until
// `shutdown` is received or ctx is cancelled. It returns nil on a clean
// shutdown message, or the context's error on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// pending Ask calls on this worker are not cleared here;
			// each one returns only when its own context ends.
			return ctx.Err()
		case msg, ok := <-w.Pend:
			if !ok {
				return nil
			}
			if done, err := w.dispatch(msg); done {
				return err
			}
		}
	}
}

func (w *Worker) dispatch(msg Message) (done bool, err error) {
	switch msg.Dest {
	case DestRetq:
		if rerr := w.pending.Resolve(msg.CorrID, msg.Args); rerr != nil {
			// spec §7 kind 3: fatal for the worker.
			return true, rerr
		}
		return false, nil

	case DestShutdown:
		w.logw("ok bye")
		return true, nil

	case DestReload:
		w.logw("mpw.asrv reloading")
		// The reload snapshot travels as the message's sole argument;
		// callers (the controller) are responsible for building it from
		// the config collaborator, which stays out of scope here per
		// spec §1.
		if len(msg.Args) == 1 {
			if snap, ok := msg.Args[0].(auth.Snapshot); ok {
				w.Auth.Reload(snap)
			}
		}
		w.logw("mpw.asrv reloaded")
		return false, nil

	case DestReloadSessions:
		w.Auth.ReloadSessions()
		return false, nil

	default:
		handler, ok := w.Registry[msg.Dest]
		if !ok {
			return true, &ErrUnknownDest{Dest: msg.Dest}
		}
		rv := handler(msg.Args)
		if msg.CorrID != "" {
			w.Yield <- Message{CorrID: msg.CorrID, Dest: DestRetq, Args: rv}
		}
		return false, nil
	}
}

// Ask issues a request/response round-trip to the controller (spec §4.6
// "ask(dest, *args)"): it registers a pending slot, sends the request over
// Yield, and blocks on the slot until a matching `retq` arrives on Pend (or
// ctx is cancelled).
func (w *Worker) Ask(ctx context.Context, dest string, args ...any) ([]any, error) {
	corrID := uuid.New().String()
	ch := w.pending.Register(corrID)
	w.Yield <- Message{CorrID: corrID, Dest: dest, Args: args}
	select {
	case rv := <-ch:
		return rv, nil
	case <-ctx.Done():
		w.pending.Forget(corrID)
		return nil, ctx.Err()
	}
}

// Say sends a fire-and-forget message, or (with a nonzero corrID) a reply
// to a prior inbound request — spec §4.6 "say(dest, *args, corr_id=0)".
func (w *Worker) Say(dest string, corrID string, args ...any) {
	w.Yield <- Message{CorrID: corrID, Dest: dest, Args: args}
}

// PendingLen exposes the worker's outbound pending-table size, used by
// tests to assert the spec §4.6 RUNNING-state invariant.
func (w *Worker) PendingLen() int {
	return w.pending.Len()
}
