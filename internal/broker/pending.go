package broker

import "sync"

// PendingTable is the per-side correlation_id → rendezvous-slot mapping
// from spec §3 "Pending-reply table". Entries are inserted before sending
// a request and removed when the matching `retq` arrives, or by Forget when
// the Ask that registered them stops waiting. Shutting down the owner does
// not clear the table.
type PendingTable struct {
	mu   sync.Mutex
	slot map[string]chan []any
}

// NewPendingTable builds an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{slot: make(map[string]chan []any)}
}

// Register allocates a new one-shot rendezvous channel for corrID. Callers
// must not register the same corrID twice concurrently.
func (p *PendingTable) Register(corrID string) chan []any {
	ch := make(chan []any, 1)
	p.mu.Lock()
	p.slot[corrID] = ch
	p.mu.Unlock()
	return ch
}

// Resolve delivers args to the waiting slot for corrID and removes the
// entry. It returns ErrUnknownCorrID if no such slot exists — spec §4.6:
// "Fail hard if corr_id is unknown."
func (p *PendingTable) Resolve(corrID string, args []any) error {
	p.mu.Lock()
	ch, ok := p.slot[corrID]
	if ok {
		delete(p.slot, corrID)
	}
	p.mu.Unlock()
	if !ok {
		return &ErrUnknownCorrID{CorrID: corrID}
	}
	ch <- args
	return nil
}

// Forget removes corrID without delivering a reply. Ask calls it when its
// own context ends before a reply arrives; nothing on the shutdown path
// calls it, so an entry whose Ask has no deadline stays in the table after
// its owner exits.
func (p *PendingTable) Forget(corrID string) {
	p.mu.Lock()
	delete(p.slot, corrID)
	p.mu.Unlock()
}

// Len reports the number of in-flight outbound asks — spec §4.6 invariant:
// "while in RUNNING, the pending table's size equals the number of
// in-flight outbound ask calls."
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slot)
}
