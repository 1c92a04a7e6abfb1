package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
)

// ErrClosed is returned for saves requested after Close.
var ErrClosed = errors.New("controller closed")

// recovery is what the controller does about a backend failure.
type recovery int

const (
	// recoverDegrade switches to the document store for the rest of the run.
	recoverDegrade recovery = iota + 1
	// recoverFallback writes the current snapshot to the document store and
	// keeps using the primary backend for later saves.
	recoverFallback
	// recoverSurface logs the failure and reports it to the caller.
	recoverSurface
)

func recoveryFor(err error) recovery {
	switch store.KindOf(err) {
	case store.KindUnavailable, store.KindConnection, store.KindSchema, store.KindQuery:
		return recoverDegrade
	case store.KindWrite:
		return recoverFallback
	}
	return recoverSurface
}

// classify gives err the kind k unless it already carries one.
func classify(k store.ErrorKind, op string, err error) error {
	if store.KindOf(err) != 0 {
		return err
	}
	return store.Errorf(k, op, err)
}

// Pending is the result of a Save. It can be ignored, polled or awaited.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolved(err error) *Pending {
	p := newPending()
	p.resolve(err)
	return p
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the save has been written.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the save completes or ctx is done. A save whose primary
// write failed but whose fallback write succeeded reports nil.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Save snapshots the Ledger and queues it for writing. At most one write
// runs at a time. Saves requested while a write is running share a single
// pending slot: the latest snapshot wins and every caller waiting on the
// slot gets that write's result.
func (c *Controller) Save(ctx context.Context) *Pending {
	snap, err := c.ledger.Snapshot()
	if err != nil {
		c.logger.Error("snapshot ledger", "err", err)
		return resolved(err)
	}
	return c.queue.submit(context.WithoutCancel(ctx), snap)
}

// persist writes one snapshot. It runs on the save worker.
func (c *Controller) persist(ctx context.Context, snap *model.Snapshot) error {
	if snap.Skipped > 0 {
		c.logger.Debug("skipping records without a key", "count", snap.Skipped)
	}
	if !c.usePrimary() {
		return c.writeDocument(ctx, snap, false)
	}

	backend := c.Backend()
	err := c.primary.BulkWrite(ctx, BuildWriteSet(snap))
	if err == nil {
		c.publish(ctx, events.TopicSaved, events.Saved{
			Backend: backend,
			Records: snapshotRecords(snap),
			Skipped: snap.Skipped,
		})
		return nil
	}

	err = classify(store.KindWrite, "bulk write", err)
	c.logger.Error("save to primary backend failed, writing document store", "backend", backend, "err", err)
	c.publish(ctx, events.TopicSaveFailed, events.SaveFailed{Backend: backend, Error: err.Error()})
	if recoveryFor(err) == recoverSurface {
		return err
	}
	return c.writeDocument(ctx, snap, true)
}

func (c *Controller) writeDocument(ctx context.Context, snap *model.Snapshot, fallback bool) error {
	if err := c.docs.WriteDocument(ctx, snap.Document); err != nil {
		err = classify(store.KindDocument, "write document", err)
		c.logger.Error("save to document store failed", "err", err)
		c.publish(ctx, events.TopicSaveFailed, events.SaveFailed{Backend: BackendDocument, Error: err.Error()})
		return err
	}
	c.publish(ctx, events.TopicSaved, events.Saved{
		Backend:  BackendDocument,
		Records:  snapshotRecords(snap),
		Skipped:  snap.Skipped,
		Fallback: fallback,
	})
	return nil
}

// BuildWriteSet renders a snapshot as the statements that make the primary
// backend converge on it: one upsert per settings field, then for each
// collection a delete of every row not in the snapshot followed by an upsert
// per record. Each upsert carries the record's position so hydration can
// restore the collection order.
func BuildWriteSet(snap *model.Snapshot) store.WriteSet {
	ws := make(store.WriteSet, 0, len(snap.Settings)+snapshotRecords(snap)+len(model.Collections))
	for _, e := range snap.Settings {
		ws = append(ws, store.Statement{
			Kind:    store.StmtUpsert,
			Table:   store.SettingsTable,
			Key:     e.Key,
			Payload: e.Value,
		})
	}
	for _, c := range model.Collections {
		entries := snap.Collections[c]
		keep := make([]string, 0, len(entries))
		for _, e := range entries {
			keep = append(keep, e.Key)
		}
		ws = append(ws, store.Statement{
			Kind:  store.StmtDeleteExcept,
			Table: c.String(),
			Keep:  keep,
		})
		for i, e := range entries {
			ws = append(ws, store.Statement{
				Kind:    store.StmtUpsert,
				Table:   c.String(),
				Key:     e.Key,
				Payload: e.Value,
				Seq:     i,
			})
		}
	}
	return ws
}

func snapshotRecords(snap *model.Snapshot) int {
	n := 0
	for _, entries := range snap.Collections {
		n += len(entries)
	}
	return n
}

// saveQueue runs writes one at a time with a single coalescing slot.
type saveQueue struct {
	write func(context.Context, *model.Snapshot) error

	mu      sync.Mutex
	running bool
	closed  bool
	next    *Pending
	nextCtx context.Context
	snap    *model.Snapshot
	wg      sync.WaitGroup
}

func newSaveQueue(write func(context.Context, *model.Snapshot) error) *saveQueue {
	return &saveQueue{write: write}
}

func (q *saveQueue) submit(ctx context.Context, snap *model.Snapshot) *Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return resolved(ErrClosed)
	}
	if q.next == nil {
		q.next = newPending()
	}
	q.nextCtx = ctx
	q.snap = snap
	p := q.next
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.run()
	}
	return p
}

func (q *saveQueue) run() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		p, ctx, snap := q.next, q.nextCtx, q.snap
		q.next, q.nextCtx, q.snap = nil, nil, nil
		if p == nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		p.resolve(q.write(ctx, snap))
	}
}

// close rejects new saves and waits for queued ones to be written.
func (q *saveQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
