// Package sync keeps the in-memory Ledger mirrored to durable storage. The
// Controller hydrates the Ledger at startup, persists it on Save, and falls
// back to a single-document store when the primary database is missing or
// broken. The Scheduler copies exports to backup destinations.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateHydrated
	StateDegraded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateHydrated:
		return "hydrated"
	case StateDegraded:
		return "degraded"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// BackendDocument names the degraded document store in status output.
const BackendDocument = "document"

// Controller owns backend selection and persistence for one Ledger.
type Controller struct {
	ledger  *model.Ledger
	primary store.Primary
	docs    store.DocumentStore
	pub     events.Publisher
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	degraded bool
	opened   bool

	queue *saveQueue
}

// NewController returns an uninitialized controller for ledger. primary may
// be nil when no primary backend is configured; the controller then runs
// degraded from the start. pub and logger may be nil.
func NewController(ledger *model.Ledger, primary store.Primary, docs store.DocumentStore, pub events.Publisher, logger *slog.Logger) *Controller {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		ledger:  ledger,
		primary: primary,
		docs:    docs,
		pub:     pub,
		logger:  logger,
	}
	c.queue = newSaveQueue(c.persist)
	return c
}

// Ledger returns the Ledger this controller persists.
func (c *Controller) Ledger() *model.Ledger {
	return c.ledger
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports whether the controller has switched to the document
// store for the rest of the run.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Backend returns the name of the backend saves currently go to.
func (c *Controller) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backendLocked()
}

func (c *Controller) backendLocked() string {
	if c.degraded || c.primary == nil {
		return BackendDocument
	}
	if d, ok := c.primary.(interface{ Dialect() string }); ok {
		return d.Dialect()
	}
	return "primary"
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// usePrimary reports whether saves should go to the primary backend. Saves
// issued before the controller is ready go to the document store.
func (c *Controller) usePrimary() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady && !c.degraded && c.primary != nil
}

// Initialize selects a backend and hydrates the Ledger from it. It never
// fails: any problem with the primary backend is logged and the controller
// continues on the document store. Calling it again on a ready controller
// is a no-op.
func (c *Controller) Initialize(ctx context.Context) {
	if c.State() != StateUninitialized {
		return
	}
	c.setState(StateConnecting)
	c.notify(ctx, events.TopicStatusOpening, "opening", "Opening database")

	err := c.initPrimary(ctx)
	switch {
	case err == nil:
		c.setState(StateHydrated)
	case recoveryFor(err) == recoverDegrade:
		c.logger.Warn("primary backend failed, continuing on document store",
			"kind", store.KindOf(err).String(), "err", err)
		c.degrade(ctx)
	default:
		c.logger.Error("unexpected initialization failure, continuing on document store", "err", err)
		c.degrade(ctx)
	}

	c.setState(StateReady)
	c.notify(ctx, events.TopicStatusReady, "ready", "Ready")
}

func (c *Controller) initPrimary(ctx context.Context) error {
	if c.primary == nil {
		return store.ErrUnavailable
	}

	c.notify(ctx, events.TopicStatusConnecting, "connecting", "Connecting to database")
	if err := c.primary.Open(ctx); err != nil {
		return classify(store.KindConnection, "open", err)
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()

	if err := c.primary.EnsureSchema(ctx); err != nil {
		return classify(store.KindSchema, "ensure schema", err)
	}

	c.notify(ctx, events.TopicStatusLoading, "loading", "Loading data")
	doc, err := c.hydrate(ctx)
	if err != nil {
		return classify(store.KindQuery, "hydrate", err)
	}
	c.ledger.Apply(doc)
	return nil
}

// hydrate reads every table into a Document. The Ledger is only touched by
// the caller once all reads have succeeded.
func (c *Controller) hydrate(ctx context.Context) (*model.Document, error) {
	settingsRows, err := c.primary.Query(ctx, store.SettingsTable)
	if err != nil {
		return nil, err
	}

	rows := make(map[model.Collection][]model.Entry, len(model.Collections))
	for _, col := range model.Collections {
		r, err := c.primary.Query(ctx, col.String())
		if err != nil {
			return nil, err
		}
		rows[col] = toEntries(r)
	}

	doc, err := model.DocumentFromEntries(toEntries(settingsRows), rows)
	if err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return doc, nil
}

// degrade switches to the document store for the rest of the run and loads
// whatever document it holds.
func (c *Controller) degrade(ctx context.Context) {
	c.mu.Lock()
	c.degraded = true
	c.state = StateDegraded
	opened := c.opened
	c.opened = false
	c.mu.Unlock()

	if opened {
		if err := c.primary.Close(); err != nil {
			c.logger.Debug("closing primary backend", "err", err)
		}
	}
	c.notify(ctx, events.TopicStatusDegraded, "degraded", "Using local document store")

	data, err := c.docs.ReadDocument(ctx)
	if errors.Is(err, store.ErrNoDocument) {
		c.logger.Info("no saved document, starting with defaults")
		return
	}
	if err != nil {
		c.logger.Warn("reading saved document failed, starting with defaults", "err", err)
		return
	}
	doc, err := model.ParseDocument(data)
	if err != nil {
		c.logger.Warn("saved document is malformed, starting with defaults", "err", err)
		return
	}
	c.ledger.Apply(doc)
}

// Close waits for queued saves to finish and releases the primary backend.
func (c *Controller) Close() error {
	c.queue.close()

	c.mu.Lock()
	opened := c.opened
	c.opened = false
	c.mu.Unlock()
	if opened {
		return c.primary.Close()
	}
	return nil
}

func (c *Controller) notify(ctx context.Context, topic, phase, msg string) {
	backend := c.Backend()
	c.logger.Info(msg, "phase", phase, "backend", backend)
	c.publish(ctx, topic, events.Status{
		Phase:   phase,
		Message: msg,
		Backend: backend,
		Time:    time.Now().UTC(),
	})
}

func (c *Controller) publish(ctx context.Context, topic string, event any) {
	if err := c.pub.Publish(ctx, topic, event); err != nil {
		c.logger.Debug("publish event failed", "topic", topic, "err", err)
	}
}

func toEntries(rows []store.Row) []model.Entry {
	out := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Entry{Key: r.Key, Value: r.Payload})
	}
	return out
}
