package model

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/bizledger/internal/idgen"
)

// Ledger is the in-memory working copy of all business data. It is the
// single source of truth for a running process; backends only mirror it.
//
// Collaborators share one *Ledger. Reads and writes of the underlying Data
// go through View and Update so the background save worker can take
// consistent snapshots.
type Ledger struct {
	mu   sync.RWMutex
	data Data
}

// NewLedger returns a Ledger holding the built-in settings and empty
// collections.
func NewLedger() *Ledger {
	l := &Ledger{data: Data{Settings: DefaultSettings()}}
	l.data.normalize()
	return l
}

// View calls fn with read access to the Ledger contents. fn must not
// modify d or keep any record past its return; use List or Get for
// records that outlive the call.
func (l *Ledger) View(fn func(d *Data)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(&l.data)
}

// Update calls fn with write access to the Ledger contents.
func (l *Ledger) Update(fn func(d *Data)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.data)
	l.data.normalize()
}

// Settings returns a copy of the current settings.
func (l *Ledger) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.Settings
}

// SetSettings replaces the settings record.
func (l *Ledger) SetSettings(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Settings = s
}

// Put validates rec and inserts a copy of it, replacing any record with the
// same key. Records of id-keyed collections with an empty id get a
// generated one, which is also set on rec. Later changes to rec do not
// reach the Ledger. It returns the record's key.
func (l *Ledger) Put(rec Record) (string, error) {
	if rec == nil || isNilRecord(rec) {
		return "", fmt.Errorf("put: %w", ErrMissingKey)
	}
	c := rec.Collection()
	if !HasKey(rec) && c.IDPrefix() != "" {
		id, err := idgen.GenerateWithPrefix(c.IDPrefix())
		if err != nil {
			return "", err
		}
		setKey(rec, id)
	}
	if err := ValidateRecord(rec); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	switch v := cloneRecord(rec).(type) {
	case *Sale:
		l.data.Sales = upsert(l.data.Sales, v)
	case *Product:
		l.data.Inventory = upsert(l.data.Inventory, v)
	case *Supplier:
		l.data.Suppliers = upsert(l.data.Suppliers, v)
	case *Customer:
		l.data.Customers = upsert(l.data.Customers, v)
	case *Expense:
		l.data.Expenses = upsert(l.data.Expenses, v)
	case *Return:
		l.data.Returns = upsert(l.data.Returns, v)
	default:
		return "", fmt.Errorf("put %T: %w", rec, ErrUnknownCollection)
	}
	return rec.Key(), nil
}

// Get returns a copy of the record with the given key from collection c.
func (l *Ledger) Get(c Collection, key string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.data.Records(c) {
		if r.Key() == key {
			return cloneRecord(r), true
		}
	}
	return nil, false
}

// List returns copies of the records of collection c in ledger order.
func (l *Ledger) List(c Collection) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.data.Records(c)
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = cloneRecord(r)
	}
	return out
}

// Remove deletes the record with the given key from collection c and
// reports whether one was found.
func (l *Ledger) Remove(c Collection, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found bool
	switch c {
	case CollectionSales:
		l.data.Sales, found = removeKey(l.data.Sales, key)
	case CollectionInventory:
		l.data.Inventory, found = removeKey(l.data.Inventory, key)
	case CollectionSuppliers:
		l.data.Suppliers, found = removeKey(l.data.Suppliers, key)
	case CollectionCustomers:
		l.data.Customers, found = removeKey(l.data.Customers, key)
	case CollectionExpenses:
		l.data.Expenses, found = removeKey(l.data.Expenses, key)
	case CollectionReturns:
		l.data.Returns, found = removeKey(l.data.Returns, key)
	}
	return found
}

// Keys returns the keys of collection c in ledger order.
func (l *Ledger) Keys(c Collection) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.data.Records(c)
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key())
	}
	return keys
}

// Len returns the number of records in collection c.
func (l *Ledger) Len(c Collection) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.data.Records(c))
}

// Apply merges a parsed document into the Ledger. Every collection present
// in doc replaces the current one wholesale; collections absent from doc are
// kept. Settings become the built-in defaults layered with doc's settings.
// The Ledger takes ownership of doc's records.
func (l *Ledger) Apply(doc *Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Settings = doc.Settings.Apply(DefaultSettings())
	if doc.Sales != nil {
		l.data.Sales = *doc.Sales
	}
	if doc.Inventory != nil {
		l.data.Inventory = *doc.Inventory
	}
	if doc.Suppliers != nil {
		l.data.Suppliers = *doc.Suppliers
	}
	if doc.Customers != nil {
		l.data.Customers = *doc.Customers
	}
	if doc.Expenses != nil {
		l.data.Expenses = *doc.Expenses
	}
	if doc.Returns != nil {
		l.data.Returns = *doc.Returns
	}
	l.data.normalize()
}

// MarshalJSON encodes the full Ledger in export document form.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(&l.data)
}

// Snapshot is an immutable, serialized copy of the Ledger taken at one
// instant.
type Snapshot struct {
	Settings []Entry
	// Collections holds one entry per keyed record, for every collection.
	Collections map[Collection][]Entry
	// Document is the whole Ledger in export document form.
	Document []byte
	// Skipped counts records left out because they had no key.
	Skipped int
}

// Snapshot serializes the current contents. Records without a key are
// excluded from Collections and counted in Skipped.
func (l *Ledger) Snapshot() (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	settings, err := SettingsEntries(l.data.Settings)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Settings:    settings,
		Collections: make(map[Collection][]Entry, len(Collections)),
	}
	for _, c := range Collections {
		recs := l.data.Records(c)
		entries := make([]Entry, 0, len(recs))
		for _, r := range recs {
			if !HasKey(r) {
				snap.Skipped++
				continue
			}
			payload, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("marshal %s %q: %w", c, r.Key(), err)
			}
			entries = append(entries, Entry{Key: r.Key(), Value: payload})
		}
		snap.Collections[c] = entries
	}

	snap.Document, err = json.Marshal(&l.data)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger: %w", err)
	}
	return snap, nil
}

func upsert[T Record](recs []T, rec T) []T {
	for i, r := range recs {
		if !isNilRecord(r) && r.Key() == rec.Key() {
			recs[i] = rec
			return recs
		}
	}
	return append(recs, rec)
}

func removeKey[T Record](recs []T, key string) ([]T, bool) {
	for i, r := range recs {
		if !isNilRecord(r) && r.Key() == key {
			return append(recs[:i], recs[i+1:]...), true
		}
	}
	return recs, false
}
