package sync

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
)

// mockPrimary is an in-memory store.Primary whose steps can be made to fail.
type mockPrimary struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
	open   bool
	writes int

	openErr   error
	schemaErr error
	queryErr  error
	writeErr  error
	// entered, when set, receives once per BulkWrite call before block.
	entered chan struct{}
	// block, when set, is received from at the start of each BulkWrite.
	block chan struct{}
}

var _ store.Primary = (*mockPrimary)(nil)

func newMockPrimary() *mockPrimary {
	return &mockPrimary{tables: make(map[string]map[string][]byte)}
}

func (m *mockPrimary) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	return nil
}

func (m *mockPrimary) EnsureSchema(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schemaErr != nil {
		return m.schemaErr
	}
	if _, ok := m.tables[store.SettingsTable]; !ok {
		m.tables[store.SettingsTable] = map[string][]byte{}
	}
	for _, c := range model.Collections {
		if _, ok := m.tables[c.String()]; !ok {
			m.tables[c.String()] = map[string][]byte{}
		}
	}
	return nil
}

func (m *mockPrimary) Query(_ context.Context, table string) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	t, ok := m.tables[table]
	if !ok {
		return nil, store.Errorf(store.KindQuery, "query "+table, errors.New("no such table"))
	}
	rows := make([]store.Row, 0, len(t))
	for k, v := range t {
		rows = append(rows, store.Row{Key: k, Payload: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

// BulkWrite applies ws to a copy of the tables and swaps it in only if every
// statement succeeded.
func (m *mockPrimary) BulkWrite(_ context.Context, ws store.WriteSet) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}

	next := make(map[string]map[string][]byte, len(m.tables))
	for name, t := range m.tables {
		cp := make(map[string][]byte, len(t))
		for k, v := range t {
			cp[k] = v
		}
		next[name] = cp
	}
	for _, st := range ws {
		t, ok := next[st.Table]
		if !ok {
			return store.Errorf(store.KindWrite, "bulk write", errors.New("no such table "+st.Table))
		}
		switch st.Kind {
		case store.StmtUpsert:
			t[st.Key] = append([]byte(nil), st.Payload...)
		case store.StmtDeleteExcept:
			keep := make(map[string]bool, len(st.Keep))
			for _, k := range st.Keep {
				keep[k] = true
			}
			for k := range t {
				if !keep[k] {
					delete(t, k)
				}
			}
		}
	}
	m.tables = next
	return nil
}

func (m *mockPrimary) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *mockPrimary) keys(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.tables[table]))
	for k := range m.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockPrimary) row(table, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tables[table][key]
	return v, ok
}

func (m *mockPrimary) setWriteErr(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *mockPrimary) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// mockDocs is an in-memory store.DocumentStore.
type mockDocs struct {
	mu       sync.Mutex
	doc      []byte
	writes   int
	writeErr error
}

var _ store.DocumentStore = (*mockDocs)(nil)

func (m *mockDocs) ReadDocument(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, store.ErrNoDocument
	}
	return append([]byte(nil), m.doc...), nil
}

func (m *mockDocs) WriteDocument(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.doc = append([]byte(nil), data...)
	return nil
}

func (m *mockDocs) document() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc
}

func (m *mockDocs) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// recordingPublisher keeps the topics it was asked to publish.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}
