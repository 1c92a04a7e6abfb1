package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
)

// assertConverged checks that every table of primary holds exactly the
// Ledger's records with their serialized payloads.
func assertConverged(t *testing.T, l *model.Ledger, primary *mockPrimary) {
	t.Helper()
	for _, col := range model.Collections {
		want := l.Keys(col)
		sort.Strings(want)
		got := primary.keys(col.String())
		if len(want) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s keys = %v, want %v", col, got, want)
			continue
		}
		for _, key := range want {
			rec, _ := l.Get(col, key)
			payload, err := json.Marshal(rec)
			if err != nil {
				t.Fatalf("marshal %s %q: %v", col, key, err)
			}
			row, _ := primary.row(col.String(), key)
			if string(row) != string(payload) {
				t.Errorf("%s %q payload = %s, want %s", col, key, row, payload)
			}
		}
	}
}

func TestSave_Converges(t *testing.T) {
	c, primary, _ := newTestController(t)
	l := c.Ledger()

	a := mustPut(t, l, &model.Product{Name: "Apples", Qty: 10, Price: decimal.RequireFromString("0.50")})
	b := mustPut(t, l, &model.Product{Name: "Bread", Qty: 4, Price: decimal.RequireFromString("2.25")})
	mustPut(t, l, &model.Product{Name: "Cheese", Qty: 2, Price: decimal.RequireFromString("6")})
	mustPut(t, l, &model.Customer{Name: "Grace"})
	mustSave(t, c)
	assertConverged(t, l, primary)

	// Edit one, remove one, add one.
	mustPut(t, l, &model.Product{ID: a, Name: "Apples", Qty: 7, Price: decimal.RequireFromString("0.55")})
	if !l.Remove(model.CollectionInventory, b) {
		t.Fatalf("Remove(%q) found nothing", b)
	}
	mustPut(t, l, &model.Product{Name: "Dates", Qty: 1, Price: decimal.RequireFromString("3")})
	l.Remove(model.CollectionCustomers, "Grace")
	mustSave(t, c)
	assertConverged(t, l, primary)

	if _, ok := primary.row("inventory", b); ok {
		t.Errorf("removed product %q still stored", b)
	}
	if keys := primary.keys("customers"); len(keys) != 0 {
		t.Errorf("customers = %v, want none", keys)
	}
}

func TestSave_Idempotent(t *testing.T) {
	c, primary, _ := newTestController(t)
	mustPut(t, c.Ledger(), &model.Sale{ID: "SL-0001", Total: decimal.NewFromInt(3)})
	mustPut(t, c.Ledger(), &model.Expense{Amount: decimal.NewFromInt(8)})

	mustSave(t, c)
	primary.mu.Lock()
	first := primary.tables
	primary.mu.Unlock()

	mustSave(t, c)
	primary.mu.Lock()
	second := primary.tables
	primary.mu.Unlock()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second save changed backend state:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestSave_RemovingOnlyInventoryRecordEmptiesTable(t *testing.T) {
	c, primary, _ := newTestController(t)
	key := mustPut(t, c.Ledger(), &model.Product{Name: "Lamp", Qty: 1, Price: decimal.NewFromInt(20)})
	mustSave(t, c)
	if got := primary.keys("inventory"); len(got) != 1 {
		t.Fatalf("inventory = %v, want one row", got)
	}

	c.Ledger().Remove(model.CollectionInventory, key)
	mustSave(t, c)
	if got := primary.keys("inventory"); len(got) != 0 {
		t.Errorf("inventory = %v, want empty", got)
	}
}

func TestSave_SettingsRows(t *testing.T) {
	c, primary, _ := newTestController(t)
	s := c.Ledger().Settings()
	s.TaxRate = decimal.RequireFromString("8.25")
	c.Ledger().SetSettings(s)
	mustSave(t, c)

	keys := primary.keys(store.SettingsTable)
	want := []string{"bizName", "bizType", "currency", "invoiceFooter", "lowStock", "owner", "paymentTerms", "taxRate"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("settings keys = %v, want %v", keys, want)
	}
	if v, _ := primary.row(store.SettingsTable, "taxRate"); string(v) != `8.25` {
		t.Errorf("taxRate = %s, want 8.25", v)
	}
}

func TestSave_SkipsRecordsWithoutKey(t *testing.T) {
	c, primary, _ := newTestController(t)
	c.Ledger().Update(func(d *model.Data) {
		d.Sales = append(d.Sales, &model.Sale{ID: "SL-0001"}, &model.Sale{Notes: "no id"})
		d.Customers = append(d.Customers, &model.Customer{Name: " "})
	})
	mustSave(t, c)

	if keys := primary.keys("sales"); !reflect.DeepEqual(keys, []string{"SL-0001"}) {
		t.Errorf("sales keys = %v, want [SL-0001]", keys)
	}
	// A blank but non-empty name is still a key.
	if keys := primary.keys("customers"); !reflect.DeepEqual(keys, []string{" "}) {
		t.Errorf("customers keys = %v, want [\" \"]", keys)
	}
}

func TestSave_FallsBackWhenWriteFails(t *testing.T) {
	c, primary, docs := newTestController(t)
	pub := &recordingPublisher{}
	c.pub = pub
	mustPut(t, c.Ledger(), &model.Sale{ID: "SL-0001", Total: decimal.NewFromInt(1)})
	mustSave(t, c)

	primary.setWriteErr(errors.New("disk full"))
	mustPut(t, c.Ledger(), &model.Sale{ID: "SL-0002", Total: decimal.NewFromInt(2)})
	mustSave(t, c)

	want, err := json.Marshal(c.Ledger())
	if err != nil {
		t.Fatalf("marshal ledger: %v", err)
	}
	if string(docs.document()) != string(want) {
		t.Errorf("fallback document = %s, want %s", docs.document(), want)
	}
	// The stale primary is left alone.
	if keys := primary.keys("sales"); !reflect.DeepEqual(keys, []string{"SL-0001"}) {
		t.Errorf("primary sales = %v, want [SL-0001]", keys)
	}
	if c.Degraded() {
		t.Error("a failed write must not switch to degraded mode")
	}

	// The next successful save heals the primary.
	primary.setWriteErr(nil)
	mustSave(t, c)
	assertConverged(t, c.Ledger(), primary)

	var sawFailed bool
	for _, topic := range pub.published() {
		if topic == events.TopicSaveFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Error("no save_failed event published")
	}
}

func TestSave_FallbackFailureIsReported(t *testing.T) {
	c, primary, docs := newTestController(t)
	primary.setWriteErr(errors.New("disk full"))
	docs.mu.Lock()
	docs.writeErr = errors.New("read-only file system")
	docs.mu.Unlock()

	err := c.Save(context.Background()).Wait(context.Background())
	if err == nil {
		t.Fatal("expected error when both backends fail")
	}
	if k := store.KindOf(err); k != store.KindDocument {
		t.Errorf("error kind = %s, want document", k)
	}
}

func TestSave_BeforeInitializeUsesDocumentStore(t *testing.T) {
	primary := newMockPrimary()
	docs := &mockDocs{}
	c := NewController(model.NewLedger(), primary, docs, nil, testLogger())
	defer c.Close()

	if err := c.Save(context.Background()).Wait(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n := primary.writeCount(); n != 0 {
		t.Errorf("primary writes = %d, want 0", n)
	}
	if n := docs.writeCount(); n != 1 {
		t.Errorf("document writes = %d, want 1", n)
	}
}

func TestSave_DegradedWritesDocument(t *testing.T) {
	docs := &mockDocs{}
	c := NewController(model.NewLedger(), nil, docs, nil, testLogger())
	c.Initialize(context.Background())
	defer c.Close()

	mustPut(t, c.Ledger(), &model.Supplier{Name: "Acme"})
	mustSave(t, c)

	doc, err := model.ParseDocument(docs.document())
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Suppliers == nil || len(*doc.Suppliers) != 1 || (*doc.Suppliers)[0].Name != "Acme" {
		t.Errorf("document suppliers = %+v", doc.Suppliers)
	}
}

func TestSave_Coalesces(t *testing.T) {
	c, primary, _ := newTestController(t)
	primary.entered = make(chan struct{}, 4)
	primary.block = make(chan struct{})
	ctx := context.Background()

	first := c.Save(ctx)
	<-primary.entered // first write is running and holds the worker

	mustPut(t, c.Ledger(), &model.Sale{ID: "SL-0001"})
	second := c.Save(ctx)
	mustPut(t, c.Ledger(), &model.Sale{ID: "SL-0002"})
	third := c.Save(ctx)

	if second != third {
		t.Fatal("saves queued behind a running write should share one pending slot")
	}
	select {
	case <-third.Done():
		t.Fatal("queued save resolved before the running write finished")
	default:
	}

	close(primary.block)
	for _, p := range []*Pending{first, second, third} {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	if n := primary.writeCount(); n != 2 {
		t.Errorf("primary writes = %d, want 2", n)
	}
	if keys := primary.keys("sales"); !reflect.DeepEqual(keys, []string{"SL-0001", "SL-0002"}) {
		t.Errorf("sales = %v, want latest snapshot", keys)
	}
}

func TestSave_ConcurrentWithCallerEdits(t *testing.T) {
	c, primary, _ := newTestController(t)
	p := &model.Product{ID: "PRD-1", Name: "Widget"}
	mustPut(t, c.Ledger(), p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			p.Qty = i
			p.Name = fmt.Sprintf("Widget %d", i)
		}
	}()
	for i := 0; i < 10; i++ {
		c.Save(context.Background())
	}
	<-done
	mustSave(t, c)

	row, _ := primary.row("inventory", "PRD-1")
	if !strings.Contains(string(row), `"name":"Widget"`) {
		t.Errorf("stored row = %s, want the record as Put", row)
	}
}

func TestSave_AfterClose(t *testing.T) {
	c := NewController(model.NewLedger(), nil, &mockDocs{}, nil, testLogger())
	c.Initialize(context.Background())
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := c.Save(context.Background()).Wait(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Save after Close = %v, want ErrClosed", err)
	}
}

func TestPending_WaitHonorsContext(t *testing.T) {
	p := newPending()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestBuildWriteSet(t *testing.T) {
	l := model.NewLedger()
	mustPut(t, l, &model.Sale{ID: "SL-0001"})
	mustPut(t, l, &model.Sale{ID: "SL-0002"})
	mustPut(t, l, &model.Customer{Name: "Ada"})
	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	ws := BuildWriteSet(snap)

	var settings int
	for _, st := range ws {
		if st.Table == store.SettingsTable {
			if st.Kind != store.StmtUpsert {
				t.Errorf("settings statement kind = %v, want upsert", st.Kind)
			}
			settings++
		}
	}
	if settings != len(snap.Settings) {
		t.Errorf("settings upserts = %d, want %d", settings, len(snap.Settings))
	}

	// Each collection: delete-except first, then its upserts.
	byTable := map[string][]store.Statement{}
	for _, st := range ws[settings:] {
		byTable[st.Table] = append(byTable[st.Table], st)
	}
	for _, tc := range []struct {
		table string
		keep  []string
	}{
		{"sales", []string{"SL-0001", "SL-0002"}},
		{"customers", []string{"Ada"}},
		{"inventory", []string{}},
		{"returns", []string{}},
	} {
		stmts := byTable[tc.table]
		if len(stmts) != 1+len(tc.keep) {
			t.Errorf("%s: %d statements, want %d", tc.table, len(stmts), 1+len(tc.keep))
			continue
		}
		if stmts[0].Kind != store.StmtDeleteExcept || !reflect.DeepEqual(stmts[0].Keep, tc.keep) {
			t.Errorf("%s: first statement = %+v, want delete-except %v", tc.table, stmts[0], tc.keep)
		}
		for i, key := range tc.keep {
			if st := stmts[i+1]; st.Kind != store.StmtUpsert || st.Key != key || st.Seq != i {
				t.Errorf("%s: statement %d = %+v, want upsert %q at seq %d", tc.table, i+1, st, key, i)
			}
		}
	}
}

func TestRecoveryFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want recovery
	}{
		{store.ErrUnavailable, recoverDegrade},
		{store.Errorf(store.KindConnection, "open", errors.New("x")), recoverDegrade},
		{store.Errorf(store.KindSchema, "migrate", errors.New("x")), recoverDegrade},
		{store.Errorf(store.KindQuery, "query sales", errors.New("x")), recoverDegrade},
		{store.Errorf(store.KindWrite, "bulk write", errors.New("x")), recoverFallback},
		{store.Errorf(store.KindDocument, "write document", errors.New("x")), recoverSurface},
		{errors.New("plain"), recoverSurface},
	} {
		if got := recoveryFor(tc.err); got != tc.want {
			t.Errorf("recoveryFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
