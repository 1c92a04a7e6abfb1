package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Data is the full contents of the Ledger. Its JSON encoding is the export
// document format and the degraded-store document format.
type Data struct {
	Settings  Settings    `json:"settings"`
	Sales     []*Sale     `json:"sales"`
	Inventory []*Product  `json:"inventory"`
	Suppliers []*Supplier `json:"suppliers"`
	Customers []*Customer `json:"customers"`
	Expenses  []*Expense  `json:"expenses"`
	Returns   []*Return   `json:"returns"`
}

// normalize replaces nil collections with empty ones so they encode as [].
func (d *Data) normalize() {
	if d.Sales == nil {
		d.Sales = []*Sale{}
	}
	if d.Inventory == nil {
		d.Inventory = []*Product{}
	}
	if d.Suppliers == nil {
		d.Suppliers = []*Supplier{}
	}
	if d.Customers == nil {
		d.Customers = []*Customer{}
	}
	if d.Expenses == nil {
		d.Expenses = []*Expense{}
	}
	if d.Returns == nil {
		d.Returns = []*Return{}
	}
}

// Records returns the records of collection c as a slice of Record.
func (d *Data) Records(c Collection) []Record {
	switch c {
	case CollectionSales:
		return asRecords(d.Sales)
	case CollectionInventory:
		return asRecords(d.Inventory)
	case CollectionSuppliers:
		return asRecords(d.Suppliers)
	case CollectionCustomers:
		return asRecords(d.Customers)
	case CollectionExpenses:
		return asRecords(d.Expenses)
	case CollectionReturns:
		return asRecords(d.Returns)
	}
	return nil
}

func asRecords[T Record](recs []T) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if isNilRecord(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Document is a parsed export document. Collections absent from the source
// are nil; settings fields absent from the source are nil in the patch.
type Document struct {
	Settings  *SettingsPatch `json:"settings,omitempty"`
	Sales     *[]*Sale       `json:"sales,omitempty"`
	Inventory *[]*Product    `json:"inventory,omitempty"`
	Suppliers *[]*Supplier   `json:"suppliers,omitempty"`
	Customers *[]*Customer   `json:"customers,omitempty"`
	Expenses  *[]*Expense    `json:"expenses,omitempty"`
	Returns   *[]*Return     `json:"returns,omitempty"`
}

// ParseDocument decodes an export document. Any syntax error, type
// mismatch or non-object top level yields an error wrapping
// ErrMalformedDocument.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedDocument)
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &doc, nil
}

// Validate checks every record in the document for key presence and
// uniqueness.
func (doc *Document) Validate() error {
	var ve ValidationError
	if doc.Sales != nil {
		validateCollection(&ve, CollectionSales, *doc.Sales)
	}
	if doc.Inventory != nil {
		validateCollection(&ve, CollectionInventory, *doc.Inventory)
	}
	if doc.Suppliers != nil {
		validateCollection(&ve, CollectionSuppliers, *doc.Suppliers)
	}
	if doc.Customers != nil {
		validateCollection(&ve, CollectionCustomers, *doc.Customers)
	}
	if doc.Expenses != nil {
		validateCollection(&ve, CollectionExpenses, *doc.Expenses)
	}
	if doc.Returns != nil {
		validateCollection(&ve, CollectionReturns, *doc.Returns)
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// Entry is one persisted row: a key and its JSON-encoded value.
type Entry struct {
	Key   string
	Value []byte
}

// DocumentFromEntries rebuilds a Document from rows read back from a
// table-per-collection backend. Every collection in rows is treated as
// present, even when empty.
func DocumentFromEntries(settings []Entry, rows map[Collection][]Entry) (*Document, error) {
	var doc Document
	if len(settings) > 0 {
		p, err := PatchFromEntries(settings)
		if err != nil {
			return nil, err
		}
		doc.Settings = p
	}

	var err error
	for c, entries := range rows {
		switch c {
		case CollectionSales:
			doc.Sales, err = decodeEntries[Sale](c, entries)
		case CollectionInventory:
			doc.Inventory, err = decodeEntries[Product](c, entries)
		case CollectionSuppliers:
			doc.Suppliers, err = decodeEntries[Supplier](c, entries)
		case CollectionCustomers:
			doc.Customers, err = decodeEntries[Customer](c, entries)
		case CollectionExpenses:
			doc.Expenses, err = decodeEntries[Expense](c, entries)
		case CollectionReturns:
			doc.Returns, err = decodeEntries[Return](c, entries)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownCollection, c)
		}
		if err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func decodeEntries[T any](c Collection, entries []Entry) (*[]*T, error) {
	out := make([]*T, 0, len(entries))
	for _, e := range entries {
		v := new(T)
		if err := json.Unmarshal(e.Value, v); err != nil {
			return nil, fmt.Errorf("%s row %q: %w: %v", c, e.Key, ErrMalformedDocument, err)
		}
		out = append(out, v)
	}
	return &out, nil
}
