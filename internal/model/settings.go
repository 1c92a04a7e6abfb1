package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Settings is the single business configuration record of the Ledger.
type Settings struct {
	BizName       string          `json:"bizName"`
	Owner         string          `json:"owner"`
	BizType       string          `json:"bizType"`
	Currency      string          `json:"currency"`
	PaymentTerms  int             `json:"paymentTerms"` // days
	TaxRate       decimal.Decimal `json:"taxRate"`      // percent
	LowStock      int             `json:"lowStock"`
	InvoiceFooter string          `json:"invoiceFooter"`
}

// DefaultSettings returns the built-in settings applied to any field a
// stored or imported settings record leaves out.
func DefaultSettings() Settings {
	return Settings{
		BizName:       "My Business",
		Owner:         "",
		BizType:       "Retail",
		Currency:      "USD",
		PaymentTerms:  30,
		TaxRate:       decimal.Zero,
		LowStock:      5,
		InvoiceFooter: "Thank you for your business!",
	}
}

// SettingsPatch is a partial Settings record. Nil fields are absent from
// the source document and leave the underlying value untouched.
type SettingsPatch struct {
	BizName       *string          `json:"bizName,omitempty"`
	Owner         *string          `json:"owner,omitempty"`
	BizType       *string          `json:"bizType,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	PaymentTerms  *int             `json:"paymentTerms,omitempty"`
	TaxRate       *decimal.Decimal `json:"taxRate,omitempty"`
	LowStock      *int             `json:"lowStock,omitempty"`
	InvoiceFooter *string          `json:"invoiceFooter,omitempty"`
}

// Apply layers the patch over base and returns the result.
func (p *SettingsPatch) Apply(base Settings) Settings {
	if p == nil {
		return base
	}
	if p.BizName != nil {
		base.BizName = *p.BizName
	}
	if p.Owner != nil {
		base.Owner = *p.Owner
	}
	if p.BizType != nil {
		base.BizType = *p.BizType
	}
	if p.Currency != nil {
		base.Currency = *p.Currency
	}
	if p.PaymentTerms != nil {
		base.PaymentTerms = *p.PaymentTerms
	}
	if p.TaxRate != nil {
		base.TaxRate = *p.TaxRate
	}
	if p.LowStock != nil {
		base.LowStock = *p.LowStock
	}
	if p.InvoiceFooter != nil {
		base.InvoiceFooter = *p.InvoiceFooter
	}
	return base
}

// SettingsEntries flattens s into one entry per field, keyed by the JSON
// field name and sorted by key. Values are JSON-encoded.
func SettingsEntries(s Settings) ([]Entry, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("split settings: %w", err)
	}

	entries := make([]Entry, 0, len(fields))
	for k, v := range fields {
		entries = append(entries, Entry{Key: k, Value: []byte(v)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// PatchFromEntries rebuilds a SettingsPatch from stored key/value entries.
// Unknown keys are ignored.
func PatchFromEntries(entries []Entry) (*SettingsPatch, error) {
	fields := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		if !json.Valid(e.Value) {
			return nil, fmt.Errorf("settings %q: %w", e.Key, ErrMalformedDocument)
		}
		fields[e.Key] = json.RawMessage(e.Value)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("join settings: %w", err)
	}
	var p SettingsPatch
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode settings: %w: %v", ErrMalformedDocument, err)
	}
	return &p, nil
}
