package model

import "github.com/shopspring/decimal"

// Money is written as plain JSON numbers, matching hand-written ledger
// documents. Quoted amounts are still accepted on read.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Record is implemented by every typed record variant stored in a collection.
type Record interface {
	// Key returns the value of the collection's key field.
	Key() string
	// Collection returns the collection the record belongs to.
	Collection() Collection
}

// SaleItem is a single line of a sale.
type SaleItem struct {
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// Sale is a completed or invoiced sale.
type Sale struct {
	ID            string           `json:"id"`
	Date          string           `json:"date,omitempty"` // YYYY-MM-DD
	Customer      string           `json:"customer,omitempty"`
	Items         []SaleItem       `json:"items,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Total         decimal.Decimal  `json:"total"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	Status        string           `json:"status,omitempty"` // "paid", "unpaid", "partial"
	DueDate       string           `json:"dueDate,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

func (s *Sale) Key() string            { return s.ID }
func (s *Sale) Collection() Collection { return CollectionSales }

// Product is an inventory item.
type Product struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SKU          string           `json:"sku,omitempty"`
	Category     string           `json:"category,omitempty"`
	Qty          int              `json:"qty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
	Price        decimal.Decimal  `json:"price"`
	ReorderLevel *int             `json:"reorderLevel,omitempty"`
	SupplierID   string           `json:"supplierId,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

func (p *Product) Key() string            { return p.ID }
func (p *Product) Collection() Collection { return CollectionInventory }

// Supplier is a vendor the business buys stock from.
type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (s *Supplier) Key() string            { return s.ID }
func (s *Supplier) Collection() Collection { return CollectionSuppliers }

// Customer is keyed by its exact, case-sensitive name.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Since   string `json:"since,omitempty"`
}

func (c *Customer) Key() string            { return c.Name }
func (c *Customer) Collection() Collection { return CollectionCustomers }

// Expense is money spent by the business.
type Expense struct {
	ID            string          `json:"id"`
	Date          string          `json:"date,omitempty"`
	Category      string          `json:"category,omitempty"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Vendor        string          `json:"vendor,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

func (e *Expense) Key() string            { return e.ID }
func (e *Expense) Collection() Collection { return CollectionExpenses }

// Return records goods returned against a sale.
type Return struct {
	ID        string          `json:"id"`
	Date      string          `json:"date,omitempty"`
	SaleID    string          `json:"saleId,omitempty"`
	ProductID string          `json:"productId,omitempty"`
	Qty       int             `json:"qty"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

func (r *Return) Key() string            { return r.ID }
func (r *Return) Collection() Collection { return CollectionReturns }

// NewRecord returns an empty record of the variant stored in c.
func NewRecord(c Collection) (Record, error) {
	switch c {
	case CollectionSales:
		return &Sale{}, nil
	case CollectionInventory:
		return &Product{}, nil
	case CollectionSuppliers:
		return &Supplier{}, nil
	case CollectionCustomers:
		return &Customer{}, nil
	case CollectionExpenses:
		return &Expense{}, nil
	case CollectionReturns:
		return &Return{}, nil
	}
	return nil, ErrUnknownCollection
}

// cloneRecord returns a copy of r that shares no mutable state with it.
// Decimals are immutable values and are copied as is.
func cloneRecord(r Record) Record {
	switch v := r.(type) {
	case *Sale:
		c := *v
		c.Items = append([]SaleItem(nil), v.Items...)
		c.Subtotal = clonePtr(v.Subtotal)
		c.Tax = clonePtr(v.Tax)
		return &c
	case *Product:
		c := *v
		c.Cost = clonePtr(v.Cost)
		c.ReorderLevel = clonePtr(v.ReorderLevel)
		return &c
	case *Supplier:
		c := *v
		return &c
	case *Customer:
		c := *v
		return &c
	case *Expense:
		c := *v
		return &c
	case *Return:
		c := *v
		return &c
	}
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// setKey assigns id to records with a generated key field.
func setKey(r Record, id string) {
	switch v := r.(type) {
	case *Sale:
		v.ID = id
	case *Product:
		v.ID = id
	case *Supplier:
		v.ID = id
	case *Expense:
		v.ID = id
	case *Return:
		v.ID = id
	}
}
