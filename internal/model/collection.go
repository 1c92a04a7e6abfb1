package model

import "fmt"

// Collection names one of the keyed record sequences held by the Ledger.
// The value doubles as the backend table name and the export document key.
type Collection string

const (
	CollectionSales     Collection = "sales"
	CollectionInventory Collection = "inventory"
	CollectionSuppliers Collection = "suppliers"
	CollectionCustomers Collection = "customers"
	CollectionExpenses  Collection = "expenses"
	CollectionReturns   Collection = "returns"
)

// Collections lists every collection in export document order.
var Collections = []Collection{
	CollectionSales,
	CollectionInventory,
	CollectionSuppliers,
	CollectionCustomers,
	CollectionExpenses,
	CollectionReturns,
}

// String returns the string representation of the collection.
func (c Collection) String() string {
	return string(c)
}

// IsValid checks whether the collection is a known value.
func (c Collection) IsValid() bool {
	switch c {
	case CollectionSales, CollectionInventory, CollectionSuppliers,
		CollectionCustomers, CollectionExpenses, CollectionReturns:
		return true
	}
	return false
}

// KeyField returns the record field that identifies rows in the collection.
// Customers use their name as a natural key; everything else uses "id".
func (c Collection) KeyField() string {
	if c == CollectionCustomers {
		return "name"
	}
	return "id"
}

// IDPrefix returns the prefix used when generating identifiers for the
// collection. Customers have no generated key and return "".
func (c Collection) IDPrefix() string {
	switch c {
	case CollectionSales:
		return "SL-"
	case CollectionInventory:
		return "PRD-"
	case CollectionSuppliers:
		return "SUP-"
	case CollectionExpenses:
		return "EXP-"
	case CollectionReturns:
		return "RET-"
	}
	return ""
}

// ParseCollection converts s into a Collection, rejecting unknown names.
func ParseCollection(s string) (Collection, error) {
	c := Collection(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return c, nil
}
