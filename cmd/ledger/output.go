package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printSettingsTable(s model.Settings) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Business:\t%s\n", s.BizName)
	fmt.Fprintf(w, "Owner:\t%s\n", s.Owner)
	fmt.Fprintf(w, "Type:\t%s\n", s.BizType)
	fmt.Fprintf(w, "Currency:\t%s\n", s.Currency)
	fmt.Fprintf(w, "Payment terms:\t%d days\n", s.PaymentTerms)
	fmt.Fprintf(w, "Tax rate:\t%s%%\n", s.TaxRate.String())
	fmt.Fprintf(w, "Low stock at:\t%d\n", s.LowStock)
	fmt.Fprintf(w, "Invoice footer:\t%s\n", s.InvoiceFooter)
	w.Flush()
}

// printRecordTable prints one line per record with the columns that matter
// for its collection.
func printRecordTable(c model.Collection, recs []model.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch c {
	case model.CollectionSales:
		fmt.Fprintln(w, "ID\tDATE\tCUSTOMER\tTOTAL\tSTATUS")
		for _, r := range recs {
			s := r.(*model.Sale)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Date, s.Customer, s.Total.StringFixed(2), s.Status)
		}
	case model.CollectionInventory:
		fmt.Fprintln(w, "ID\tNAME\tSKU\tQTY\tPRICE")
		for _, r := range recs {
			p := r.(*model.Product)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, truncate(p.Name, 40), p.SKU, p.Qty, p.Price.StringFixed(2))
		}
	case model.CollectionSuppliers:
		fmt.Fprintln(w, "ID\tNAME\tCONTACT\tPHONE\tEMAIL")
		for _, r := range recs {
			s := r.(*model.Supplier)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, truncate(s.Name, 40), s.Contact, s.Phone, s.Email)
		}
	case model.CollectionCustomers:
		fmt.Fprintln(w, "NAME\tPHONE\tEMAIL\tSINCE")
		for _, r := range recs {
			cu := r.(*model.Customer)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cu.Name, cu.Phone, cu.Email, cu.Since)
		}
	case model.CollectionExpenses:
		fmt.Fprintln(w, "ID\tDATE\tCATEGORY\tAMOUNT\tVENDOR")
		for _, r := range recs {
			e := r.(*model.Expense)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, e.Amount.StringFixed(2), e.Vendor)
		}
	case model.CollectionReturns:
		fmt.Fprintln(w, "ID\tDATE\tSALE\tQTY\tAMOUNT\tREASON")
		for _, r := range recs {
			rt := r.(*model.Return)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", rt.ID, rt.Date, rt.SaleID, rt.Qty, rt.Amount.StringFixed(2), truncate(rt.Reason, 40))
		}
	}
	w.Flush()
	fmt.Println(ui.RenderMuted(fmt.Sprintf("\n%d %s", len(recs), c)))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
