package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/model"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	Short:   "List, add and remove ledger records",
	GroupID: "data",
}

var recordListCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List the records of a collection",
	Long:  "List the records of a collection. Collections: " + collectionList() + ".",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := model.ParseCollection(args[0])
		if err != nil {
			return err
		}
		recs := ctrl.Ledger().List(c)
		if jsonOutput {
			return printJSON(recs)
		}
		printRecordTable(c, recs)
		return nil
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <collection> <key>",
	Short: "Show one record as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := model.ParseCollection(args[0])
		if err != nil {
			return err
		}
		rec, ok := ctrl.Ledger().Get(c, args[1])
		if !ok {
			return fmt.Errorf("no %s record %q", c, args[1])
		}
		return printJSON(rec)
	},
}

var recordAddCmd = &cobra.Command{
	Use:   "add <collection> <json>",
	Short: "Add or replace a record",
	Long: `Add or replace a record given as a JSON object ("-" reads stdin).

A record whose key matches an existing one replaces it. Records of
id-keyed collections get a generated id when none is given; customers
are keyed by name, which is required.`,
	Example: `  ledger record add sales '{"date":"2024-03-01","total":"19.99","status":"paid"}'
  ledger record add customers '{"name":"Ada Lovelace","email":"ada@example.com"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := model.ParseCollection(args[0])
		if err != nil {
			return err
		}
		raw := []byte(args[1])
		if args[1] == "-" {
			if raw, err = io.ReadAll(os.Stdin); err != nil {
				return fmt.Errorf("read record: %w", err)
			}
		}

		rec, err := model.NewRecord(c)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(rec); err != nil {
			return fmt.Errorf("parse %s record: %w", c, err)
		}

		key, err := ctrl.Ledger().Put(rec)
		if err != nil {
			return err
		}
		if err := ctrl.Save(cmd.Context()).Wait(cmd.Context()); err != nil {
			return fmt.Errorf("save: %w", err)
		}

		if jsonOutput {
			return printJSON(rec)
		}
		fmt.Printf("Saved %s %s\n", c, key)
		return nil
	},
}

var recordRmCmd = &cobra.Command{
	Use:     "rm <collection> <key>...",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove records by key",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := model.ParseCollection(args[0])
		if err != nil {
			return err
		}
		var missing []string
		for _, key := range args[1:] {
			if !ctrl.Ledger().Remove(c, key) {
				missing = append(missing, key)
				continue
			}
			fmt.Printf("Removed %s %s\n", c, key)
		}
		if err := ctrl.Save(cmd.Context()).Wait(cmd.Context()); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if len(missing) > 0 {
			return fmt.Errorf("no %s record with key %s", c, strings.Join(missing, ", "))
		}
		return nil
	},
}

func init() {
	recordCmd.AddCommand(recordListCmd)
	recordCmd.AddCommand(recordShowCmd)
	recordCmd.AddCommand(recordAddCmd)
	recordCmd.AddCommand(recordRmCmd)
}
