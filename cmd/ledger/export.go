package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	Short:   "Write the whole ledger as a JSON document",
	Long:    "Write the whole ledger as a JSON document to file, or to stdout when no file is given.",
	GroupID: "transfer",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ctrl.Export()
		if err != nil {
			return err
		}
		if len(args) == 0 || args[0] == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", args[0])
		return nil
	},
}
