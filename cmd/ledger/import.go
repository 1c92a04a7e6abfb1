package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace ledger data with an exported JSON document",
	Long: `Replace ledger data with an exported JSON document.

Every collection present in the document replaces the current one.
Settings are reset to defaults, then overlaid with the document's settings.
Use "-" to read from stdin.`,
	GroupID: "transfer",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			if !yes {
				return errors.New("reading from stdin requires --yes")
			}
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}

		if !yes {
			if !ui.IsInteractive() {
				return errors.New("refusing to import without confirmation; pass --yes")
			}
			ok, err := ui.Confirm(os.Stdin, os.Stderr, "This replaces ledger data. Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stderr, "Import cancelled")
				return nil
			}
		}

		if err := ctrl.Import(cmd.Context(), data); err != nil {
			var ve *model.ValidationError
			if errors.Is(err, model.ErrMalformedDocument) || errors.As(err, &ve) {
				return fmt.Errorf("%s is not a valid ledger export: %w", args[0], err)
			}
			return err
		}
		fmt.Println(ui.RenderOK("Imported " + args[0]))
		return nil
	},
}

func init() {
	importCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
}
