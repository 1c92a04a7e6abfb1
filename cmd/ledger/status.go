package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show which backend is in use and record counts",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := ctrl.Ledger()
		counts := make(map[string]int, len(model.Collections))
		total := 0
		for _, c := range model.Collections {
			counts[c.String()] = l.Len(c)
			total += l.Len(c)
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"business": l.Settings().BizName,
				"backend":  ctrl.Backend(),
				"degraded": ctrl.Degraded(),
				"state":    ctrl.State().String(),
				"data_dir": cfg.DataDir,
				"counts":   counts,
				"total":    total,
			})
		}

		backend := ui.RenderOK(ctrl.Backend())
		if ctrl.Degraded() {
			backend = ui.RenderWarn(ctrl.Backend() + " (degraded)")
		}
		fmt.Println(ui.RenderAccent(l.Settings().BizName))
		fmt.Printf("  Backend:   %s\n", backend)
		fmt.Printf("  Data dir:  %s\n", cfg.DataDir)
		for _, c := range model.Collections {
			fmt.Printf("  %-10s %d\n", c.String()+":", counts[c.String()])
		}
		fmt.Printf("  %-10s %d\n", "total:", total)
		return nil
	},
}
