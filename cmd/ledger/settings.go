package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/model"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Short:   "Show or change business settings",
	GroupID: "data",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := ctrl.Ledger().Settings()
		if jsonOutput {
			return printJSON(s)
		}
		printSettingsTable(s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:     "set <key=value>...",
	Short:   "Change one or more settings",
	Example: `  ledger settings set bizName="Corner Shop" currency=EUR taxRate=7.5 paymentTerms=14`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := parseSettingArgs(args)
		if err != nil {
			return err
		}
		patch, err := model.PatchFromEntries(entries)
		if err != nil {
			return err
		}
		ctrl.Ledger().SetSettings(patch.Apply(ctrl.Ledger().Settings()))
		if err := ctrl.Save(cmd.Context()).Wait(cmd.Context()); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if jsonOutput {
			return printJSON(ctrl.Ledger().Settings())
		}
		printSettingsTable(ctrl.Ledger().Settings())
		return nil
	},
}

// parseSettingArgs turns key=value arguments into settings entries. Values
// of string-encoded settings are quoted; numeric ones are passed through.
func parseSettingArgs(args []string) ([]model.Entry, error) {
	known, err := settingKeys()
	if err != nil {
		return nil, err
	}
	entries := make([]model.Entry, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid setting %q (want key=value)", arg)
		}
		quoted, ok := known[key]
		if !ok {
			return nil, fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(sortedKeys(known), ", "))
		}
		raw := []byte(value)
		if quoted {
			if raw, err = json.Marshal(value); err != nil {
				return nil, err
			}
		} else if !json.Valid(raw) {
			return nil, fmt.Errorf("setting %s: %q is not a number", key, value)
		}
		entries = append(entries, model.Entry{Key: key, Value: raw})
	}
	return entries, nil
}

// settingKeys maps each settings key to whether its JSON form is a string.
func settingKeys() (map[string]bool, error) {
	entries, err := model.SettingsEntries(model.DefaultSettings())
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		keys[e.Key] = len(e.Value) > 0 && e.Value[0] == '"'
	}
	return keys, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
