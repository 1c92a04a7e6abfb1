package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Stream ledger status and save events from NATS",
	GroupID:     "system",
	Annotations: map[string]string{noLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return errors.New("LEDGER_NATS_URL is not set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats: disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		return printEvents(ctx, ch)
	},
}

func printEvents(ctx context.Context, ch <-chan events.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Printf("{\"subject\":%q,\"event\":%s}\n", msg.Subject, msg.Data)
				continue
			}
			fmt.Println(formatEvent(msg, time.Now()))
		}
	}
}

// formatEvent renders one event as a single line. Events that do not decode
// are printed with their raw payload.
func formatEvent(msg events.Message, now time.Time) string {
	stamp := ui.RenderMuted(now.Format("15:04:05"))
	raw := fmt.Sprintf("%s %s %s", stamp, msg.Subject, msg.Data)

	switch msg.Subject {
	case events.TopicSaved:
		var ev events.Saved
		if json.Unmarshal(msg.Data, &ev) != nil {
			return raw
		}
		line := fmt.Sprintf("%s %s %d records to %s", stamp, ui.RenderOK("saved"), ev.Records, ev.Backend)
		if ev.Fallback {
			line += ui.RenderWarn(" (fallback)")
		}
		if ev.Skipped > 0 {
			line += ui.RenderMuted(fmt.Sprintf(", %d skipped", ev.Skipped))
		}
		return line
	case events.TopicSaveFailed:
		var ev events.SaveFailed
		if json.Unmarshal(msg.Data, &ev) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s %s: %s", stamp, ui.RenderError("save failed"), ev.Backend, ev.Error)
	case events.TopicImported:
		var ev events.Imported
		if json.Unmarshal(msg.Data, &ev) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s %d records", stamp, ui.RenderOK("imported"), ev.Records)
	}

	var st events.Status
	if !strings.HasPrefix(msg.Subject, "ledger.status.") || json.Unmarshal(msg.Data, &st) != nil {
		return raw
	}
	if msg.Subject == events.TopicStatusDegraded {
		return fmt.Sprintf("%s %s %s", stamp, ui.RenderWarn(st.Phase), st.Message)
	}
	line := fmt.Sprintf("%s %s %s", stamp, ui.RenderAccent(st.Phase), st.Message)
	if st.Backend != "" {
		line += " " + ui.RenderMuted(st.Backend)
	}
	return line
}
