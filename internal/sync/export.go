package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/model"
)

// Export returns the whole Ledger as an indented JSON document that Import
// accepts.
func (c *Controller) Export() ([]byte, error) {
	data, err := json.MarshalIndent(c.ledger, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export ledger: %w", err)
	}
	return append(data, '\n'), nil
}

// Import replaces the Ledger contents with doc and saves the result. Every
// collection present in doc replaces the current one; settings become the
// built-in defaults overlaid with doc's settings. A document that does not
// parse yields an error wrapping model.ErrMalformedDocument and a document
// with missing or duplicate keys yields a *model.ValidationError; in both
// cases the Ledger is left untouched.
func (c *Controller) Import(ctx context.Context, doc []byte) error {
	parsed, err := model.ParseDocument(doc)
	if err != nil {
		return err
	}
	if err := parsed.Validate(); err != nil {
		return err
	}

	c.ledger.Apply(parsed)

	total := 0
	for _, col := range model.Collections {
		total += c.ledger.Len(col)
	}
	c.logger.Info("imported ledger", "records", total)
	c.publish(ctx, events.TopicImported, events.Imported{Records: total})

	if err := c.Save(ctx).Wait(ctx); err != nil {
		return fmt.Errorf("save imported ledger: %w", err)
	}
	return nil
}
