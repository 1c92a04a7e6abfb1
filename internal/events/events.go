// Package events publishes ledger status notifications and persistence
// events to an external sink (NATS, or nothing).
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	// Startup progress, in order.
	TopicStatusOpening    = "ledger.status.opening"
	TopicStatusConnecting = "ledger.status.connecting"
	TopicStatusLoading    = "ledger.status.loading"
	TopicStatusReady      = "ledger.status.ready"
	TopicStatusDegraded   = "ledger.status.degraded"

	TopicSaved      = "ledger.saved"
	TopicSaveFailed = "ledger.save_failed"
	TopicImported   = "ledger.imported"

	// TopicAll matches every ledger subject.
	TopicAll = "ledger.>"
)

// Event types

// Status is a human-readable progress notification.
type Status struct {
	Phase   string    `json:"phase"`
	Message string    `json:"message"`
	Backend string    `json:"backend,omitempty"`
	Time    time.Time `json:"time"`
}

type Saved struct {
	Backend  string `json:"backend"`
	Records  int    `json:"records"`
	Skipped  int    `json:"skipped,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

type SaveFailed struct {
	Backend string `json:"backend"`
	Error   string `json:"error"`
}

type Imported struct {
	Records int `json:"records"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
