package http

import (
	"context"
	"encoding/json"
	"time"

	"noisemap/internal/aggregation/application/eventbus"
	"noisemap/internal/aggregation/application/events"
	aggregation "noisemap/internal/aggregation/domain"
)

// Message types pushed to live clients.
const (
	MessageFullUpdate = "full_update"
	MessageUpdate     = "update"
)

// Envelope wraps a snapshot pushed to live clients.
type Envelope struct {
	Type      string                `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Data      *aggregation.Snapshot `json:"data,omitempty"`
}

// SnapshotSource returns the current snapshot.
type SnapshotSource func() *aggregation.Snapshot

// Notifier receives published snapshots.
type Notifier interface {
	Notify(ctx context.Context, event events.SnapshotPublished)
}

// Attach subscribes notifiers to snapshot publications on bus.
func Attach(bus eventbus.Bus, notifiers ...Notifier) {
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		notifier := n
		eventbus.Subscribe(bus, func(ctx context.Context, event events.SnapshotPublished) error {
			notifier.Notify(ctx, event)
			return nil
		})
	}
}

func encode(kind string, at time.Time, snap *aggregation.Snapshot) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Timestamp: at.UTC(), Data: snap})
}

func currentPayload(source SnapshotSource) ([]byte, error) {
	var snap *aggregation.Snapshot
	if source != nil {
		snap = source()
	}
	return encode(MessageFullUpdate, time.Now(), snap)
}
