package events

import (
	"time"

	aggregation "noisemap/internal/aggregation/domain"
)

// SnapshotPublished is emitted after every snapshot publication.
type SnapshotPublished struct {
	SnapshotID  string
	SensorCount int
	// Recomputed is true when the field and epicenter were refreshed.
	Recomputed   bool
	UsedFallback bool
	OccurredAt   time.Time
	Snapshot     *aggregation.Snapshot
}
