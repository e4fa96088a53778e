package store

import (
	"encoding/json"
	"time"
)

// SnapshotThreshold is how many events pass between snapshots of one
// aggregate. Posts with long negotiations are the main beneficiary.
const SnapshotThreshold = 10

// Snapshot is the JSON state of an aggregate as of Version. Loading resumes
// from the events after it.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}
