// Package persist saves and restores workspace snapshots.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/mapdraw/model"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

// Snapshot is the serialisable workspace state. A nil piece is absent:
// loading it leaves the matching workspace state untouched. A non-nil
// piece (even an empty one) replaces it wholesale.
type Snapshot struct {
	Version   int       `json:"version"`
	SessionID uuid.UUID `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`

	Viewport    *model.Viewport   `json:"viewport,omitempty"`
	Layers      []*model.Layer    `json:"layers"`
	GroupLabels map[string]string `json:"groupLabels,omitempty"`
	Collapsed   map[string]bool   `json:"collapsed,omitempty"`
	MapStyle    *string           `json:"mapStyle,omitempty"`
}

// Encode marshals s as indented JSON.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot and rejects versions newer than this build
// understands.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}

// Store is a snapshot backend.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	// Load returns ErrNoSnapshot when nothing has been saved.
	Load(ctx context.Context) (*Snapshot, error)
}

// MetricsRecorder receives persistence measurements.
type MetricsRecorder interface {
	ObserveSave(trigger string, d time.Duration, err error)
	ObserveLoad(err error)
	SetPending(pending bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveSave(string, time.Duration, error) {}
func (noopRecorder) ObserveLoad(error)                        {}
func (noopRecorder) SetPending(bool)                          {}
