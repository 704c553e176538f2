package core

import "github.com/signalsfoundry/mapdraw/model"

// SignalQuality is a coarse classification of a node's signal metric.
type SignalQuality string

const (
	SignalPoor      SignalQuality = "poor"
	SignalFair      SignalQuality = "fair"
	SignalGood      SignalQuality = "good"
	SignalExcellent SignalQuality = "excellent"
)

// ClassifySignal maps a signal metric onto fixed thresholds. It is
// evaluated at render time and never stored.
func ClassifySignal(metric float64) SignalQuality {
	switch {
	case metric > 20:
		return SignalExcellent
	case metric > 15:
		return SignalGood
	case metric > 10:
		return SignalFair
	default:
		return SignalPoor
	}
}

// OverlayItem is one rendered node. Item i of an overlay corresponds to
// record i of the snapshot it was built from.
type OverlayItem struct {
	Position     model.Coordinate
	SignalMetric float64
}

// Quality recomputes the item's classification.
func (it OverlayItem) Quality() SignalQuality {
	return ClassifySignal(it.SignalMetric)
}

// OverlayLink is a connectivity segment between two records of the same
// snapshot, identified by index.
type OverlayLink struct {
	From, To       int
	FromPos, ToPos model.Coordinate
	FromID, ToID   string
}

// NetworkOverlay is the ephemeral, feed-derived node layer. It is rebuilt
// wholesale on every feed update and never enters the layer store.
type NetworkOverlay struct {
	Items []OverlayItem
	Links []OverlayLink

	source model.FeedSnapshot
}

// BuildOverlay derives an overlay from snapshot. It returns nil for an
// empty snapshot so the overlay is simply absent from the render set.
// Connections naming ids that are not in the snapshot are skipped.
func BuildOverlay(snapshot model.FeedSnapshot) *NetworkOverlay {
	if len(snapshot) == 0 {
		return nil
	}

	src := make(model.FeedSnapshot, len(snapshot))
	copy(src, snapshot)

	index := make(map[string]int, len(src))
	for i, rec := range src {
		if _, seen := index[rec.ID]; !seen {
			index[rec.ID] = i
		}
	}

	ov := &NetworkOverlay{
		Items:  make([]OverlayItem, len(src)),
		source: src,
	}
	for i, rec := range src {
		ov.Items[i] = OverlayItem{Position: rec.Position, SignalMetric: rec.SignalMetric}
		for _, peer := range rec.Connections {
			j, ok := index[peer]
			if !ok {
				continue
			}
			ov.Links = append(ov.Links, OverlayLink{
				From:    i,
				To:      j,
				FromPos: rec.Position,
				ToPos:   src[j].Position,
				FromID:  rec.ID,
				ToID:    src[j].ID,
			})
		}
	}
	return ov
}

// Len is the number of items; zero for a nil overlay.
func (o *NetworkOverlay) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Items)
}

// Record returns the source record at index i.
func (o *NetworkOverlay) Record(i int) (model.NodeRecord, bool) {
	if o == nil || i < 0 || i >= len(o.source) {
		return model.NodeRecord{}, false
	}
	return o.source[i], true
}

// HitTest recovers the source record for a coordinate reported by the
// rendering surface by finding the overlay item at that exact position and
// returning the record at the same index.
//
// Two records sharing a position cannot be told apart; the first wins.
func (o *NetworkOverlay) HitTest(at model.Coordinate) (model.NodeRecord, bool) {
	if o == nil {
		return model.NodeRecord{}, false
	}
	for i, it := range o.Items {
		if it.Position == at {
			return o.Record(i)
		}
	}
	return model.NodeRecord{}, false
}
