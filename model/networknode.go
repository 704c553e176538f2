package model

// NodeRecord is one entry of the live network feed.
type NodeRecord struct {
	ID           string     `json:"id"`
	Position     Coordinate `json:"position"`
	SignalMetric float64    `json:"signalMetric"`
	Connections  []string   `json:"connections"`
}

// FeedSnapshot is one ordered feed payload. Index i of the overlay built
// from a snapshot refers to record i.
type FeedSnapshot []NodeRecord
