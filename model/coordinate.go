package model

import (
	"encoding/json"
	"fmt"
)

// Coordinate is a longitude/latitude pair in degrees (WGS84-like, no
// projection). It serialises as a GeoJSON position: [lng, lat].
type Coordinate struct {
	Lng float64
	Lat float64
}

// Add returns c shifted by (dLng, dLat).
func (c Coordinate) Add(dLng, dLat float64) Coordinate {
	return Coordinate{Lng: c.Lng + dLng, Lat: c.Lat + dLat}
}

// Sub returns the component-wise difference c - other.
func (c Coordinate) Sub(other Coordinate) (dLng, dLat float64) {
	return c.Lng - other.Lng, c.Lat - other.Lat
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lng, c.Lat)
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lng, c.Lat})
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pos []float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return fmt.Errorf("coordinate: %w", err)
	}
	if len(pos) < 2 {
		return fmt.Errorf("coordinate: expected [lng, lat], got %d values", len(pos))
	}
	c.Lng, c.Lat = pos[0], pos[1]
	return nil
}
