package model

import "math"

const (
	MinZoom = 1.0
	MaxZoom = 20.0
)

// Viewport is the camera state of the rendering surface.
type Viewport struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	Bearing   float64 `json:"bearing"`
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN clamps to MinZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// RubberBand is the drag-selected rectangle used for zooming. It only
// exists while the gesture is in progress.
type RubberBand struct {
	Start Coordinate `json:"start"`
	End   Coordinate `json:"end"`
}

// Ring returns the selection rectangle as a closed ring.
func (b RubberBand) Ring() Ring {
	return Ring{
		b.Start,
		{Lng: b.End.Lng, Lat: b.Start.Lat},
		b.End,
		{Lng: b.Start.Lng, Lat: b.End.Lat},
		b.Start,
	}
}
