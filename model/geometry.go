package model

import (
	"encoding/json"
	"fmt"
)

// Shape identifies which geometry variant a layer kind carries.
type Shape int

const (
	ShapePoints Shape = iota // one position per item
	ShapeRings               // closed rings (first == last)
	ShapePaths               // open vertex sequences
)

func (s Shape) String() string {
	switch s {
	case ShapePoints:
		return "points"
	case ShapeRings:
		return "rings"
	case ShapePaths:
		return "paths"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Geometry is the sealed union of layer geometries. The only
// implementations are PointGeometry, RingGeometry and PathGeometry;
// consumers type-switch over those three and panic on anything else.
type Geometry interface {
	Shape() Shape
	// Len is the number of geometry items (positions, rings or paths).
	Len() int
	// Coordinates flattens every coordinate of every item in order.
	Coordinates() []Coordinate
	// Clone returns a deep copy.
	Clone() Geometry
	// Translate returns a new geometry with every coordinate shifted.
	Translate(dLng, dLat float64) Geometry

	sealed()
}

// Ring is a closed coordinate sequence whose first and last entries are
// identical.
type Ring []Coordinate

// Closed reports whether the ring's first and last coordinates are
// bit-identical.
func (r Ring) Closed() bool {
	return len(r) > 0 && r[0] == r[len(r)-1]
}

// Close returns r with its first coordinate appended when it is not
// already closed.
func (r Ring) Close() Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	out := make(Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

// Path is an open sequence of vertices in click order.
type Path []Coordinate

// PointGeometry holds one position per item.
type PointGeometry []Coordinate

// RingGeometry holds polygon, sector and area rings.
type RingGeometry []Ring

// PathGeometry holds line, distance and azimuth paths.
type PathGeometry []Path

func (PointGeometry) sealed() {}
func (RingGeometry) sealed()  {}
func (PathGeometry) sealed()  {}

func (PointGeometry) Shape() Shape { return ShapePoints }
func (RingGeometry) Shape() Shape  { return ShapeRings }
func (PathGeometry) Shape() Shape  { return ShapePaths }

func (g PointGeometry) Len() int { return len(g) }
func (g RingGeometry) Len() int  { return len(g) }
func (g PathGeometry) Len() int  { return len(g) }

func (g PointGeometry) Coordinates() []Coordinate {
	return append([]Coordinate(nil), g...)
}

func (g RingGeometry) Coordinates() []Coordinate {
	var out []Coordinate
	for _, r := range g {
		out = append(out, r...)
	}
	return out
}

func (g PathGeometry) Coordinates() []Coordinate {
	var out []Coordinate
	for _, p := range g {
		out = append(out, p...)
	}
	return out
}

func (g PointGeometry) Clone() Geometry {
	return PointGeometry(append([]Coordinate(nil), g...))
}

func (g RingGeometry) Clone() Geometry {
	out := make(RingGeometry, len(g))
	for i, r := range g {
		out[i] = append(Ring(nil), r...)
	}
	return out
}

func (g PathGeometry) Clone() Geometry {
	out := make(PathGeometry, len(g))
	for i, p := range g {
		out[i] = append(Path(nil), p...)
	}
	return out
}

func (g PointGeometry) Translate(dLng, dLat float64) Geometry {
	out := make(PointGeometry, len(g))
	for i, c := range g {
		out[i] = c.Add(dLng, dLat)
	}
	return out
}

// Translate shifts every ring vertex. Closing vertices are shifted by the
// same delta so closed rings stay bit-identical at the seam.
func (g RingGeometry) Translate(dLng, dLat float64) Geometry {
	out := make(RingGeometry, len(g))
	for i, r := range g {
		out[i] = make(Ring, len(r))
		for j, c := range r {
			out[i][j] = c.Add(dLng, dLat)
		}
	}
	return out
}

func (g PathGeometry) Translate(dLng, dLat float64) Geometry {
	out := make(PathGeometry, len(g))
	for i, p := range g {
		out[i] = make(Path, len(p))
		for j, c := range p {
			out[i][j] = c.Add(dLng, dLat)
		}
	}
	return out
}

// DecodeGeometry unmarshals raw JSON into the variant selected by shape.
func DecodeGeometry(shape Shape, raw json.RawMessage) (Geometry, error) {
	switch shape {
	case ShapePoints:
		var g PointGeometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode point geometry: %w", err)
		}
		return g, nil
	case ShapeRings:
		var g RingGeometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode ring geometry: %w", err)
		}
		return g, nil
	case ShapePaths:
		var g PathGeometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode path geometry: %w", err)
		}
		return g, nil
	}
	panic(fmt.Sprintf("model: unhandled shape %v", shape))
}
