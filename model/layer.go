package model

import (
	"encoding/json"
	"fmt"
)

// LayerKind is fixed when a layer is created and never changes.
type LayerKind string

const (
	KindPoint    LayerKind = "point"
	KindPolygon  LayerKind = "polygon"
	KindLine     LayerKind = "line"
	KindSector   LayerKind = "sector"
	KindDistance LayerKind = "distance"
	KindArea     LayerKind = "area"
	KindAzimuth  LayerKind = "azimuth"
)

// AllKinds lists every layer kind in display order.
var AllKinds = []LayerKind{
	KindPoint, KindPolygon, KindLine, KindSector, KindDistance, KindArea, KindAzimuth,
}

// Shape maps a kind onto its geometry variant. Adding a kind without
// extending this switch panics on first use.
func (k LayerKind) Shape() Shape {
	switch k {
	case KindPoint:
		return ShapePoints
	case KindPolygon, KindSector, KindArea:
		return ShapeRings
	case KindLine, KindDistance, KindAzimuth:
		return ShapePaths
	}
	panic(fmt.Sprintf("model: unknown layer kind %q", string(k)))
}

// Valid reports whether k is one of the known kinds.
func (k LayerKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Measured reports whether layers of this kind carry a measurement string.
func (k LayerKind) Measured() bool {
	switch k {
	case KindSector, KindDistance, KindArea, KindAzimuth:
		return true
	}
	return false
}

// Origin records where a layer came from.
type Origin string

const (
	OriginDrawn    Origin = "drawn"
	OriginUploaded Origin = "uploaded"
)

// PointMode selects how point layers are displayed.
type PointMode string

const (
	PointModeCircle PointMode = "circle"
	PointModeIcon   PointMode = "icon"
)

// RGB is an 8-bit colour triple.
type RGB [3]uint8

// Style is the per-layer display configuration.
type Style struct {
	Color     RGB       `json:"color"`
	Icon      string    `json:"icon,omitempty"`
	PointMode PointMode `json:"pointMode,omitempty"`
	IconKind  string    `json:"iconKind,omitempty"`
	Radius    float64   `json:"radius,omitempty"` // pixels, points only
}

// Layer is a persistent annotation unit held by the layer store.
type Layer struct {
	ID          string
	Kind        LayerKind
	Geometry    Geometry
	Style       Style
	Label       string
	Measurement string
	Visible     bool
	Origin      Origin
	Group       string

	// Properties optionally carries one property map per geometry item
	// for uploaded features.
	Properties []map[string]any
}

// Clone deep-copies the layer, including geometry and properties.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	out := *l
	if l.Geometry != nil {
		out.Geometry = l.Geometry.Clone()
	}
	if l.Properties != nil {
		out.Properties = make([]map[string]any, len(l.Properties))
		for i, p := range l.Properties {
			if p == nil {
				continue
			}
			cp := make(map[string]any, len(p))
			for k, v := range p {
				cp[k] = v
			}
			out.Properties[i] = cp
		}
	}
	return &out
}

// Draggable reports whether the layer may be drag-translated.
func (l *Layer) Draggable() bool {
	return l != nil && l.Origin == OriginDrawn
}

type layerJSON struct {
	ID          string           `json:"id"`
	Kind        LayerKind        `json:"kind"`
	Geometry    json.RawMessage  `json:"geometry"`
	Style       Style            `json:"style"`
	Label       string           `json:"label"`
	Measurement string           `json:"measurement,omitempty"`
	Visible     bool             `json:"visible"`
	Origin      Origin           `json:"origin"`
	Group       string           `json:"group,omitempty"`
	Properties  []map[string]any `json:"properties,omitempty"`
}

func (l Layer) MarshalJSON() ([]byte, error) {
	geom, err := json.Marshal(l.Geometry)
	if err != nil {
		return nil, fmt.Errorf("layer %s geometry: %w", l.ID, err)
	}
	return json.Marshal(layerJSON{
		ID:          l.ID,
		Kind:        l.Kind,
		Geometry:    geom,
		Style:       l.Style,
		Label:       l.Label,
		Measurement: l.Measurement,
		Visible:     l.Visible,
		Origin:      l.Origin,
		Group:       l.Group,
		Properties:  l.Properties,
	})
}

func (l *Layer) UnmarshalJSON(data []byte) error {
	var raw layerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.Valid() {
		return fmt.Errorf("layer %s: unknown kind %q", raw.ID, raw.Kind)
	}
	geom, err := DecodeGeometry(raw.Kind.Shape(), raw.Geometry)
	if err != nil {
		return fmt.Errorf("layer %s: %w", raw.ID, err)
	}
	*l = Layer{
		ID:          raw.ID,
		Kind:        raw.Kind,
		Geometry:    geom,
		Style:       raw.Style,
		Label:       raw.Label,
		Measurement: raw.Measurement,
		Visible:     raw.Visible,
		Origin:      raw.Origin,
		Group:       raw.Group,
		Properties:  raw.Properties,
	}
	return nil
}
