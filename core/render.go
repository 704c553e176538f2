package core

import (
	"fmt"

	"github.com/signalsfoundry/mapdraw/model"
)

// PrimitiveKind is the shape of a renderable primitive.
type PrimitiveKind string

const (
	PrimitivePoints PrimitiveKind = "points"
	PrimitiveRing   PrimitiveKind = "ring"
	PrimitivePath   PrimitiveKind = "path"
)

// PrimitiveRole tells the surface what a primitive represents.
type PrimitiveRole string

const (
	RoleLayer         PrimitiveRole = "layer"
	RolePreview       PrimitiveRole = "preview"
	RoleCloseHint     PrimitiveRole = "close-hint"
	RoleSectorPreview PrimitiveRole = "sector-preview"
	RoleRubberBand    PrimitiveRole = "rubber-band"
	RoleOverlayNode   PrimitiveRole = "overlay-node"
	RoleOverlayLink   PrimitiveRole = "overlay-link"
)

// Primitive is one flat renderable record. Projection and painting are
// the surface's job.
type Primitive struct {
	Kind        PrimitiveKind      `json:"kind"`
	Role        PrimitiveRole      `json:"role"`
	Coordinates []model.Coordinate `json:"coordinates"`
	Color       model.RGB          `json:"color"`

	LayerID string       `json:"layerId,omitempty"`
	Style   *model.Style `json:"style,omitempty"`
	Label   string       `json:"label,omitempty"`

	// OverlayIndex is the feed index of an overlay node primitive; nil for
	// every other role.
	OverlayIndex *int          `json:"overlayIndex,omitempty"`
	Quality      SignalQuality `json:"quality,omitempty"`
}

// Frame is the render set for one update.
type Frame struct {
	Primitives []Primitive `json:"primitives"`
}

// FrameInput is everything a frame is derived from.
type FrameInput struct {
	Layers  []*model.Layer
	Session DrawingSession
	Band    *model.RubberBand
	Overlay *NetworkOverlay
}

// BuildFrame flattens visible layers (in store order), the drawing
// preview, any rubber band and the network overlay into primitives.
func BuildFrame(in FrameInput) Frame {
	var f Frame
	for _, l := range in.Layers {
		if l == nil || !l.Visible {
			continue
		}
		f.Primitives = append(f.Primitives, layerPrimitives(l)...)
	}
	f.Primitives = append(f.Primitives, sessionPrimitives(in.Session)...)
	if in.Band != nil {
		f.Primitives = append(f.Primitives, Primitive{
			Kind:        PrimitiveRing,
			Role:        RoleRubberBand,
			Coordinates: in.Band.Ring(),
			Color:       bandColor,
		})
	}
	f.Primitives = append(f.Primitives, overlayPrimitives(in.Overlay)...)
	return f
}

func layerPrimitives(l *model.Layer) []Primitive {
	style := l.Style
	base := Primitive{
		Role:    RoleLayer,
		Color:   style.Color,
		LayerID: l.ID,
		Style:   &style,
		Label:   l.Label,
	}

	var out []Primitive
	switch g := l.Geometry.(type) {
	case model.PointGeometry:
		p := base
		p.Kind = PrimitivePoints
		p.Coordinates = append([]model.Coordinate(nil), g...)
		out = append(out, p)
	case model.RingGeometry:
		for _, r := range g {
			p := base
			p.Kind = PrimitiveRing
			p.Coordinates = append([]model.Coordinate(nil), r...)
			out = append(out, p)
		}
	case model.PathGeometry:
		for _, path := range g {
			p := base
			p.Kind = PrimitivePath
			p.Coordinates = append([]model.Coordinate(nil), path...)
			out = append(out, p)
		}
	case nil:
	default:
		panic(fmt.Sprintf("core: unhandled geometry %T", l.Geometry))
	}
	return out
}

func sessionPrimitives(s DrawingSession) []Primitive {
	var out []Primitive
	switch s.Mode {
	case ModePolygon, ModeArea, ModeLine, ModeDistance, ModeAzimuth:
		if pts := s.Preview(); len(pts) > 0 {
			out = append(out, Primitive{
				Kind:        PrimitivePath,
				Role:        RolePreview,
				Coordinates: pts,
				Color:       previewColor,
			})
		}
		if s.NearClosePoint && len(s.Vertices) > 0 {
			out = append(out, Primitive{
				Kind:        PrimitivePoints,
				Role:        RoleCloseHint,
				Coordinates: []model.Coordinate{s.Vertices[0]},
				Color:       highlightColor,
			})
		}
	case ModeSector:
		d := s.Sector
		if d.Center == nil {
			break
		}
		out = append(out, Primitive{
			Kind:        PrimitivePoints,
			Role:        RolePreview,
			Coordinates: []model.Coordinate{*d.Center},
			Color:       previewColor,
		})
		if d.Radius == nil && s.Cursor != nil {
			out = append(out, Primitive{
				Kind:        PrimitivePath,
				Role:        RolePreview,
				Coordinates: []model.Coordinate{*d.Center, *s.Cursor},
				Color:       previewColor,
			})
		}
		if ring, ok := s.SectorPreview(); ok {
			out = append(out, Primitive{
				Kind:        PrimitiveRing,
				Role:        RoleSectorPreview,
				Coordinates: ring,
				Color:       previewColor,
			})
		}
	}
	return out
}

func overlayPrimitives(o *NetworkOverlay) []Primitive {
	if o == nil {
		return nil
	}
	out := make([]Primitive, 0, len(o.Links)+len(o.Items))
	for _, l := range o.Links {
		out = append(out, Primitive{
			Kind:        PrimitivePath,
			Role:        RoleOverlayLink,
			Coordinates: []model.Coordinate{l.FromPos, l.ToPos},
			Color:       linkColor,
		})
	}
	for i, it := range o.Items {
		q := it.Quality()
		idx := i
		out = append(out, Primitive{
			Kind:         PrimitivePoints,
			Role:         RoleOverlayNode,
			Coordinates:  []model.Coordinate{it.Position},
			Color:        QualityColor(q),
			OverlayIndex: &idx,
			Quality:      q,
		})
	}
	return out
}
