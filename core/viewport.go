package core

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/mapdraw/model"
)

// zoomStep is one row of the focus-on-layer lookup: spans up to MaxSpan
// degrees get the listed zoom for drawn and uploaded layers.
type zoomStep struct {
	MaxSpan  float64
	Drawn    float64
	Uploaded float64
}

// focusZoomTable is ordered by increasing span. Uploaded layers get one
// level coarser than drawn ones for the same span.
var focusZoomTable = []zoomStep{
	{MaxSpan: 0.001, Drawn: 18, Uploaded: 17},
	{MaxSpan: 0.005, Drawn: 16, Uploaded: 15},
	{MaxSpan: 0.01, Drawn: 15, Uploaded: 14},
	{MaxSpan: 0.05, Drawn: 13, Uploaded: 12},
	{MaxSpan: 0.1, Drawn: 12, Uploaded: 11},
	{MaxSpan: 0.5, Drawn: 10, Uploaded: 9},
	{MaxSpan: 1, Drawn: 9, Uploaded: 8},
	{MaxSpan: 5, Drawn: 7, Uploaded: 6},
	{MaxSpan: 10, Drawn: 6, Uploaded: 5},
	{MaxSpan: 50, Drawn: 4, Uploaded: 3},
}

const (
	widestZoomDrawn    = 2.0
	widestZoomUploaded = 1.0

	singlePointZoomDrawn    = 16.0
	singlePointZoomUploaded = 15.0
)

// LayerBound returns the bounding box of every coordinate in the layer.
// ok is false when the layer has no geometry items.
func LayerBound(layer *model.Layer) (orb.Bound, bool) {
	if layer == nil || layer.Geometry == nil || layer.Geometry.Len() == 0 {
		return orb.Bound{}, false
	}

	var coords []model.Coordinate
	switch g := layer.Geometry.(type) {
	case model.PointGeometry:
		coords = g
	case model.RingGeometry:
		coords = g.Coordinates()
	case model.PathGeometry:
		coords = g.Coordinates()
	default:
		panic(fmt.Sprintf("core: unhandled geometry %T", layer.Geometry))
	}
	if len(coords) == 0 {
		return orb.Bound{}, false
	}

	first := orb.Point{coords[0].Lng, coords[0].Lat}
	b := orb.Bound{Min: first, Max: first}
	for _, c := range coords[1:] {
		b = b.Extend(orb.Point{c.Lng, c.Lat})
	}
	return b, true
}

// FocusLayer centres and zooms the viewport on layer. For a layer with no
// geometry it returns current unchanged and false.
func FocusLayer(current model.Viewport, layer *model.Layer) (model.Viewport, bool) {
	b, ok := LayerBound(layer)
	if !ok {
		return current, false
	}

	center := b.Center()
	span := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	uploaded := layer.Origin == model.OriginUploaded

	var zoom float64
	singlePoint := layer.Kind == model.KindPoint && layer.Geometry.Len() == 1
	if singlePoint {
		zoom = singlePointZoomDrawn
		if uploaded {
			zoom = singlePointZoomUploaded
		}
	} else {
		zoom = zoomForSpan(span, uploaded)
	}

	// Leave room around the fitted box in pixels.
	if layer.Kind == model.KindPoint && layer.Geometry.Len() > 1 {
		zoom -= 2
	} else {
		zoom--
	}

	return model.Viewport{
		Longitude: center[0],
		Latitude:  center[1],
		Zoom:      model.ClampZoom(zoom),
	}, true
}

func zoomForSpan(span float64, uploaded bool) float64 {
	for _, step := range focusZoomTable {
		if span <= step.MaxSpan {
			if uploaded {
				return step.Uploaded
			}
			return step.Drawn
		}
	}
	if uploaded {
		return widestZoomUploaded
	}
	return widestZoomDrawn
}

// RubberBandZoom fits the viewport to a drag-selected rectangle using
// zoom = 14 - log2(maxDiff*100). This deliberately differs from the
// FocusLayer table and the two are not expected to agree. Pitch and
// bearing are carried over from current.
func RubberBandZoom(current model.Viewport, band model.RubberBand) model.Viewport {
	maxDiff := math.Max(
		math.Abs(band.End.Lng-band.Start.Lng),
		math.Abs(band.End.Lat-band.Start.Lat),
	)
	return model.Viewport{
		Longitude: (band.Start.Lng + band.End.Lng) / 2,
		Latitude:  (band.Start.Lat + band.End.Lat) / 2,
		Zoom:      model.ClampZoom(14 - math.Log2(maxDiff*100)),
		Pitch:     current.Pitch,
		Bearing:   current.Bearing,
	}
}
