// Package importer converts uploaded GeoJSON into import batches, one
// batch per geometry family.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/model"
)

// ErrUnsupportedGeoJSON is returned for input that is not a feature
// collection, feature or geometry object.
var ErrUnsupportedGeoJSON = errors.New("unsupported GeoJSON document")

// Options name and group the resulting layers.
type Options struct {
	Name  string
	Group string
}

// FromGeoJSON parses a FeatureCollection, a single Feature or a bare
// geometry. Points and MultiPoints feed the point batch, Polygons and
// MultiPolygons the polygon batch (outer rings only), LineStrings and
// MultiLineStrings the line batch. GeometryCollections are flattened.
// Batches without features are omitted; the order is point, polygon, line.
func FromGeoJSON(data []byte, opts Options) ([]core.ImportBatch, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedGeoJSON, err)
	}

	var features []*geojson.Feature
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedGeoJSON, err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedGeoJSON, err)
		}
		features = []*geojson.Feature{f}
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedGeoJSON, err)
		}
		features = []*geojson.Feature{geojson.NewFeature(g.Geometry())}
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnsupportedGeoJSON, head.Type)
	}

	byKind := map[model.LayerKind]*core.ImportBatch{}
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		props := map[string]any(f.Properties)
		if len(props) == 0 {
			props = nil
		}
		collect(f.Geometry, func(kind model.LayerKind, part []model.Coordinate) {
			b := byKind[kind]
			if b == nil {
				b = &core.ImportBatch{Kind: kind, Group: opts.Group}
				byKind[kind] = b
			}
			b.Features = append(b.Features, core.ImportFeature{
				Parts:      [][]model.Coordinate{part},
				Properties: props,
			})
		})
	}

	var out []core.ImportBatch
	for _, kind := range []model.LayerKind{model.KindPoint, model.KindPolygon, model.KindLine} {
		b := byKind[kind]
		if b == nil {
			continue
		}
		out = append(out, *b)
	}
	for i := range out {
		out[i].Name = batchName(opts.Name, out[i].Kind, len(out))
	}
	return out, nil
}

func batchName(name string, kind model.LayerKind, batches int) string {
	switch {
	case name == "":
		return ""
	case batches > 1:
		return fmt.Sprintf("%s (%s)", name, kind)
	}
	return name
}

func collect(g orb.Geometry, emit func(model.LayerKind, []model.Coordinate)) {
	switch geom := g.(type) {
	case orb.Point:
		emit(model.KindPoint, []model.Coordinate{toCoord(geom)})
	case orb.MultiPoint:
		for _, p := range geom {
			emit(model.KindPoint, []model.Coordinate{toCoord(p)})
		}
	case orb.LineString:
		emit(model.KindLine, toCoords(geom))
	case orb.MultiLineString:
		for _, ls := range geom {
			emit(model.KindLine, toCoords(ls))
		}
	case orb.Polygon:
		if len(geom) > 0 {
			emit(model.KindPolygon, toCoords(geom[0]))
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			if len(poly) > 0 {
				emit(model.KindPolygon, toCoords(poly[0]))
			}
		}
	case orb.Collection:
		for _, inner := range geom {
			collect(inner, emit)
		}
	case orb.Ring:
		emit(model.KindPolygon, toCoords(geom))
	case orb.Bound:
		emit(model.KindPolygon, toCoords(geom.ToRing()))
	}
}

func toCoord(p orb.Point) model.Coordinate {
	return model.Coordinate{Lng: p[0], Lat: p[1]}
}

func toCoords[T ~[]orb.Point](pts T) []model.Coordinate {
	out := make([]model.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = toCoord(p)
	}
	return out
}
