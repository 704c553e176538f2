package importer

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/model"
)

const mixedCollection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "mast"}, "geometry": {"type": "Point", "coordinates": [1, 2]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "MultiPoint", "coordinates": [[3, 4], [5, 6]]}},
    {"type": "Feature", "properties": {"zone": "A"}, "geometry": {"type": "Polygon", "coordinates": [
      [[0, 0], [1, 0], [1, 1], [0, 0]],
      [[0.2, 0.2], [0.3, 0.2], [0.3, 0.3], [0.2, 0.2]]
    ]}},
    {"type": "Feature", "properties": null, "geometry": {"type": "MultiLineString", "coordinates": [
      [[0, 0], [2, 2]],
      [[5, 5], [6, 6], [7, 5]]
    ]}}
  ]
}`

func TestFromGeoJSONFeatureCollection(t *testing.T) {
	batches, err := FromGeoJSON([]byte(mixedCollection), Options{Name: "site", Group: "g1"})
	if err != nil {
		t.Fatalf("FromGeoJSON: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}

	points, polys, lines := batches[0], batches[1], batches[2]
	if points.Kind != model.KindPoint || polys.Kind != model.KindPolygon || lines.Kind != model.KindLine {
		t.Fatalf("batch kinds = %s %s %s", points.Kind, polys.Kind, lines.Kind)
	}
	if points.Name != "site (point)" || points.Group != "g1" {
		t.Fatalf("points batch name/group = %q/%q", points.Name, points.Group)
	}
	if len(points.Features) != 3 {
		t.Fatalf("point parts = %d, want 3", len(points.Features))
	}
	if points.Features[0].Properties["name"] != "mast" || points.Features[1].Properties != nil {
		t.Fatalf("point properties = %v / %v", points.Features[0].Properties, points.Features[1].Properties)
	}
	if len(polys.Features) != 1 || len(polys.Features[0].Parts[0]) != 4 {
		t.Fatalf("polygon outer ring not kept alone: %+v", polys.Features)
	}
	if len(lines.Features) != 2 || len(lines.Features[1].Parts[0]) != 3 {
		t.Fatalf("line parts = %+v", lines.Features)
	}

	layers, err := core.LayersFromBatch(polys)
	if err != nil || len(layers) != 1 {
		t.Fatalf("LayersFromBatch = %v, %v", layers, err)
	}
	if layers[0].Origin != model.OriginUploaded || layers[0].Label != "site (polygon)" {
		t.Fatalf("layer = %+v", layers[0])
	}
}

func TestFromGeoJSONSingleFeatureAndGeometry(t *testing.T) {
	batches, err := FromGeoJSON([]byte(`{"type":"Feature","properties":{"id":7},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`), Options{Name: "route"})
	if err != nil {
		t.Fatalf("FromGeoJSON(Feature): %v", err)
	}
	if len(batches) != 1 || batches[0].Kind != model.KindLine || batches[0].Name != "route" {
		t.Fatalf("batches = %+v", batches)
	}

	batches, err = FromGeoJSON([]byte(`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1]]],[[[5,5],[6,5],[6,6],[5,5]]]]}`), Options{})
	if err != nil {
		t.Fatalf("FromGeoJSON(geometry): %v", err)
	}
	if len(batches) != 1 || len(batches[0].Features) != 2 || batches[0].Name != "" {
		t.Fatalf("batches = %+v", batches)
	}
	layers, _ := core.LayersFromBatch(batches[0])
	ring := layers[0].Geometry.(model.RingGeometry)[0]
	if !ring.Closed() {
		t.Fatalf("open source ring not closed on import: %v", ring)
	}
}

func TestFromGeoJSONGeometryCollection(t *testing.T) {
	batches, err := FromGeoJSON([]byte(`{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,1]},{"type":"LineString","coordinates":[[0,0],[1,1]]}]}`), Options{})
	if err != nil {
		t.Fatalf("FromGeoJSON: %v", err)
	}
	if len(batches) != 2 || batches[0].Kind != model.KindPoint || batches[1].Kind != model.KindLine {
		t.Fatalf("batches = %+v", batches)
	}
}

func TestFromGeoJSONRejects(t *testing.T) {
	for _, in := range []string{`not json`, `{"type":"Topology"}`, `[]`, `{"type":"FeatureCollection","features":7}`} {
		if _, err := FromGeoJSON([]byte(in), Options{}); !errors.Is(err, ErrUnsupportedGeoJSON) {
			t.Fatalf("FromGeoJSON(%q) err = %v, want ErrUnsupportedGeoJSON", in, err)
		}
	}
}

func TestFromGeoJSONEmptyCollection(t *testing.T) {
	batches, err := FromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`), Options{})
	if err != nil || len(batches) != 0 {
		t.Fatalf("FromGeoJSON(empty) = %v, %v", batches, err)
	}
}
