package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/mapdraw/model"
)

// ErrUnsupportedImport is returned for batches whose kind is not one of
// point, polygon or line.
var ErrUnsupportedImport = errors.New("unsupported import kind")

// ImportFeature is one parsed feature. Each part becomes one geometry
// item: a single position for points, a ring for polygons, a path for
// lines. Multi-geometries contribute several parts.
type ImportFeature struct {
	Parts      [][]model.Coordinate
	Properties map[string]any
}

// ImportBatch is a group of parsed features of one geometry kind, as
// handed over by a file importer.
type ImportBatch struct {
	Kind     model.LayerKind
	Name     string
	Group    string
	Features []ImportFeature
}

// LayersFromBatch wraps a batch into uploaded layers. Empty parts are
// dropped; a batch with nothing left produces no layer. Polygon rings are
// closed if the source left them open. IDs are left empty for the store
// to assign.
func LayersFromBatch(batch ImportBatch) ([]*model.Layer, error) {
	var (
		geom  model.Geometry
		props []map[string]any
	)

	switch batch.Kind {
	case model.KindPoint:
		var g model.PointGeometry
		for _, f := range batch.Features {
			for _, part := range f.Parts {
				for _, c := range part {
					g = append(g, c)
					props = append(props, f.Properties)
				}
			}
		}
		geom = g
	case model.KindPolygon:
		var g model.RingGeometry
		for _, f := range batch.Features {
			for _, part := range f.Parts {
				if len(part) < 3 {
					continue
				}
				g = append(g, model.Ring(append([]model.Coordinate(nil), part...)).Close())
				props = append(props, f.Properties)
			}
		}
		geom = g
	case model.KindLine:
		var g model.PathGeometry
		for _, f := range batch.Features {
			for _, part := range f.Parts {
				if len(part) < 2 {
					continue
				}
				g = append(g, model.Path(append([]model.Coordinate(nil), part...)))
				props = append(props, f.Properties)
			}
		}
		geom = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImport, batch.Kind)
	}

	if geom.Len() == 0 {
		return nil, nil
	}
	if !hasProperties(props) {
		props = nil
	}

	label := batch.Name
	if label == "" {
		label = fmt.Sprintf("Imported %s", batch.Kind)
	}
	return []*model.Layer{{
		Kind:       batch.Kind,
		Geometry:   geom,
		Style:      DefaultStyle(batch.Kind, model.OriginUploaded),
		Label:      label,
		Visible:    true,
		Origin:     model.OriginUploaded,
		Group:      batch.Group,
		Properties: props,
	}}, nil
}

func hasProperties(props []map[string]any) bool {
	for _, p := range props {
		if len(p) > 0 {
			return true
		}
	}
	return false
}

// LayerFromCommit turns a completed drawing gesture into a drawn layer.
func LayerFromCommit(c Commit, label, group string) *model.Layer {
	return &model.Layer{
		Kind:        c.Kind,
		Geometry:    c.Geometry,
		Style:       DefaultStyle(c.Kind, model.OriginDrawn),
		Label:       label,
		Measurement: c.Measurement,
		Visible:     true,
		Origin:      model.OriginDrawn,
		Group:       group,
	}
}
