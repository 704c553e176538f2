package core

import (
	"fmt"

	"github.com/signalsfoundry/mapdraw/model"
)

const defaultPointRadius = 6

var (
	uploadedColor = model.RGB{0x8e, 0x44, 0xad}

	qualityColors = map[SignalQuality]model.RGB{
		SignalExcellent: {0x2e, 0xcc, 0x71},
		SignalGood:      {0xa3, 0xd9, 0x3b},
		SignalFair:      {0xf3, 0x9c, 0x12},
		SignalPoor:      {0xe7, 0x4c, 0x3c},
	}

	previewColor   = model.RGB{0xff, 0xff, 0xff}
	highlightColor = model.RGB{0xff, 0xd7, 0x00}
	bandColor      = model.RGB{0x34, 0x98, 0xdb}
	linkColor      = model.RGB{0x95, 0xa5, 0xa6}
)

// DefaultStyle is the style a new layer of kind gets.
func DefaultStyle(kind model.LayerKind, origin model.Origin) model.Style {
	st := model.Style{Color: kindColor(kind)}
	if origin == model.OriginUploaded {
		st.Color = uploadedColor
	}
	if kind == model.KindPoint {
		st.PointMode = model.PointModeCircle
		st.Radius = defaultPointRadius
		st.Icon = "marker"
		st.IconKind = "pin"
	}
	return st
}

func kindColor(kind model.LayerKind) model.RGB {
	switch kind {
	case model.KindPoint:
		return model.RGB{0xe7, 0x4c, 0x3c}
	case model.KindPolygon:
		return model.RGB{0x34, 0x98, 0xdb}
	case model.KindLine:
		return model.RGB{0x2e, 0xcc, 0x71}
	case model.KindSector:
		return model.RGB{0x9b, 0x59, 0xb6}
	case model.KindDistance:
		return model.RGB{0xf1, 0xc4, 0x0f}
	case model.KindArea:
		return model.RGB{0x1a, 0xbc, 0x9c}
	case model.KindAzimuth:
		return model.RGB{0xe6, 0x7e, 0x22}
	}
	panic(fmt.Sprintf("core: no colour for kind %q", string(kind)))
}

// QualityColor is the render colour of a signal quality class.
func QualityColor(q SignalQuality) model.RGB {
	return qualityColors[q]
}
