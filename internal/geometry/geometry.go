// Package geometry serializes and reprojects spatial data between the display
// coordinate system (EPSG:4326, what map clients speak) and the storage
// coordinate system (EPSG:3765, HTRS96/TM, what the road records use). The
// work polygons themselves are precomputed upstream; this package never
// derives geometry, only transforms it.
package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

const (
	// SRIDDisplay is WGS84 geographic coordinates.
	SRIDDisplay = 4326
	// SRIDStorage is HTRS96/TM, the Croatian national grid.
	SRIDStorage = 3765
)

// Decode parses a GeoJSON geometry in display coordinates.
func Decode(raw []byte) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return g.Geometry(), nil
}

// Encode renders a geometry as GeoJSON. Returns nil for a nil geometry.
func Encode(g orb.Geometry) (json.RawMessage, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return raw, nil
}

// ToStorage reprojects a display-CRS geometry into the storage CRS.
func ToStorage(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), htrs96Forward)
}

// ToDisplay reprojects a storage-CRS geometry into the display CRS.
func ToDisplay(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), htrs96Inverse)
}

// IsEmpty reports whether a geometry carries no coordinates.
func IsEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	case orb.Bound:
		return false
	default:
		return true
	}
}
