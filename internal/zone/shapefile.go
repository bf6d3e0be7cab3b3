package zone

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/transitlab/destchoice/internal/skim"
)

// LoadCentroids reads zone centroids from a TAZ boundary shapefile. idField
// names the DBF attribute with the zone number; point shapes are used
// directly and polygon shapes are reduced to their area centroid. DBF text
// is Latin-1 and is decoded before matching field names.
func LoadCentroids(path, idField string) ([]skim.Point, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	idIdx := -1
	for i, f := range fields {
		name, err := decodeDBFText(strings.TrimRight(f.String(), "\x00"))
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(name, idField) {
			idIdx = i
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("zone: shapefile has no %q field", idField)
	}

	var points []skim.Point
	seen := make(map[int]bool)
	var skipped int

	for reader.Next() {
		n, shape := reader.Shape()

		raw, err := decodeDBFText(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "zone: shape %d: zone id %q", n, raw)
		}
		if seen[id] {
			return nil, eris.Errorf("zone: duplicate zone %d in shapefile", id)
		}

		lon, lat, ok := centroidOf(shape)
		if !ok {
			skipped++
			continue
		}

		seen[id] = true
		points = append(points, skim.Point{Zone: id, Lon: lon, Lat: lat})
	}

	if skipped > 0 {
		zap.L().Warn("zone: skipped shapes without usable geometry", zap.Int("count", skipped))
	}
	if len(points) == 0 {
		return nil, eris.Errorf("zone: no centroids in %s", path)
	}
	return points, nil
}

func centroidOf(shape shp.Shape) (lon, lat float64, ok bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return s.X, s.Y, true
	case *shp.Polygon:
		poly := polygonToGeom(s)
		if poly == nil {
			return 0, 0, false
		}
		c := xy.PolygonsCentroid(poly)
		return c.X(), c.Y(), true
	default:
		return 0, 0, false
	}
}

// polygonToGeom converts shapefile rings into a geom.Polygon. The first ring
// is the shell; shapefiles of TAZ boundaries rarely carry holes but they are
// preserved when present.
func polygonToGeom(p *shp.Polygon) *geom.Polygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	poly := geom.NewPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 8 { // a closed ring needs at least 4 points
			continue
		}
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("zone: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}

	if poly.NumLinearRings() == 0 {
		return nil
	}
	return poly
}

func decodeDBFText(s string) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return "", eris.Wrap(err, "zone: decode dbf text")
	}
	return out, nil
}
