package skim

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadCSV reads a long-form skim file: a header of origin,destination,value
// followed by one row per zone pair. Pairs not present read as zero.
func LoadCSV(path, name string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "skim: open %s", path)
	}
	defer func() { _ = f.Close() }()

	m, err := ParseCSV(f, name)
	if err != nil {
		return nil, eris.Wrapf(err, "skim: parse %s", path)
	}
	return m, nil
}

// ParseCSV reads a long-form skim table from r.
func ParseCSV(r io.Reader, name string) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "skim %s: read header", name)
	}
	if len(header) != 3 ||
		!strings.EqualFold(strings.TrimSpace(header[0]), "origin") ||
		!strings.EqualFold(strings.TrimSpace(header[1]), "destination") ||
		!strings.EqualFold(strings.TrimSpace(header[2]), "value") {
		return nil, eris.Errorf("skim %s: header must be origin,destination,value", name)
	}

	var cells []Cell
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "skim %s: read row", name)
		}
		line++

		orig, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, eris.Wrapf(err, "skim %s: line %d: origin", name, line)
		}
		dest, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, eris.Wrapf(err, "skim %s: line %d: destination", name, line)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "skim %s: line %d: value", name, line)
		}
		cells = append(cells, Cell{Origin: orig, Destination: dest, Value: v})
	}

	if len(cells) == 0 {
		return nil, eris.Errorf("skim %s: no data rows", name)
	}

	m, err := FromCells(name, cells)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("skim: loaded matrix",
		zap.String("name", name),
		zap.Int("zones", len(m.Zones())),
		zap.Int("cells", len(cells)),
	)
	return m, nil
}

// Point is a zone centroid in WGS84 coordinates.
type Point struct {
	Zone int
	Lon  float64
	Lat  float64
}

const earthRadiusMiles = 3958.8

// DistanceMatrix synthesizes a great-circle distance skim from zone
// centroids, in miles. Used when the model has no assigned-network distance
// skim; intrazonal distance is zero.
func DistanceMatrix(name string, points []Point) (*Matrix, error) {
	zones := make([]int, len(points))
	for i, p := range points {
		zones[i] = p.Zone
	}

	m, err := NewMatrix(name, zones)
	if err != nil {
		return nil, err
	}
	for _, a := range points {
		for _, b := range points {
			if a.Zone == b.Zone {
				continue
			}
			if err := m.SetValue(a.Zone, b.Zone, haversineMiles(a, b)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func haversineMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}
