// Package zone holds the zone system for a model region: land-use attributes
// per zone and the size-term coefficients that turn them into the
// attractiveness mass of each destination alternative.
package zone

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Zone is one traffic analysis zone and its land-use attributes (employment
// and enrollment counts by category, flags like area type).
type Zone struct {
	ID      int
	LandUse map[string]float64
}

// Table is an immutable zone system, read-only after load.
type Table struct {
	zones []Zone
	index map[int]int
}

// IDs returns all zone IDs in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.zones))
	for i, z := range t.zones {
		ids[i] = z.ID
	}
	return ids
}

// Get returns the zone with the given ID.
func (t *Table) Get(id int) (*Zone, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.zones[i], true
}

// Len returns the number of zones.
func (t *Table) Len() int { return len(t.zones) }

// LoadLandUseCSV reads a land-use table: a header of zone,<category...>
// followed by one row per zone with numeric attribute values.
func LoadLandUseCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: open %s", path)
	}
	defer func() { _ = f.Close() }()

	t, err := ParseLandUseCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: parse %s", path)
	}
	return t, nil
}

// ParseLandUseCSV reads a land-use table from r.
func ParseLandUseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "zone: read header")
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "zone") {
		return nil, eris.New("zone: header must be zone,<category...>")
	}
	categories := make([]string, len(header)-1)
	for i, h := range header[1:] {
		categories[i] = strings.TrimSpace(h)
	}

	t := &Table{index: make(map[int]int)}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "zone: read row")
		}
		line++

		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, eris.Wrapf(err, "zone: line %d: zone id", line)
		}
		if _, dup := t.index[id]; dup {
			return nil, eris.Errorf("zone: line %d: duplicate zone %d", line, id)
		}

		lu := make(map[string]float64, len(categories))
		for i, cat := range categories {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[1+i]), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "zone: line %d: %s", line, cat)
			}
			lu[cat] = v
		}

		t.index[id] = len(t.zones)
		t.zones = append(t.zones, Zone{ID: id, LandUse: lu})
	}

	if len(t.zones) == 0 {
		return nil, eris.New("zone: no zones")
	}

	sort.Slice(t.zones, func(i, j int) bool { return t.zones[i].ID < t.zones[j].ID })
	for i, z := range t.zones {
		t.index[z.ID] = i
	}
	return t, nil
}
