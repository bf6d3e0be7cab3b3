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

// SizeSpec maps (purpose, segment) to the land-use coefficients that weigh
// each category into a zone's size term. Long-form CSV:
// purpose,segment,category,coefficient.
type SizeSpec struct {
	coefs map[string]map[string]float64
}

func sizeKey(purpose, segment string) string { return purpose + "." + segment }

// LoadSizeSpecCSV reads size-term coefficients from a CSV file.
func LoadSizeSpecCSV(path string) (*SizeSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: open %s", path)
	}
	defer func() { _ = f.Close() }()

	s, err := ParseSizeSpecCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "zone: parse %s", path)
	}
	return s, nil
}

// ParseSizeSpecCSV reads size-term coefficients from r.
func ParseSizeSpecCSV(r io.Reader) (*SizeSpec, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "zone: size spec header")
	}
	want := []string{"purpose", "segment", "category", "coefficient"}
	if len(header) != len(want) {
		return nil, eris.New("zone: size spec header must be purpose,segment,category,coefficient")
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(h), want[i]) {
			return nil, eris.New("zone: size spec header must be purpose,segment,category,coefficient")
		}
	}

	s := &SizeSpec{coefs: make(map[string]map[string]float64)}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "zone: size spec row")
		}
		line++

		purpose := strings.TrimSpace(rec[0])
		segment := strings.TrimSpace(rec[1])
		category := strings.TrimSpace(rec[2])
		if purpose == "" || segment == "" || category == "" {
			return nil, eris.Errorf("zone: size spec line %d: empty key", line)
		}

		coef, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "zone: size spec line %d: coefficient", line)
		}

		key := sizeKey(purpose, segment)
		if s.coefs[key] == nil {
			s.coefs[key] = make(map[string]float64)
		}
		s.coefs[key][category] = coef
	}

	if len(s.coefs) == 0 {
		return nil, eris.New("zone: size spec has no rows")
	}
	return s, nil
}

// Terms computes the size term for every zone in the table for one
// (purpose, segment). Categories the land-use table lacks are an error:
// a misspelled category would otherwise silently zero a segment's mass.
func (s *SizeSpec) Terms(t *Table, purpose, segment string) (map[int]float64, error) {
	coefs, ok := s.coefs[sizeKey(purpose, segment)]
	if !ok {
		return nil, eris.Errorf("zone: no size coefficients for %s/%s", purpose, segment)
	}

	terms := make(map[int]float64, t.Len())
	for _, id := range t.IDs() {
		z, _ := t.Get(id)
		var sum float64
		for cat, coef := range coefs {
			v, ok := z.LandUse[cat]
			if !ok {
				return nil, eris.Errorf("zone: zone %d missing land-use category %q", id, cat)
			}
			sum += coef * v
		}
		terms[id] = sum
	}
	return terms, nil
}

// Segments lists the (purpose, segment) pairs the spec covers, sorted.
func (s *SizeSpec) Segments() []string {
	keys := make([]string, 0, len(s.coefs))
	for k := range s.coefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
