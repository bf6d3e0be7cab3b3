package spec

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// LoadCSV reads a specification table from a CSV file. The header must be
// Description,Expression followed by one or more coefficient columns; the
// table name is the file's base name without extension.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spec: open %s", path)
	}
	defer func() { _ = f.Close() }()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseCSV(f, name)
}

// ParseCSV reads a specification table from r.
func ParseCSV(r io.Reader, name string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "spec %s: read header", name)
	}
	segments, err := parseHeader(header, name)
	if err != nil {
		return nil, err
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "spec %s: read row", name)
		}
		if isBlank(rec) {
			continue
		}
		raw = append(raw, rec)
	}

	return newTable(name, segments, raw)
}

func parseHeader(header []string, name string) ([]string, error) {
	if len(header) < 3 {
		return nil, eris.Errorf("spec %s: header needs Description, Expression and at least one coefficient column", name)
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "Description") ||
		!strings.EqualFold(strings.TrimSpace(header[1]), "Expression") {
		return nil, eris.Errorf("spec %s: header must start with Description,Expression, got %q,%q", name, header[0], header[1])
	}

	segments := make([]string, 0, len(header)-2)
	for _, h := range header[2:] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, eris.Errorf("spec %s: empty coefficient column name", name)
		}
		segments = append(segments, h)
	}
	return segments, nil
}

// parseCoefficient parses a coefficient cell. Blank cells are zero, matching
// the convention that segment columns leave inapplicable rows empty.
func parseCoefficient(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	c, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "bad coefficient %q", cell)
	}
	return c, nil
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
