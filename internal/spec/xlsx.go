package spec

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// LoadXLSX reads a specification table from one sheet of an XLSX workbook.
// Analysts maintain multi-model specs as workbooks with one sheet per model;
// an empty sheetName selects the first sheet. Layout matches the CSV form:
// a Description,Expression,... header row followed by data rows.
func LoadXLSX(path, sheetName string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spec: open workbook %s", path)
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if sheetName != "" {
		name = name + "." + sheetName
	}

	var header []string
	var raw [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		if isBlank(cells) {
			continue
		}
		raw = append(raw, cells)
	}

	if header == nil {
		return nil, eris.Errorf("spec %s: empty sheet", name)
	}
	segments, err := parseHeader(header, name)
	if err != nil {
		return nil, err
	}

	// Trailing blank cells are dropped by the workbook format; pad rows back
	// out to the header width so blank coefficients parse as zero.
	width := len(header)
	for i, rec := range raw {
		for len(rec) < width {
			rec = append(rec, "")
		}
		raw[i] = rec[:width]
	}

	return newTable(name, segments, raw)
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("spec: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("spec: sheet %q not found", name)
	}
	return sheet, nil
}
