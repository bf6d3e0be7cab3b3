// Package spec loads utility specification tables for destination choice
// models and evaluates them against data contexts. A table is a declarative
// list of (description, expression, coefficient) rows, with one coefficient
// column per chooser segment; the utility of an alternative is the sum over
// rows of the evaluated expression times the segment coefficient.
package spec

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/transitlab/destchoice/internal/expr"
)

// ExpressionMarker prefixes expressions to be evaluated as code. Rows without
// the marker name a single data context field.
const ExpressionMarker = "@"

// UnavailableCoefficient is the conventional sentinel weight paired with a
// boolean zero-attraction indicator. When the indicator is true the row
// contributes -999, driving the alternative's utility low enough that its
// choice probability underflows to zero.
const UnavailableCoefficient = -999

// Row is one line of a specification table. The compiled program is shared
// across all evaluations of the table and never mutated.
type Row struct {
	Description  string
	Expression   string
	Coefficients []float64

	prog *expr.Program
}

// Table is an ordered utility specification with one coefficient column per
// segment. Tables are loaded once per model run and are immutable afterward;
// concurrent evaluation against distinct contexts is safe.
type Table struct {
	Name     string
	Segments []string
	Rows     []Row
}

// RowContribution is one row's share of an evaluated utility, for tracing.
type RowContribution struct {
	Description  string  `json:"description"`
	Expression   string  `json:"expression"`
	Value        float64 `json:"value"`
	Coefficient  float64 `json:"coefficient"`
	Contribution float64 `json:"contribution"`
}

// newTable compiles rows of (description, expression, coefficients...) into a
// Table. Expression strings with the @ marker are compiled as code; bare
// strings must be a single field name.
func newTable(name string, segments []string, raw [][]string) (*Table, error) {
	if len(segments) == 0 {
		return nil, eris.Errorf("spec %s: no coefficient columns", name)
	}

	t := &Table{Name: name, Segments: segments}
	for i, rec := range raw {
		row, err := compileRow(rec, len(segments))
		if err != nil {
			return nil, eris.Wrapf(err, "spec %s: row %d", name, i+1)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func compileRow(rec []string, numSegments int) (Row, error) {
	if len(rec) != 2+numSegments {
		return Row{}, eris.Errorf("expected %d columns, got %d", 2+numSegments, len(rec))
	}

	raw := strings.TrimSpace(rec[1])
	if raw == "" {
		return Row{}, eris.New("empty expression")
	}

	src := raw
	if strings.HasPrefix(raw, ExpressionMarker) {
		src = strings.TrimSpace(strings.TrimPrefix(raw, ExpressionMarker))
	} else if !expr.IsIdentifier(raw) {
		return Row{}, eris.Errorf("bare expression %q must be a field name; prefix with %s to evaluate as code", raw, ExpressionMarker)
	}

	prog, err := expr.Compile(src)
	if err != nil {
		return Row{}, err
	}

	coefs := make([]float64, numSegments)
	for j := range numSegments {
		c, err := parseCoefficient(rec[2+j])
		if err != nil {
			return Row{}, eris.Wrapf(err, "segment column %d", j+1)
		}
		coefs[j] = c
	}

	return Row{
		Description:  strings.TrimSpace(rec[0]),
		Expression:   raw,
		Coefficients: coefs,
		prog:         prog,
	}, nil
}

// segmentIndex resolves a segment name to its coefficient column. An empty
// name selects the only segment of a single-segment table, covering files
// whose lone coefficient column is headed "Alt".
func (t *Table) segmentIndex(segment string) (int, error) {
	if segment == "" {
		if len(t.Segments) == 1 {
			return 0, nil
		}
		return 0, eris.Errorf("spec %s: segment required, table has %d segments", t.Name, len(t.Segments))
	}
	for i, s := range t.Segments {
		if s == segment {
			return i, nil
		}
	}
	return 0, eris.Errorf("spec %s: unknown segment %q", t.Name, segment)
}

// Utility evaluates the table for one segment against ctx and returns the
// total score. An empty table scores 0. The result is linear in the
// coefficient column and has no side effects.
func (t *Table) Utility(segment string, ctx expr.Context) (float64, error) {
	seg, err := t.segmentIndex(segment)
	if err != nil {
		return 0, err
	}

	var total float64
	for i := range t.Rows {
		row := &t.Rows[i]
		coef := row.Coefficients[seg]
		if coef == 0 {
			continue
		}
		v, err := row.prog.EvalNumber(ctx)
		if err != nil {
			return 0, eris.Wrapf(err, "spec %s: row %d (%s)", t.Name, i+1, row.Description)
		}
		total += coef * v
	}
	return total, nil
}

// Breakdown evaluates like Utility but also returns per-row contributions in
// table order, including zero-coefficient rows, for trace output.
func (t *Table) Breakdown(segment string, ctx expr.Context) ([]RowContribution, float64, error) {
	seg, err := t.segmentIndex(segment)
	if err != nil {
		return nil, 0, err
	}

	contribs := make([]RowContribution, 0, len(t.Rows))
	var total float64
	for i := range t.Rows {
		row := &t.Rows[i]
		v, err := row.prog.EvalNumber(ctx)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "spec %s: row %d (%s)", t.Name, i+1, row.Description)
		}
		coef := row.Coefficients[seg]
		contribs = append(contribs, RowContribution{
			Description:  row.Description,
			Expression:   row.Expression,
			Value:        v,
			Coefficient:  coef,
			Contribution: coef * v,
		})
		total += coef * v
	}
	return contribs, total, nil
}
