// Package trace writes diagnostic CSV dumps for model runs: offending
// utility or probability rows, and summaries of chosen zones. Dumps are for
// the analyst debugging a specification; they never alter results.
package trace

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MaxDump caps how many offending rows a single dump file records.
const MaxDump = 50

// Tracer writes labeled CSV files under one directory. A nil Tracer is valid
// and discards everything.
type Tracer struct {
	dir string
}

// New creates a Tracer writing to dir, creating it if needed.
func New(dir string) (*Tracer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "trace: create dir %s", dir)
	}
	return &Tracer{dir: dir}, nil
}

// DumpRows writes up to MaxDump rows to <dir>/<label>.csv with a leading id
// column. Returns the file path written, or "" for a nil Tracer.
func (t *Tracer) DumpRows(label string, header []string, ids []string, rows [][]float64) (string, error) {
	if t == nil {
		return "", nil
	}
	if len(ids) != len(rows) {
		return "", eris.Errorf("trace: %d ids for %d rows", len(ids), len(rows))
	}

	n := len(rows)
	if n > MaxDump {
		n = MaxDump
	}

	path := filepath.Join(t.dir, label+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "trace: create %s", path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"id"}, header...)); err != nil {
		return "", eris.Wrap(err, "trace: write header")
	}
	for i := range n {
		rec := make([]string, 0, 1+len(rows[i]))
		rec = append(rec, ids[i])
		for _, v := range rows[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return "", eris.Wrap(err, "trace: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "trace: flush")
	}

	zap.L().Info("trace: dumped rows",
		zap.String("label", label),
		zap.Int("rows", n),
		zap.String("path", path),
	)
	return path, nil
}

// PrintSummary logs descriptive statistics of a result column, mirroring the
// run log a modeler scans after each step.
func PrintSummary(label string, values []float64) {
	if len(values) == 0 {
		zap.L().Info("trace: summary", zap.String("label", label), zap.Int("count", 0))
		return
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}

	zap.L().Info("trace: summary",
		zap.String("label", label),
		zap.Int("count", len(values)),
		zap.Float64("min", lo),
		zap.Float64("max", hi),
		zap.Float64("mean", sum/float64(len(values))),
	)
}
