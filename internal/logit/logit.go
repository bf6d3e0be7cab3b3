// Package logit converts utility scores into choice probabilities and Monte
// Carlo choices. The math follows the standard multinomial logit form:
// probability proportional to exp(utility) across each chooser's
// alternatives.
package logit

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/transitlab/destchoice/internal/trace"
)

const (
	// expUtilMin keeps exponentiated utilities away from zero so that a row
	// of strongly negative utilities still sums to something divisible.
	expUtilMin = 1e-300

	probMin = 1e-300

	// badProbThreshold bounds the tolerated deviation of a probability row's
	// sum from one.
	badProbThreshold = 0.001
)

// UtilsToProbs converts a table of utilities (rows are choosers, columns are
// alternatives) to probabilities. Rows whose exponentiated sum overflows to
// infinity are a specification error: the offending rows (up to trace.MaxDump)
// are dumped under label and the run fails.
func UtilsToProbs(utils [][]float64, ids []string, tr *trace.Tracer, label string) ([][]float64, error) {
	probs := make([][]float64, len(utils))

	var badIDs []string
	var badRows [][]float64
	for i, row := range utils {
		exps := make([]float64, len(row))
		var sum float64
		for j, u := range row {
			e := math.Exp(u)
			if e < expUtilMin {
				e = expUtilMin
			}
			exps[j] = e
			sum += e
		}

		if math.IsInf(sum, 1) {
			badIDs = append(badIDs, rowID(ids, i))
			badRows = append(badRows, row)
			continue
		}

		for j := range exps {
			p := exps[j] / sum
			if math.IsNaN(p) || p < probMin {
				p = probMin
			}
			exps[j] = p
		}
		probs[i] = exps
	}

	if len(badRows) > 0 {
		zap.L().Error("logit: exponentiated utility rows have infinite values",
			zap.String("label", label),
			zap.Int("rows", len(badRows)),
		)
		if _, err := tr.DumpRows(label+".bad_utils", nil, badIDs, badRows); err != nil {
			return nil, err
		}
		return nil, eris.Errorf("logit: %d exponentiated utility rows have infinite values", len(badRows))
	}

	if err := validateProbRows(probs, ids, tr, label+".bad_probs"); err != nil {
		return nil, err
	}
	return probs, nil
}

// MakeChoices picks one alternative per chooser by inverting the cumulative
// probability row against a uniform draw from rng. Returns column indexes.
// Probability rows must sum to 1 within tolerance.
func MakeChoices(probs [][]float64, ids []string, rng *rand.Rand, tr *trace.Tracer, label string) ([]int, error) {
	if err := validateProbRows(probs, ids, tr, label+".bad_probs"); err != nil {
		return nil, err
	}

	choices := make([]int, len(probs))
	for i, row := range probs {
		draw := rng.Float64()
		var cum float64
		choice := len(row) - 1
		for j, p := range row {
			cum += p
			if cum > draw {
				choice = j
				break
			}
		}
		choices[i] = choice
	}
	return choices, nil
}

func validateProbRows(probs [][]float64, ids []string, tr *trace.Tracer, label string) error {
	var badIDs []string
	var badRows [][]float64
	for i, row := range probs {
		if len(row) == 0 {
			return eris.Errorf("logit: empty probability row %s", rowID(ids, i))
		}
		var sum float64
		for _, p := range row {
			sum += p
		}
		if math.Abs(sum-1) > badProbThreshold {
			badIDs = append(badIDs, rowID(ids, i))
			badRows = append(badRows, row)
		}
	}

	if len(badRows) > 0 {
		zap.L().Error("logit: probabilities do not sum to 1",
			zap.String("label", label),
			zap.Int("rows", len(badRows)),
		)
		if _, err := tr.DumpRows(label, nil, badIDs, badRows); err != nil {
			return err
		}
		return eris.Errorf("logit: %d probability rows do not sum to 1", len(badRows))
	}
	return nil
}

func rowID(ids []string, i int) string {
	if i < len(ids) {
		return ids[i]
	}
	return strconv.Itoa(i)
}
