package logit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitlab/destchoice/internal/trace"
)

func newTracer(t *testing.T) *trace.Tracer {
	t.Helper()
	tr, err := trace.New(t.TempDir())
	require.NoError(t, err)
	return tr
}

func TestUtilsToProbs_RowsSumToOne(t *testing.T) {
	utils := [][]float64{
		{0, 0},
		{1, 2, 3},
		{-1.5, 0.5, 2.25, -0.75},
	}
	probs, err := UtilsToProbs(utils, nil, newTracer(t), "workplace")
	require.NoError(t, err)

	for i, row := range probs {
		var sum float64
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
	}

	// equal utilities split evenly
	assert.InDelta(t, 0.5, probs[0][0], 1e-12)

	// higher utility gets higher probability
	assert.Greater(t, probs[1][2], probs[1][1])
	assert.Greater(t, probs[1][1], probs[1][0])
}

func TestUtilsToProbs_UnavailableAlternative(t *testing.T) {
	// a -999 exclusion penalty must produce effectively zero probability
	probs, err := UtilsToProbs([][]float64{{0.5, -999, 1.2}}, nil, newTracer(t), "workplace")
	require.NoError(t, err)
	assert.Less(t, probs[0][1], 1e-300*10)
}

func TestUtilsToProbs_InfiniteRowFails(t *testing.T) {
	utils := [][]float64{
		{0, 1},
		{800, math.Inf(1)},
	}
	_, err := UtilsToProbs(utils, []string{"p1", "p2"}, newTracer(t), "workplace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infinite")
}

func TestUtilsToProbs_AllStronglyNegative(t *testing.T) {
	// a row of -999s still divides cleanly thanks to the exp floor
	probs, err := UtilsToProbs([][]float64{{-999, -999}}, nil, newTracer(t), "workplace")
	require.NoError(t, err)
	var sum float64
	for _, p := range probs[0] {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, badProbThreshold)
}

func TestMakeChoices_FollowsProbabilities(t *testing.T) {
	probs := [][]float64{
		{1, 0, 0},
		{0, 0, 1},
		{0, 1, 0},
	}
	choices, err := MakeChoices(probs, nil, rand.New(rand.NewSource(42)), newTracer(t), "workplace")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, choices)
}

func TestMakeChoices_DeterministicUnderSeed(t *testing.T) {
	probs := [][]float64{
		{0.25, 0.25, 0.5},
		{0.6, 0.3, 0.1},
	}
	first, err := MakeChoices(probs, nil, rand.New(rand.NewSource(7)), newTracer(t), "workplace")
	require.NoError(t, err)
	second, err := MakeChoices(probs, nil, rand.New(rand.NewSource(7)), newTracer(t), "workplace")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMakeChoices_BadRowFails(t *testing.T) {
	_, err := MakeChoices([][]float64{{0.2, 0.2}}, []string{"p9"}, rand.New(rand.NewSource(1)), newTracer(t), "workplace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not sum to 1")
}

func TestMakeChoices_EmptyRowFails(t *testing.T) {
	_, err := MakeChoices([][]float64{{}}, nil, rand.New(rand.NewSource(1)), newTracer(t), "workplace")
	assert.Error(t, err)
}
