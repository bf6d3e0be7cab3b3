package simulate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitlab/destchoice/internal/skim"
	"github.com/transitlab/destchoice/internal/spec"
	"github.com/transitlab/destchoice/internal/trace"
	"github.com/transitlab/destchoice/internal/zone"
)

const testSpecCSV = `Description,Expression,low,high
"Distance",@skims['DISTANCE'],-1.0,-2.0
"Size variable",@log1p(size_term),1,1
"No attractions",@size_term == 0,-999,-999
`

func testTable(t *testing.T) *spec.Table {
	t.Helper()
	table, err := spec.ParseCSV(strings.NewReader(testSpecCSV), "test_location")
	require.NoError(t, err)
	return table
}

func testSkims(t *testing.T) *skim.Set {
	t.Helper()
	var cells []skim.Cell
	zones := []int{1, 2, 3}
	for _, o := range zones {
		for _, d := range zones {
			diff := o - d
			if diff < 0 {
				diff = -diff
			}
			cells = append(cells, skim.Cell{Origin: o, Destination: d, Value: float64(diff) * 10})
		}
	}
	m, err := skim.FromCells("DISTANCE", cells)
	require.NoError(t, err)
	s := skim.NewSet()
	require.NoError(t, s.Add(m))
	return s
}

func testAlts(sizes map[int]float64) []Alternative {
	var alts []Alternative
	for _, z := range []int{1, 2, 3} {
		alts = append(alts, Alternative{Zone: z, Fields: map[string]float64{"size_term": sizes[z]}})
	}
	return alts
}

func newTracer(t *testing.T) *trace.Tracer {
	t.Helper()
	tr, err := trace.New(t.TempDir())
	require.NoError(t, err)
	return tr
}

func TestRun_PrefersNearbyAttractiveZones(t *testing.T) {
	choosers := []Chooser{
		{ID: 100, HomeZone: 1, Fields: map[string]float64{}},
		{ID: 200, HomeZone: 3, Fields: map[string]float64{}},
	}
	alts := testAlts(map[int]float64{1: 50, 2: 50, 3: 50})

	choices, err := Run(context.Background(), testTable(t), "low", choosers, alts, testSkims(t), newTracer(t), Options{Seed: 1})
	require.NoError(t, err)
	require.Len(t, choices, 2)

	// 10 distance units per zone step at -1/unit swamps the size term;
	// each chooser effectively always stays home.
	assert.Equal(t, int64(100), choices[0].ChooserID)
	assert.Equal(t, 1, choices[0].Zone)
	assert.Equal(t, int64(200), choices[1].ChooserID)
	assert.Equal(t, 3, choices[1].Zone)
}

func TestRun_ExclusionPenaltyRemovesZone(t *testing.T) {
	// zone 1 has no attractions; despite zero distance the -999 row keeps
	// the chooser out of it
	choosers := []Chooser{{ID: 7, HomeZone: 1, Fields: map[string]float64{}}}
	alts := testAlts(map[int]float64{1: 0, 2: 100, 3: 0})

	for seed := int64(0); seed < 20; seed++ {
		choices, err := Run(context.Background(), testTable(t), "low", choosers, alts, testSkims(t), newTracer(t), Options{Seed: seed})
		require.NoError(t, err)
		assert.Equal(t, 2, choices[0].Zone, "seed %d", seed)
	}
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	var choosers []Chooser
	for i := range 30 {
		choosers = append(choosers, Chooser{ID: int64(i + 1), HomeZone: 1 + i%3, Fields: map[string]float64{}})
	}
	alts := testAlts(map[int]float64{1: 20, 2: 20, 3: 20})

	serial, err := Run(context.Background(), testTable(t), "high", choosers, alts, testSkims(t), newTracer(t), Options{Seed: 42, Workers: 1})
	require.NoError(t, err)
	parallel, err := Run(context.Background(), testTable(t), "high", choosers, alts, testSkims(t), newTracer(t), Options{Seed: 42, Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestRun_SamplingIsDeterministic(t *testing.T) {
	var choosers []Chooser
	for i := range 10 {
		choosers = append(choosers, Chooser{ID: int64(i + 1), HomeZone: 1, Fields: map[string]float64{}})
	}
	alts := testAlts(map[int]float64{1: 20, 2: 20, 3: 20})
	opts := Options{Seed: 9, SampleSize: 2}

	first, err := Run(context.Background(), testTable(t), "low", choosers, alts, testSkims(t), newTracer(t), opts)
	require.NoError(t, err)
	second, err := Run(context.Background(), testTable(t), "low", choosers, alts, testSkims(t), newTracer(t), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChooserSeed(t *testing.T) {
	// Stable for a given (run seed, chooser) and distinct across choosers,
	// including IDs large enough to overflow the multiply.
	assert.Equal(t, chooserSeed(42, 101), chooserSeed(42, 101))
	assert.NotEqual(t, chooserSeed(42, 101), chooserSeed(42, 102))
	assert.NotEqual(t, chooserSeed(42, 101), chooserSeed(43, 101))
	assert.NotEqual(t, chooserSeed(42, 1<<62), chooserSeed(42, (1<<62)+1))
}

func TestRun_ConstantsVisibleToExpressions(t *testing.T) {
	table, err := spec.ParseCSV(strings.NewReader(
		"Description,Expression,low\n\"Shadow price\",@shadow_price,1\n"), "const_spec")
	require.NoError(t, err)

	choosers := []Chooser{{ID: 1, HomeZone: 1, Fields: map[string]float64{}}}
	alts := []Alternative{{Zone: 1, Fields: map[string]float64{}}}

	_, err = Run(context.Background(), table, "low", choosers, alts, testSkims(t), newTracer(t), Options{Seed: 1})
	require.Error(t, err, "constant missing")

	_, err = Run(context.Background(), table, "low", choosers, alts, testSkims(t), newTracer(t),
		Options{Seed: 1, Constants: map[string]float64{"shadow_price": -0.5}})
	require.NoError(t, err)
}

func TestRun_NoAlternativesFails(t *testing.T) {
	_, err := Run(context.Background(), testTable(t), "low", nil, nil, testSkims(t), newTracer(t), Options{})
	assert.Error(t, err)
}

const landUseCSV = `zone,total_emp,service_emp
1,0,0
2,100,40
3,60,5
`

const sizeCSV = `purpose,segment,category,coefficient
work,low,total_emp,1.0
work,high,service_emp,1.0
`

func TestRunSegmented(t *testing.T) {
	zones, err := zone.ParseLandUseCSV(strings.NewReader(landUseCSV))
	require.NoError(t, err)
	sizes, err := zone.ParseSizeSpecCSV(strings.NewReader(sizeCSV))
	require.NoError(t, err)

	settings := &Settings{
		Spec:    "test_location.csv",
		Purpose: "work",
		Segments: []SegmentSetting{
			{Name: "low", ChooserFlag: "is_low_income"},
			{Name: "high", ChooserFlag: "is_high_income"},
		},
	}
	require.NoError(t, settings.Validate())

	choosers := []Chooser{
		{ID: 1, HomeZone: 1, Fields: map[string]float64{"is_low_income": 1, "is_high_income": 0}},
		{ID: 2, HomeZone: 2, Fields: map[string]float64{"is_low_income": 0, "is_high_income": 1}},
		{ID: 3, HomeZone: 3, Fields: map[string]float64{"is_low_income": 0, "is_high_income": 0}},
	}

	choices, err := RunSegmented(context.Background(), testTable(t), settings, choosers, zones, sizes, testSkims(t), newTracer(t), Options{Seed: 5})
	require.NoError(t, err)
	require.Len(t, choices, 3)

	// zone 1 has zero attractions in both segments, so nobody lands there
	assert.NotEqual(t, 1, choices[0].Zone)
	assert.NotEqual(t, 1, choices[1].Zone)

	// chooser 3 is in no segment
	assert.Equal(t, NoChoice, choices[2].Zone)
	assert.Equal(t, int64(3), choices[2].ChooserID)
}

func TestRunSegmented_DuplicateChooserFails(t *testing.T) {
	zones, err := zone.ParseLandUseCSV(strings.NewReader(landUseCSV))
	require.NoError(t, err)
	sizes, err := zone.ParseSizeSpecCSV(strings.NewReader(sizeCSV))
	require.NoError(t, err)

	settings := &Settings{
		Spec:     "s.csv",
		Purpose:  "work",
		Segments: []SegmentSetting{{Name: "low", ChooserFlag: "is_low_income"}},
	}

	choosers := []Chooser{
		{ID: 1, HomeZone: 1, Fields: map[string]float64{"is_low_income": 1}},
		{ID: 1, HomeZone: 2, Fields: map[string]float64{"is_low_income": 1}},
	}
	_, err = RunSegmented(context.Background(), testTable(t), settings, choosers, zones, sizes, testSkims(t), newTracer(t), Options{})
	assert.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	valid := Settings{
		Spec:     "workplace_location.csv",
		Purpose:  "work",
		Segments: []SegmentSetting{{Name: "low", ChooserFlag: "is_low"}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing spec", func(s *Settings) { s.Spec = "" }},
		{"missing purpose", func(s *Settings) { s.Purpose = "" }},
		{"no segments", func(s *Settings) { s.Segments = nil }},
		{"segment without flag", func(s *Settings) { s.Segments = []SegmentSetting{{Name: "low"}} }},
		{"duplicate segment", func(s *Settings) {
			s.Segments = []SegmentSetting{{Name: "low", ChooserFlag: "a"}, {Name: "low", ChooserFlag: "b"}}
		}},
		{"negative sample size", func(s *Settings) { s.SampleSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}
