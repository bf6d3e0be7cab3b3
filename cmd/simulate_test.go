package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitlab/destchoice/internal/simulate"
)

func TestParseChoosersCSV(t *testing.T) {
	in := `chooser_id,home_zone,income_segment,is_low
101,1,3,1
102,2,1,0
`
	choosers, err := parseChoosersCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, choosers, 2)

	assert.Equal(t, int64(101), choosers[0].ID)
	assert.Equal(t, 1, choosers[0].HomeZone)
	assert.Equal(t, 3.0, choosers[0].Fields["income_segment"])
	assert.Equal(t, 0.0, choosers[1].Fields["is_low"])
}

func TestParseChoosersCSV_BadHeader(t *testing.T) {
	_, err := parseChoosersCSV(strings.NewReader("id,zone\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chooser_id,home_zone")
}

func TestParseChoosersCSV_BadValues(t *testing.T) {
	_, err := parseChoosersCSV(strings.NewReader("chooser_id,home_zone\nx,1\n"))
	require.Error(t, err)

	_, err = parseChoosersCSV(strings.NewReader("chooser_id,home_zone,f\n1,1,nope\n"))
	require.Error(t, err)
}

func TestWriteChoicesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choices.csv")
	choices := []simulate.Choice{
		{ChooserID: 101, Zone: 5},
		{ChooserID: 102, Zone: simulate.NoChoice},
	}
	require.NoError(t, writeChoicesCSV(path, choices))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"chooser_id", "zone"}, recs[0])
	assert.Equal(t, []string{"101", "5"}, recs[1])
	assert.Equal(t, []string{"102", "-1"}, recs[2])
}

func TestResolveAgainst(t *testing.T) {
	assert.Equal(t, "/abs/path.csv", resolveAgainst("configs", "/abs/path.csv"))
	assert.Equal(t, "", resolveAgainst("configs", ""))
	assert.Equal(t, filepath.Join("configs", "settings.yaml"), resolveAgainst("configs", "settings.yaml"))
}

func TestSimulateCommand_Execute(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.Mkdir("configs", 0o755))
	require.NoError(t, os.Mkdir("data", 0o755))

	writeFile := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	writeFile("configs/dest_choice.csv", `Description,Expression,low
distance,@skims['DISTANCE'],-1
log of size,@log1p(size_term),1
no attraction,@size_term == 0,-999
`)
	writeFile("configs/settings.yaml", `spec: dest_choice.csv
purpose: work
sample_size: 3
seed: 7
segments:
  - name: low
    chooser_flag: is_low
`)
	writeFile("configs/size_terms.csv", `purpose,segment,category,coefficient
work,low,emp,1
`)
	writeFile("data/land_use.csv", `zone,emp
1,10
2,50
3,20
`)

	var sb strings.Builder
	sb.WriteString("origin,destination,value\n")
	for _, row := range []string{
		"1,1,0", "1,2,1", "1,3,5",
		"2,1,1", "2,2,0", "2,3,4",
		"3,1,5", "3,2,4", "3,3,0",
	} {
		sb.WriteString(row + "\n")
	}
	writeFile("data/skims.csv", sb.String())

	writeFile("data/choosers.csv", `chooser_id,home_zone,is_low
101,1,1
102,2,1
103,3,0
`)

	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"simulate",
		"--skim", "DISTANCE=skims.csv",
		"--out", "choices.csv",
	})

	require.NoError(t, rootCmd.Execute())

	f, err := os.Open("choices.csv")
	require.NoError(t, err)
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)

	// Chooser 103 is outside the only segment.
	assert.Equal(t, []string{"103", "-1"}, recs[3])

	// Segment members get a real zone.
	assert.NotEqual(t, "-1", recs[1][1])
	assert.NotEqual(t, "-1", recs[2][1])
}
