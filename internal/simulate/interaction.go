package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/transitlab/destchoice/internal/logit"
	"github.com/transitlab/destchoice/internal/skim"
	"github.com/transitlab/destchoice/internal/spec"
	"github.com/transitlab/destchoice/internal/trace"
)

// Options tunes an interaction run.
type Options struct {
	// SampleSize caps the alternatives evaluated per chooser; zero or a
	// value covering the universe evaluates all of them. Sampling is
	// without replacement.
	SampleSize int

	// Seed drives both alternative sampling and choice draws. Runs with the
	// same inputs and seed produce identical choices regardless of Workers.
	Seed int64

	// Workers bounds concurrent chooser evaluation; zero means GOMAXPROCS.
	Workers int

	// Constants are model constants visible to expressions after chooser
	// and alternative fields.
	Constants map[string]float64
}

// sampleSeedMix decorrelates per-chooser sampling streams from the run seed.
const sampleSeedMix uint64 = 0x9e3779b97f4a7c15

// chooserSeed derives the sampling seed for one chooser. The mix overflows
// int64, so the multiply happens in unsigned space.
func chooserSeed(runSeed, chooserID int64) int64 {
	return runSeed ^ int64(uint64(chooserID)*sampleSeedMix)
}

// Run scores every chooser against (a sample of) the alternatives using one
// segment of the spec table and returns one choice per chooser, in chooser
// order.
func Run(ctx context.Context, table *spec.Table, segment string, choosers []Chooser, alts []Alternative, skims *skim.Set, tr *trace.Tracer, opts Options) ([]Choice, error) {
	if len(alts) == 0 {
		return nil, eris.New("simulate: no alternatives")
	}

	label := table.Name
	if segment != "" {
		label += "." + segment
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	zap.L().Info("simulate: interaction run",
		zap.String("label", label),
		zap.Int("choosers", len(choosers)),
		zap.Int("alternatives", len(alts)),
		zap.Int("sample_size", opts.SampleSize),
		zap.Int("workers", workers),
	)

	// Phase 1: sample and score in parallel. Each chooser gets its own
	// sampling stream derived from the run seed so results do not depend on
	// scheduling.
	utils := make([][]float64, len(choosers))
	sampled := make([][]int, len(choosers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range choosers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chooser := &choosers[i]
			rng := rand.New(rand.NewSource(chooserSeed(opts.Seed, chooser.ID)))

			idx := sampleIndexes(rng, len(alts), opts.SampleSize)
			row := make([]float64, len(idx))
			zones := make([]int, len(idx))
			for j, ai := range idx {
				alt := &alts[ai]
				pctx := pairContext{
					chooser:   chooser,
					alt:       alt,
					constants: opts.Constants,
					pair:      skims.Pair(chooser.HomeZone, alt.Zone),
				}
				u, err := table.Utility(segment, pctx)
				if err != nil {
					return eris.Wrapf(err, "simulate: chooser %d zone %d", chooser.ID, alt.Zone)
				}
				row[j] = u
				zones[j] = alt.Zone
			}
			utils[i] = row
			sampled[i] = zones
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Phase 2: probabilities and draws, sequential in chooser order.
	ids := make([]string, len(choosers))
	for i, c := range choosers {
		ids[i] = fmt.Sprintf("%d", c.ID)
	}

	probs, err := logit.UtilsToProbs(utils, ids, tr, label)
	if err != nil {
		return nil, err
	}

	drawRNG := rand.New(rand.NewSource(opts.Seed))
	picked, err := logit.MakeChoices(probs, ids, drawRNG, tr, label)
	if err != nil {
		return nil, err
	}

	choices := make([]Choice, len(choosers))
	for i := range choosers {
		choices[i] = Choice{ChooserID: choosers[i].ID, Zone: sampled[i][picked[i]]}
	}
	return choices, nil
}

// sampleIndexes returns alternative indexes for one chooser: all of them in
// order when no sampling applies, otherwise a without-replacement sample.
func sampleIndexes(rng *rand.Rand, n, sampleSize int) []int {
	if sampleSize <= 0 || sampleSize >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return rng.Perm(n)[:sampleSize]
}
