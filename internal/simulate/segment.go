package simulate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/transitlab/destchoice/internal/skim"
	"github.com/transitlab/destchoice/internal/spec"
	"github.com/transitlab/destchoice/internal/trace"
	"github.com/transitlab/destchoice/internal/zone"
)

// RunSegmented runs destination choice segment by segment: choosers carrying
// the segment flag are scored against the zones with positive size for that
// segment, using the segment's coefficient column. Choosers outside every
// segment come back as NoChoice.
func RunSegmented(ctx context.Context, table *spec.Table, settings *Settings, choosers []Chooser, zones *zone.Table, sizes *zone.SizeSpec, skims *skim.Set, tr *trace.Tracer, opts Options) ([]Choice, error) {
	byID := make(map[int64]int, len(choosers))
	choices := make([]Choice, len(choosers))
	for i, c := range choosers {
		if _, dup := byID[c.ID]; dup {
			return nil, eris.Errorf("simulate: duplicate chooser %d", c.ID)
		}
		byID[c.ID] = i
		choices[i] = Choice{ChooserID: c.ID, Zone: NoChoice}
	}

	for _, seg := range settings.Segments {
		segChoosers := filterChoosers(choosers, seg.ChooserFlag)

		alts, err := segmentAlternatives(zones, sizes, settings.Purpose, seg.Name)
		if err != nil {
			return nil, err
		}

		zap.L().Info("simulate: segment",
			zap.String("segment", seg.Name),
			zap.Int("choosers", len(segChoosers)),
			zap.Int("alternatives", len(alts)),
		)

		if len(segChoosers) == 0 {
			continue
		}
		if len(alts) == 0 {
			return nil, eris.Errorf("simulate: segment %s has no zones with attractions", seg.Name)
		}

		segChoices, err := Run(ctx, table, seg.Name, segChoosers, alts, skims, tr, opts)
		if err != nil {
			return nil, eris.Wrapf(err, "simulate: segment %s", seg.Name)
		}
		for _, c := range segChoices {
			choices[byID[c.ChooserID]] = c
		}
	}

	summary := make([]float64, len(choices))
	for i, c := range choices {
		summary[i] = float64(c.Zone)
	}
	trace.PrintSummary(table.Name+".chosen_zone", summary)

	return choices, nil
}

func filterChoosers(choosers []Chooser, flag string) []Chooser {
	var out []Chooser
	for _, c := range choosers {
		if c.Fields[flag] > 0 {
			out = append(out, c)
		}
	}
	return out
}

// segmentAlternatives builds one Alternative per zone with positive size for
// the segment. Zone land-use attributes are exposed to expressions directly;
// the computed mass is exposed as size_term.
func segmentAlternatives(zones *zone.Table, sizes *zone.SizeSpec, purpose, segment string) ([]Alternative, error) {
	terms, err := sizes.Terms(zones, purpose, segment)
	if err != nil {
		return nil, err
	}

	var alts []Alternative
	for _, id := range zones.IDs() {
		if terms[id] <= 0 {
			continue
		}
		z, _ := zones.Get(id)
		fields := make(map[string]float64, len(z.LandUse)+1)
		for k, v := range z.LandUse {
			fields[k] = v
		}
		fields["size_term"] = terms[id]
		alts = append(alts, Alternative{Zone: id, Fields: fields})
	}
	return alts, nil
}
