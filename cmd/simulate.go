package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/transitlab/destchoice/internal/simulate"
	"github.com/transitlab/destchoice/internal/skim"
	"github.com/transitlab/destchoice/internal/store"
	"github.com/transitlab/destchoice/internal/trace"
	"github.com/transitlab/destchoice/internal/zone"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a segmented destination choice simulation",
	Long:  "Loads a model settings file, spec table, land use, size terms, choosers, and skims, then simulates one destination choice per chooser.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		settingsPath, _ := cmd.Flags().GetString("settings")
		choosersPath, _ := cmd.Flags().GetString("choosers")
		landusePath, _ := cmd.Flags().GetString("landuse")
		sizesPath, _ := cmd.Flags().GetString("sizes")
		skimArgs, _ := cmd.Flags().GetStringArray("skim")
		outPath, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")

		settings, err := simulate.LoadSettings(resolveConfigPath(settingsPath))
		if err != nil {
			return eris.Wrap(err, "simulate: load settings")
		}

		table, err := loadSpecTable(resolveConfigPath(settings.Spec), "")
		if err != nil {
			return eris.Wrap(err, "simulate: load spec")
		}

		choosers, err := loadChoosersCSV(resolveDataPath(choosersPath))
		if err != nil {
			return eris.Wrap(err, "simulate: load choosers")
		}

		zones, err := zone.LoadLandUseCSV(resolveDataPath(landusePath))
		if err != nil {
			return eris.Wrap(err, "simulate: load land use")
		}

		sizes, err := zone.LoadSizeSpecCSV(resolveConfigPath(sizesPath))
		if err != nil {
			return eris.Wrap(err, "simulate: load size terms")
		}

		skims, err := loadSkimSet(ctx, skimArgs)
		if err != nil {
			return err
		}

		var tr *trace.Tracer
		if cfg.Trace.Enabled {
			tr, err = trace.New(cfg.Trace.Dir)
			if err != nil {
				return eris.Wrap(err, "simulate: init tracer")
			}
		}

		opts := simulate.Options{
			SampleSize: settings.SampleSize,
			Seed:       settings.Seed,
			Workers:    cfg.Model.Workers,
			Constants:  settings.Constants,
		}
		if opts.SampleSize == 0 {
			opts.SampleSize = cfg.Model.SampleSize
		}
		if opts.Seed == 0 {
			opts.Seed = cfg.Model.Seed
		}

		choices, err := simulate.RunSegmented(ctx, table, settings, choosers, zones, sizes, skims, tr, opts)
		if err != nil {
			return eris.Wrap(err, "simulate")
		}

		zap.L().Info("simulation complete",
			zap.String("model", table.Name),
			zap.Int("choosers", len(choices)),
		)

		if save {
			if err := saveRun(ctx, table.Name, choices); err != nil {
				return err
			}
		}

		if outPath != "" {
			if err := writeChoicesCSV(outPath, choices); err != nil {
				return eris.Wrap(err, "simulate: write choices")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d choices to %s\n", len(choices), outPath)
		}
		return nil
	},
}

// resolveConfigPath resolves a path against the configs directory unless it
// is absolute or points at an existing file.
func resolveConfigPath(path string) string {
	return resolveAgainst(cfg.Model.ConfigsDir, path)
}

func resolveDataPath(path string) string {
	return resolveAgainst(cfg.Model.DataDir, path)
}

func resolveAgainst(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(dir, path)
}

// loadChoosersCSV reads a chooser table with header
// chooser_id,home_zone,<field...>.
func loadChoosersCSV(path string) ([]simulate.Chooser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open choosers file")
	}
	defer f.Close()
	return parseChoosersCSV(f)
}

func parseChoosersCSV(r io.Reader) ([]simulate.Chooser, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read chooser header")
	}
	if len(header) < 2 || header[0] != "chooser_id" || header[1] != "home_zone" {
		return nil, eris.New("chooser header must start with chooser_id,home_zone")
	}
	fieldNames := header[2:]

	var choosers []simulate.Chooser
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read chooser row")
		}

		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "chooser_id %q", rec[0])
		}
		home, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, eris.Wrapf(err, "home_zone for chooser %d", id)
		}

		fields := make(map[string]float64, len(fieldNames))
		for i, name := range fieldNames {
			v, err := strconv.ParseFloat(rec[i+2], 64)
			if err != nil {
				return nil, eris.Wrapf(err, "field %s for chooser %d", name, id)
			}
			fields[name] = v
		}
		choosers = append(choosers, simulate.Chooser{ID: id, HomeZone: home, Fields: fields})
	}
	return choosers, nil
}

// loadSkimSet assembles a skim set from repeated --skim flags. NAME=path
// reads a long-form CSV; a bare NAME loads the skim from the store.
func loadSkimSet(ctx context.Context, skimArgs []string) (*skim.Set, error) {
	set := skim.NewSet()
	var st store.Store

	for _, arg := range skimArgs {
		name, path, hasPath := strings.Cut(arg, "=")
		if name == "" {
			return nil, eris.Errorf("simulate: expected NAME or NAME=path, got %q", arg)
		}

		var (
			m   *skim.Matrix
			err error
		)
		if hasPath {
			m, err = skim.LoadCSV(resolveDataPath(path), name)
		} else {
			if st == nil {
				st, err = initStore(ctx)
				if err != nil {
					return nil, err
				}
				defer st.Close() //nolint:errcheck
				if err = st.Migrate(ctx); err != nil {
					return nil, err
				}
			}
			var cells []skim.Cell
			cells, err = st.LoadSkim(ctx, name)
			if err == nil {
				m, err = skim.FromCells(name, cells)
			}
		}
		if err != nil {
			return nil, eris.Wrapf(err, "simulate: load skim %s", name)
		}
		if err := set.Add(m); err != nil {
			return nil, eris.Wrap(err, "simulate: add skim")
		}
	}
	return set, nil
}

func saveRun(ctx context.Context, model string, choices []simulate.Choice) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.CreateRun(ctx, model)
	if err != nil {
		return err
	}

	rows := make([]store.ChoiceRow, len(choices))
	for i, c := range choices {
		rows[i] = store.ChoiceRow{ChooserID: c.ChooserID, Zone: c.Zone}
	}
	if err := st.SaveChoices(ctx, run.ID, rows); err != nil {
		if uerr := st.UpdateRunStatus(ctx, run.ID, store.StatusFailed); uerr != nil {
			zap.L().Warn("mark run failed", zap.String("run", run.ID), zap.Error(uerr))
		}
		return err
	}
	if err := st.UpdateRunStatus(ctx, run.ID, store.StatusCompleted); err != nil {
		return err
	}

	zap.L().Info("run saved", zap.String("run", run.ID), zap.Int("choices", len(rows)))
	return nil
}

func writeChoicesCSV(path string, choices []simulate.Choice) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"chooser_id", "zone"}); err != nil {
		return err
	}
	for _, c := range choices {
		rec := []string{strconv.FormatInt(c.ChooserID, 10), strconv.Itoa(c.Zone)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func init() {
	simulateCmd.Flags().String("settings", "settings.yaml", "model settings file (relative to configs dir)")
	simulateCmd.Flags().String("choosers", "choosers.csv", "chooser table CSV (relative to data dir)")
	simulateCmd.Flags().String("landuse", "land_use.csv", "zone land use CSV (relative to data dir)")
	simulateCmd.Flags().String("sizes", "size_terms.csv", "size term coefficients CSV (relative to configs dir)")
	simulateCmd.Flags().StringArray("skim", nil, "skim as NAME=path, or a bare NAME to load from the store (repeatable)")
	simulateCmd.Flags().String("out", "", "write choices to this CSV file")
	simulateCmd.Flags().Bool("save", false, "persist the run and choices to the store")

	rootCmd.AddCommand(simulateCmd)
}
