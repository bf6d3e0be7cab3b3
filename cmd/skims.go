package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/transitlab/destchoice/internal/skim"
	"github.com/transitlab/destchoice/internal/zone"
)

var skimsCmd = &cobra.Command{
	Use:   "skims",
	Short: "Build, fetch, and load skim matrices",
}

var skimsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a distance skim from zone centroids",
	Long:  "Computes a haversine distance matrix from zone centroids read from a shapefile or a points CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		shpPath, _ := cmd.Flags().GetString("shapefile")
		pointsPath, _ := cmd.Flags().GetString("points")
		idField, _ := cmd.Flags().GetString("id-field")
		outPath, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")

		var (
			points []skim.Point
			err    error
		)
		switch {
		case shpPath != "":
			if idField == "" {
				idField = cfg.Skims.ZoneIDField
			}
			points, err = zone.LoadCentroids(resolveDataPath(shpPath), idField)
		case pointsPath != "":
			points, err = loadPointsCSV(resolveDataPath(pointsPath))
		default:
			return eris.New("skims build: one of --shapefile or --points is required")
		}
		if err != nil {
			return eris.Wrap(err, "skims build: load centroids")
		}

		m, err := skim.DistanceMatrix(name, points)
		if err != nil {
			return eris.Wrap(err, "skims build")
		}

		zap.L().Info("skim built",
			zap.String("name", name),
			zap.Int("zones", len(m.Zones())),
		)

		if outPath != "" {
			if err := writeCellsCSV(outPath, m.Cells()); err != nil {
				return eris.Wrap(err, "skims build: write")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s skim for %d zones to %s\n", name, len(m.Zones()), outPath)
		}

		if save {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.SaveSkim(ctx, name, m.Cells()); err != nil {
				return eris.Wrap(err, "skims build: save")
			}
		}
		return nil
	},
}

var skimsFetchCmd = &cobra.Command{
	Use:   "fetch <ftp-url>",
	Short: "Download a skim file from an FTP server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			return eris.New("skims fetch: --out is required")
		}

		timeout := time.Duration(cfg.Skims.FTPTimeout) * time.Second
		fetcher := skim.NewFetcher(timeout)

		n, err := fetcher.FetchToFile(cmd.Context(), args[0], outPath)
		if err != nil {
			return eris.Wrap(err, "skims fetch")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "fetched %d bytes to %s\n", n, outPath)
		return nil
	},
}

var skimsLoadCmd = &cobra.Command{
	Use:   "load <csv-file>",
	Short: "Load a long-form skim CSV into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")

		m, err := skim.LoadCSV(resolveDataPath(args[0]), name)
		if err != nil {
			return eris.Wrap(err, "skims load")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		if err := st.SaveSkim(ctx, name, m.Cells()); err != nil {
			return eris.Wrap(err, "skims load: save")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "loaded %s skim for %d zones\n", name, len(m.Zones()))
		return nil
	},
}

// loadPointsCSV reads zone centroids with header zone,lon,lat.
func loadPointsCSV(path string) ([]skim.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open points file")
	}
	defer f.Close()
	return parsePointsCSV(f)
}

func parsePointsCSV(r io.Reader) ([]skim.Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read points header")
	}
	if len(header) != 3 || header[0] != "zone" || header[1] != "lon" || header[2] != "lat" {
		return nil, eris.New("points header must be zone,lon,lat")
	}

	var points []skim.Point
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read points row")
		}

		z, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, eris.Wrapf(err, "zone %q", rec[0])
		}
		lon, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "lon for zone %d", z)
		}
		lat, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "lat for zone %d", z)
		}
		points = append(points, skim.Point{Zone: z, Lon: lon, Lat: lat})
	}
	return points, nil
}

func writeCellsCSV(path string, cells []skim.Cell) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"origin", "destination", "value"}); err != nil {
		return err
	}
	for _, c := range cells {
		rec := []string{
			strconv.Itoa(c.Origin),
			strconv.Itoa(c.Destination),
			strconv.FormatFloat(c.Value, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func init() {
	skimsBuildCmd.Flags().String("name", "DISTANCE", "skim matrix name")
	skimsBuildCmd.Flags().String("shapefile", "", "zone polygon shapefile")
	skimsBuildCmd.Flags().String("points", "", "zone centroid CSV (zone,lon,lat)")
	skimsBuildCmd.Flags().String("id-field", "", "DBF attribute holding the zone ID")
	skimsBuildCmd.Flags().String("out", "", "write the skim to this CSV file")
	skimsBuildCmd.Flags().Bool("save", false, "persist the skim to the store")

	skimsFetchCmd.Flags().String("out", "", "destination file path")

	skimsLoadCmd.Flags().String("name", "DISTANCE", "skim matrix name")

	skimsCmd.AddCommand(skimsBuildCmd)
	skimsCmd.AddCommand(skimsFetchCmd)
	skimsCmd.AddCommand(skimsLoadCmd)
	rootCmd.AddCommand(skimsCmd)
}
