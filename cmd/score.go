package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/dashboard"
	"github.com/sells-group/riskgrid/internal/export"
	"github.com/sells-group/riskgrid/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score and rank the grid cells of a district",
	Long: `Load a district's grid cells and police stations, score every cell
against the weight profile, and print the summary and the top-N ranking.

Cells are read from PostGIS (source.database_url) unless --data-dir points
at a directory of <district>.json, <district>.geojson or <district>.shp files.

Examples:
  # Score a district from PostGIS with the configured weights
  score --district "Central Delhi"

  # Custom weights, top 20 as CSV
  score --district "Central Delhi" --weights night.yaml --top 20 --format csv

  # Score from files and write an XLSX workbook
  score --district "New Delhi" --data-dir ./data --format xlsx --output ranking.xlsx

  # Write scores back next to the grid and record the run
  score --district "Central Delhi" --save --record`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("district", "", "district (administrative boundary) name")
	f.String("data-dir", "", "read grids from files in this directory instead of PostGIS")
	f.String("weights", "", "YAML weight profile (overrides config)")
	f.Int("top", 0, "number of ranked cells (0=use config default)")
	f.String("format", "table", "output format: table, csv or xlsx")
	f.String("output", "", "output file path (default: stdout, required for xlsx)")
	f.Bool("save", false, "write all cell scores to source.score_table")
	f.Bool("record", false, "record the run in the run store")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zap.L().With(zap.String("command", "score"))

	f := cmd.Flags()
	district, _ := f.GetString("district")
	dataDir, _ := f.GetString("data-dir")
	weightsPath, _ := f.GetString("weights")
	topN, _ := f.GetInt("top")
	format, _ := f.GetString("format")
	output, _ := f.GetString("output")
	save, _ := f.GetBool("save")
	record, _ := f.GetBool("record")

	if district == "" {
		return eris.New("score: --district is required")
	}
	if err := checkOutput(format, output); err != nil {
		return err
	}
	if save && dataDir != "" {
		return eris.New("score: --save writes to PostGIS and cannot be combined with --data-dir")
	}

	weights := defaultWeights()
	if weightsPath != "" {
		raw, err := config.LoadWeightsFile(weightsPath)
		if err != nil {
			return err
		}
		weights = scoring.ParseWeights(raw)
	}
	if topN <= 0 {
		topN = cfg.Scoring.TopN
	}

	env, err := initEnv(ctx, dataDir)
	if err != nil {
		return err
	}
	defer env.Close()

	opts := dashboard.Options{
		Weights: weights,
		TopN:    topN,
		Names:   env.Names,
		Source:  env.Source,
	}
	if record {
		opts.Recorder = env.Store
	}
	session := dashboard.NewSession(env.Loader, opts)

	snap, err := session.Load(ctx, district)
	if err != nil {
		return eris.Wrap(err, "score")
	}
	log.Info("district scored",
		zap.String("district", snap.District),
		zap.Int("cells", snap.Cells),
		zap.Int("pois", snap.POIs),
		zap.Int("scored", snap.Summary.ScoredCells),
	)

	if save {
		n, err := env.Postgres.SaveScores(ctx, cfg.Source.ScoreTable, snap.District, session.Scores())
		if err != nil {
			return eris.Wrap(err, "score: save")
		}
		log.Info("scores saved", zap.String("table", cfg.Source.ScoreTable), zap.Int64("rows", n))
	}

	return writeRanking(os.Stdout, format, output, snap)
}

// checkOutput validates the --format and --output combination.
func checkOutput(format, output string) error {
	switch format {
	case "table", "csv":
		return nil
	case "xlsx":
		if output == "" {
			return eris.New("score: --output is required for xlsx")
		}
		return nil
	default:
		return eris.Errorf("score: unknown format %q (table, csv, xlsx)", format)
	}
}

// writeRanking writes snap in format to output, or to stdout when output
// is empty.
func writeRanking(stdout io.Writer, format, output string, snap dashboard.Snapshot) error {
	if format == "xlsx" {
		if err := export.WriteXLSX(output, snap.Top, snap.Summary); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stderr, "Wrote %d ranked cells to %s\n", len(snap.Top), output)
		return nil
	}

	w := stdout
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return eris.Wrapf(err, "score: create %s", output)
		}
		defer file.Close() //nolint:errcheck
		w = file
	}

	if format == "csv" {
		return export.WriteCSV(w, snap.Top)
	}

	_, _ = fmt.Fprintf(w, "District: %s (%s)\n\n", snap.District, snap.Source)
	if err := export.WriteSummary(w, snap.Summary); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	return export.WriteTable(w, snap.Top)
}
