// Package export writes rankings and district summaries as text tables,
// CSV and XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/riskgrid/internal/scoring"
)

// Header is the column header of every ranking export.
var Header = []string{"rank", "name", "gid", "location_name", "overall_score", "scored", "lon", "lat"}

var printer = message.NewPrinter(language.English)

func row(e scoring.RankedEntry) []string {
	lon, lat := "", ""
	if e.HasCentroid {
		lon = strconv.FormatFloat(e.Centroid.Lon(), 'f', 6, 64)
		lat = strconv.FormatFloat(e.Centroid.Lat(), 'f', 6, 64)
	}
	return []string{
		strconv.Itoa(e.Rank),
		e.Name,
		e.GID,
		e.LocationName,
		strconv.FormatFloat(e.OverallScore, 'f', 4, 64),
		strconv.FormatBool(e.Scored),
		lon,
		lat,
	}
}

// WriteTable writes the ranking as an aligned text table.
func WriteTable(w io.Writer, entries []scoring.RankedEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tGID\tSCORE\tCENTROID")
	for _, e := range entries {
		centroid := "-"
		if e.HasCentroid {
			centroid = fmt.Sprintf("%.4f, %.4f", e.Centroid.Lon(), e.Centroid.Lat())
		}
		score := "unscored"
		if e.Scored {
			score = fmt.Sprintf("%.1f%%", e.OverallScore*100)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Rank, e.Name, e.GID, score, centroid)
	}
	return eris.Wrap(tw.Flush(), "export: flush table")
}

// WriteSummary writes the district summary as labelled lines.
func WriteSummary(w io.Writer, s scoring.Summary) error {
	lines := []struct {
		label string
		value string
	}{
		{"Total features", printer.Sprintf("%d", s.TotalFeatures)},
		{"Scored cells", printer.Sprintf("%d", s.ScoredCells)},
		{"Avg lighting", s.Lighting.Display(2)},
		{"Avg LST (°C)", s.LST.Display(1)},
		{"Avg NO2", s.NO2.Display(6)},
		{"Avg UHI", s.UHI.Display(2)},
		{"High UHI cells (> 2)", printer.Sprintf("%d", s.HighUHI)},
		{"High NO2 cells (> 0.00012)", printer.Sprintf("%d", s.HighNO2)},
		{"Low lighting cells (< 5)", printer.Sprintf("%d", s.LowLighting)},
		{"District health", printer.Sprintf("%d/100", s.DistrictHealth)},
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "%s:\t%s\n", l.label, l.value)
	}
	return eris.Wrap(tw.Flush(), "export: flush summary")
}

// WriteCSV writes the ranking as CSV with a header row.
func WriteCSV(w io.Writer, entries []scoring.RankedEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, e := range entries {
		if err := cw.Write(row(e)); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", e.Rank)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX saves a workbook with a "Ranking" sheet and a "Summary" sheet.
func WriteXLSX(path string, entries []scoring.RankedEntry, s scoring.Summary) error {
	f := xlsx.NewFile()

	ranking, err := f.AddSheet("Ranking")
	if err != nil {
		return eris.Wrap(err, "export: add ranking sheet")
	}
	addRow(ranking, Header)
	for _, e := range entries {
		r := ranking.AddRow()
		r.AddCell().SetInt(e.Rank)
		r.AddCell().SetString(e.Name)
		r.AddCell().SetString(e.GID)
		r.AddCell().SetString(e.LocationName)
		r.AddCell().SetFloat(e.OverallScore)
		r.AddCell().SetBool(e.Scored)
		if e.HasCentroid {
			r.AddCell().SetFloat(e.Centroid.Lon())
			r.AddCell().SetFloat(e.Centroid.Lat())
		}
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addRow(summary, []string{"metric", "count", "mean"})
	for _, m := range []struct {
		name string
		s    scoring.MetricSummary
	}{
		{"lighting_r", s.Lighting},
		{"lst_celsiu", s.LST},
		{"no2", s.NO2},
		{"uhi_intens", s.UHI},
	} {
		r := summary.AddRow()
		r.AddCell().SetString(m.name)
		r.AddCell().SetInt(m.s.Count)
		if m.s.Count > 0 {
			r.AddCell().SetFloat(m.s.Mean)
		}
	}
	for _, kv := range []struct {
		name  string
		value int
	}{
		{"total_features", s.TotalFeatures},
		{"scored_cells", s.ScoredCells},
		{"high_uhi", s.HighUHI},
		{"high_no2", s.HighNO2},
		{"low_lighting", s.LowLighting},
		{"district_health", s.DistrictHealth},
	} {
		r := summary.AddRow()
		r.AddCell().SetString(kv.name)
		r.AddCell().SetInt(kv.value)
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}
