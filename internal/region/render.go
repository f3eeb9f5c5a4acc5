package region

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/jszwec/csvutil"
)

// RenderTop writes standings as a table.
func RenderTop(w io.Writer, date time.Time, metric Metric, standings []Standing) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Top regions by %s on %s", metric, domain.FormatDate(date)))
	t.AppendHeader(table.Row{"#", "Region", "Confirmed", "Deaths", "CFR %"})
	for i, s := range standings {
		t.AppendRow(table.Row{i + 1, s.Region, int64(s.Confirmed), int64(s.Deaths), fmt.Sprintf("%.2f", s.FatalityRatio)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

type seriesRecord struct {
	Region       string   `csv:"region"`
	Date         string   `csv:"report_date"`
	Confirmed    float64  `csv:"confirmed"`
	Deaths       float64  `csv:"deaths"`
	NewCases     float64  `csv:"new_cases"`
	NewDeaths    float64  `csv:"new_deaths"`
	AvgNewCases  *float64 `csv:"new_cases_7d_avg"`
	AvgNewDeaths *float64 `csv:"new_deaths_7d_avg"`
}

// WriteSeriesCSV writes every point of every series, one row per region and
// date.
func WriteSeriesCSV(w io.Writer, series []Series) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(seriesRecord{}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range series {
		for _, p := range s.Points {
			rec := seriesRecord{
				Region:       s.Region,
				Date:         p.Date.Format(domain.ISODateLayout),
				Confirmed:    p.Confirmed,
				Deaths:       p.Deaths,
				NewCases:     p.NewCases,
				NewDeaths:    p.NewDeaths,
			}
			if p.HasAverage {
				rec.AvgNewCases, rec.AvgNewDeaths = &p.AvgNewCases, &p.AvgNewDeaths
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
