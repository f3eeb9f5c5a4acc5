// Package region aggregates the accumulated table into per-region time
// series, national totals and rankings.
package region

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
)

// NationalRegion names the series produced by National.
const NationalRegion = "US"

// rollingWindow is the number of points averaged by the rolling fields.
const rollingWindow = 7

// ErrMissingColumn is returned when the table lacks a column the aggregation
// needs.
var ErrMissingColumn = errors.New("table lacks column")

// Metric selects the value a ranking sorts on.
type Metric uint8

const (
	MetricConfirmed Metric = iota
	MetricDeaths
)

func (m Metric) String() string {
	if m == MetricDeaths {
		return "deaths"
	}
	return "confirmed"
}

// ParseMetric accepts "confirmed" or "deaths".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "confirmed", "":
		return MetricConfirmed, nil
	case "deaths":
		return MetricDeaths, nil
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// Point is one region's totals on one report date.
type Point struct {
	Date      time.Time
	Confirmed float64
	Deaths    float64
	// NewCases and NewDeaths are the change from the previous point. The
	// first point is 0 and downward corrections clamp to 0.
	NewCases  float64
	NewDeaths float64
	// AvgNewCases and AvgNewDeaths average the last seven points' changes.
	// They are set only from the seventh point on; HasAverage reports it.
	AvgNewCases  float64
	AvgNewDeaths float64
	HasAverage   bool
}

// Series is one region's points in ascending date order.
type Series struct {
	Region string
	Points []Point
}

// Standing is one region's position in a ranking.
type Standing struct {
	Region    string
	Confirmed float64
	Deaths    float64
	// FatalityRatio is Deaths/Confirmed in percent.
	FatalityRatio float64
}

// Aggregator reads the named columns of an accumulated table.
type Aggregator struct {
	GeoColumn       string
	ConfirmedColumn string
	DeathsColumn    string
}

// NewAggregator groups by geoColumn and sums Confirmed and Deaths.
func NewAggregator(geoColumn string) *Aggregator {
	return &Aggregator{GeoColumn: geoColumn, ConfirmedColumn: "Confirmed", DeathsColumn: "Deaths"}
}

type totals struct {
	confirmed, deaths float64
}

type key struct {
	region string
	date   time.Time
}

// sums totals Confirmed and Deaths per region and date. Rows with no
// confirmed cases or no region are ignored.
func (a *Aggregator) sums(table *domain.Table) (map[key]totals, error) {
	schema := table.Schema()
	geo, ok := schema.Index(a.GeoColumn)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrMissingColumn, a.GeoColumn)
	}
	confirmed, ok := schema.Index(a.ConfirmedColumn)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrMissingColumn, a.ConfirmedColumn)
	}
	deaths, hasDeaths := schema.Index(a.DeathsColumn)

	out := make(map[key]totals)
	for _, r := range table.Rows() {
		c := r.Values[confirmed].Float64()
		region := r.Values[geo].String()
		if c <= 0 || region == "" {
			continue
		}
		k := key{region: region, date: r.ReportDate}
		t := out[k]
		t.confirmed += c
		if hasDeaths {
			t.deaths += r.Values[deaths].Float64()
		}
		out[k] = t
	}
	return out, nil
}

// StateSeries returns one series per region, sorted by region name.
func (a *Aggregator) StateSeries(table *domain.Table) ([]Series, error) {
	sums, err := a.sums(table)
	if err != nil {
		return nil, err
	}
	byRegion := make(map[string][]Point)
	for k, t := range sums {
		byRegion[k.region] = append(byRegion[k.region], Point{Date: k.date, Confirmed: t.confirmed, Deaths: t.deaths})
	}

	out := make([]Series, 0, len(byRegion))
	for region, pts := range byRegion {
		out = append(out, Series{Region: region, Points: derive(pts)})
	}
	slices.SortFunc(out, func(a, b Series) int { return strings.Compare(a.Region, b.Region) })
	return out, nil
}

// National sums every region per date.
func (a *Aggregator) National(table *domain.Table) (Series, error) {
	sums, err := a.sums(table)
	if err != nil {
		return Series{}, err
	}
	byDate := make(map[time.Time]*Point)
	for k, t := range sums {
		p, ok := byDate[k.date]
		if !ok {
			p = &Point{Date: k.date}
			byDate[k.date] = p
		}
		p.Confirmed += t.confirmed
		p.Deaths += t.deaths
	}
	pts := make([]Point, 0, len(byDate))
	for _, p := range byDate {
		pts = append(pts, *p)
	}
	return Series{Region: NationalRegion, Points: derive(pts)}, nil
}

// Top ranks regions on the latest date that has data, highest first, and
// returns that date with at most n standings. Ties sort by region name.
func (a *Aggregator) Top(table *domain.Table, n int, metric Metric) (time.Time, []Standing, error) {
	sums, err := a.sums(table)
	if err != nil {
		return time.Time{}, nil, err
	}
	var latest time.Time
	for k := range sums {
		if k.date.After(latest) {
			latest = k.date
		}
	}

	var out []Standing
	for k, t := range sums {
		if !k.date.Equal(latest) {
			continue
		}
		s := Standing{Region: k.region, Confirmed: t.confirmed, Deaths: t.deaths}
		if t.confirmed > 0 {
			s.FatalityRatio = t.deaths / t.confirmed * 100
		}
		out = append(out, s)
	}
	value := func(s Standing) float64 {
		if metric == MetricDeaths {
			return s.Deaths
		}
		return s.Confirmed
	}
	slices.SortFunc(out, func(a, b Standing) int {
		switch va, vb := value(a), value(b); {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return strings.Compare(a.Region, b.Region)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return latest, out, nil
}

// derive sorts points by date and fills the daily-change and rolling fields.
func derive(pts []Point) []Point {
	slices.SortFunc(pts, func(a, b Point) int { return a.Date.Compare(b.Date) })
	for i := range pts {
		if i > 0 {
			pts[i].NewCases = max(0, pts[i].Confirmed-pts[i-1].Confirmed)
			pts[i].NewDeaths = max(0, pts[i].Deaths-pts[i-1].Deaths)
		}
		if i+1 < rollingWindow {
			continue
		}
		var cases, deaths float64
		for _, p := range pts[i+1-rollingWindow : i+1] {
			cases += p.NewCases
			deaths += p.NewDeaths
		}
		pts[i].AvgNewCases = cases / rollingWindow
		pts[i].AvgNewDeaths = deaths / rollingWindow
		pts[i].HasAverage = true
	}
	return pts
}
