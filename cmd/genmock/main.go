// Command genmock writes synthetic daily report files whose headers drift
// the way the real publisher's did, with occasional unpublished days. The
// generated files are merged with the real domain package so the printed
// stats match what an ingestion of the directory will produce.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -start 03-20-2020 -days 120
//	go run ./cmd/genmock -out data/mock -serve :9000
//
// With -serve the directory is served over HTTP after generation; point
// SOURCE_BASE_URL at http://localhost:9000 to ingest it.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

var states = []string{
	"Alabama", "Alaska", "Arizona", "California", "Colorado", "Florida",
	"Georgia", "Illinois", "Louisiana", "Massachusetts", "Michigan",
	"New Jersey", "New York", "Ohio", "Pennsylvania", "Texas", "Washington",
}

// era is one header generation of the publisher's format.
type era struct {
	header    []string
	timestamp string
	// from is the index of the first day using this header.
	from int
}

var eras = []era{
	{
		header:    []string{"Province/State", "Country/Region", "Last Update", "Confirmed", "Deaths", "Recovered"},
		timestamp: "1/2/2006 15:04",
		from:      0,
	},
	{
		header:    []string{"Province_State", "Country_Region", "Last_Update", "Lat", "Long_", "Confirmed", "Deaths", "Recovered", "Active", "FIPS"},
		timestamp: "2006-01-02 15:04:05",
		from:      20,
	},
	{
		header:    []string{"Province_State", "Country_Region", "Last_Update", "Lat", "Long_", "Confirmed", "Deaths", "Recovered", "Active", "FIPS", "Incident_Rate", "Total_Test_Results", "Case_Fatality_Ratio"},
		timestamp: "2006-01-02 15:04:05",
		from:      50,
	},
}

// cumulative holds one state's running totals.
type cumulative struct {
	confirmed, deaths, recovered, tests int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write MM-DD-YYYY.csv files into")
	startFlag := flag.String("start", "04-12-2020", "first report date, MM-DD-YYYY")
	days := flag.Int("days", 90, "number of days to generate")
	gapEvery := flag.Int("gap-every", 17, "leave every Nth day unpublished, 0 for none")
	seed := flag.Int64("seed", 1, "random seed")
	serve := flag.String("serve", "", "serve the output directory on this address after generating")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return errors.New("missing required flag: -out")
	}
	start, err := domain.ParseDate(*startFlag)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	// Reports are stamped shortly after midnight of the following day.
	clock := clockwork.NewFakeClockAt(start.Add(24*time.Hour + 4*time.Hour + 30*time.Minute))
	rng := rand.New(rand.NewSource(*seed))
	totals := make(map[string]*cumulative, len(states))
	for _, s := range states {
		totals[s] = &cumulative{confirmed: rng.Intn(50)}
	}

	table := domain.NewTable()
	written, gaps := 0, 0
	for i := 0; i < *days; i++ {
		date := start.AddDate(0, 0, i)
		stamp := clock.Now()
		clock.Advance(24 * time.Hour)
		advance(rng, totals)

		if *gapEvery > 0 && i > 0 && i%*gapEvery == 0 {
			gaps++
			continue
		}

		e := eraFor(i)
		path := filepath.Join(*out, domain.FormatDate(date)+".csv")
		if err := writeDay(path, e, stamp, totals); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written++

		if err := mergeFile(table, path, date); err != nil {
			return fmt.Errorf("merge %s: %w", path, err)
		}
	}

	log.Printf("wrote %d files to %s (%d unpublished days)", written, *out, gaps)
	printStats(table)

	if *serve == "" {
		return nil
	}
	log.Printf("serving %s on %s", *out, *serve)
	srv := &http.Server{
		Addr:              *serve,
		Handler:           http.FileServer(http.Dir(*out)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func eraFor(day int) era {
	e := eras[0]
	for _, candidate := range eras {
		if day >= candidate.from {
			e = candidate
		}
	}
	return e
}

func advance(rng *rand.Rand, totals map[string]*cumulative) {
	for _, c := range totals {
		newCases := rng.Intn(c.confirmed/10 + 20)
		c.confirmed += newCases
		c.deaths += newCases / (20 + rng.Intn(30))
		c.recovered += rng.Intn(newCases/2 + 1)
		c.tests += newCases*8 + rng.Intn(500)
	}
}

func writeDay(path string, e era, stamp time.Time, totals map[string]*cumulative) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(e.header); err != nil {
		_ = f.Close()
		return err
	}
	for i, s := range states {
		c := totals[s]
		rec := make([]string, 0, len(e.header))
		for _, col := range e.header {
			rec = append(rec, cell(col, s, i, c, stamp, e.timestamp))
		}
		if err := w.Write(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cell(col, state string, i int, c *cumulative, stamp time.Time, layout string) string {
	switch col {
	case "Province/State", "Province_State":
		return state
	case "Country/Region", "Country_Region":
		return "US"
	case "Last Update", "Last_Update":
		return stamp.Format(layout)
	case "Lat":
		return strconv.FormatFloat(30+float64(i)*0.9, 'f', 4, 64)
	case "Long_":
		return strconv.FormatFloat(-120+float64(i)*2.1, 'f', 4, 64)
	case "Confirmed":
		return strconv.Itoa(c.confirmed)
	case "Deaths":
		return strconv.Itoa(c.deaths)
	case "Recovered":
		// Early files leave recoveries blank for most states.
		if c.recovered == 0 {
			return ""
		}
		return strconv.Itoa(c.recovered)
	case "Active":
		return strconv.Itoa(c.confirmed - c.deaths - c.recovered)
	case "FIPS":
		return strconv.Itoa(i + 1)
	case "Incident_Rate":
		return strconv.FormatFloat(float64(c.confirmed)/100, 'f', 3, 64)
	case "Total_Test_Results":
		return strconv.Itoa(c.tests)
	case "Case_Fatality_Ratio":
		if c.confirmed == 0 {
			return ""
		}
		return strconv.FormatFloat(float64(c.deaths)*100/float64(c.confirmed), 'f', 4, 64)
	}
	return ""
}

func mergeFile(table *domain.Table, path string, date time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := domain.ParseSnapshot(data)
	if err != nil {
		return err
	}
	rec := domain.Reconcile(table.Schema(), raw.Columns, domain.DefaultRules())
	rows, issues := domain.Normalize(raw, rec, date)
	if len(issues) > 0 {
		return fmt.Errorf("%d unparseable cells, first: %v", len(issues), issues[0])
	}
	_, err = table.Merge(date, rec.Schema, rows)
	return err
}

func printStats(table *domain.Table) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Rows: %d\n", table.Len())
	fmt.Printf("Merged dates: %d\n", len(table.MergedDates()))
	fmt.Printf("Canonical columns (%d):\n", table.Schema().Len())
	for _, c := range table.Schema().Columns() {
		fmt.Printf("  %-22s %s\n", c.Name, c.Kind)
	}
}
