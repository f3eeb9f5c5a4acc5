// Package domain models daily COVID-19 case reports and the rules for
// merging them into one longitudinal table.
//
// # Data Source
//
// Daily reports are published by the JHU CSSE COVID-19 repository, one CSV
// per calendar day, under csse_covid_19_data/csse_covid_19_daily_reports_us.
// Files are named by the report date in MM-DD-YYYY form, e.g. 04-12-2020.csv.
// Days with no publication return HTTP 404; these are real gaps (early
// pandemic weekends, holidays), not failures.
//
// # Schema Drift
//
// The publisher renamed columns several times over the life of the dataset:
//
//	Province/State    →  Province_State
//	Country/Region    →  Country_Region
//	Last Update       →  Last_Update
//	Incident_Rate     ↔  Incidence_Rate
//	Case-Fatality_Ratio → Case_Fatality_Ratio
//
// and added columns (Recovered, Active, People_Tested, Testing_Rate, ...)
// without notice. [Reconcile] maps each day's header onto a canonical
// schema that only ever grows: first through a fixed alias table, then by
// fuzzy name similarity against canonical columns not yet claimed by the
// day, and finally by inserting genuinely new columns at their incoming
// position.
//
// # Value Conventions
//
// Every canonical column has a [Kind]. Missing values become the kind's
// default: 0 for integer and float columns, "" for text, the zero time for
// timestamps. Rows are never dropped during normalization; filtering
// (e.g. Confirmed > 0) is left to aggregation.
//
// Timestamps in the "last updated" column appear in at least five layouts
// across the dataset ("1/22/2020 17:00", "2020-03-10T19:13:15",
// "2020-04-12 23:18:15", ...). They are parsed into UTC; unparsable values
// are reported as normalization issues and left at the default.
//
// # Report Date
//
// Each row carries the date of the file it came from as its report_date.
// This is the join key for aggregation and is independent of whatever the
// publisher wrote into Last_Update.
package domain
