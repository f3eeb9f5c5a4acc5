package domain

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawSnapshot is a parsed but unreconciled snapshot: its header with
// inferred kinds and its records padded to the header width.
type RawSnapshot struct {
	Columns []IncomingColumn
	Records [][]string
}

// ParseSnapshot reads a CSV body. Ragged records are padded with empty cells
// or truncated to the header width. Column kinds are inferred from the data;
// a column with no non-empty cell is KindUnknown.
func ParseSnapshot(data []byte) (RawSnapshot, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return RawSnapshot{}, ErrEmptySnapshot
	}
	if err != nil {
		return RawSnapshot{}, fmt.Errorf("%w: header: %v", ErrMalformedSnapshot, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		if blankRecord(rec) {
			continue
		}
		records = append(records, fitWidth(rec, len(header)))
	}

	kinds := inferKinds(header, records)
	cols := make([]IncomingColumn, len(header))
	for i, name := range header {
		cols[i] = IncomingColumn{Name: name, Kind: kinds[i]}
	}
	return RawSnapshot{Columns: cols, Records: records}, nil
}

// inferKinds runs gota's type detection over the records and marks columns
// without any value as unknown.
func inferKinds(header []string, records [][]string) []Kind {
	kinds := make([]Kind, len(header))
	if len(records) == 0 {
		return kinds
	}

	table := make([][]string, 0, len(records)+1)
	table = append(table, header)
	table = append(table, records...)
	df := dataframe.LoadRecords(table,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.DefaultType(series.String),
	)

	var types []series.Type
	if df.Err == nil {
		types = df.Types()
	}
	for i := range header {
		if !hasValue(records, i) {
			continue
		}
		kinds[i] = KindText
		if i < len(types) {
			kinds[i] = kindOfSeries(types[i])
		}
	}
	return kinds
}

func kindOfSeries(t series.Type) Kind {
	switch t {
	case series.Int:
		return KindInt
	case series.Float:
		return KindFloat
	default:
		return KindText
	}
}

func hasValue(records [][]string, col int) bool {
	for _, rec := range records {
		if strings.TrimSpace(rec[col]) != "" {
			return true
		}
	}
	return false
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fitWidth(rec []string, width int) []string {
	switch {
	case len(rec) == width:
		return rec
	case len(rec) > width:
		return rec[:width]
	default:
		out := make([]string, width)
		copy(out, rec)
		return out
	}
}
