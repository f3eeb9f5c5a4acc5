package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is one typed cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Time  time.Time
}

// DefaultValue returns the missing-value default for a kind: 0 for numbers,
// "" for text and unknown columns, the zero time for timestamps.
func DefaultValue(k Kind) Value {
	return Value{Kind: k}
}

// IsDefault reports whether v holds its kind's missing-value default.
func (v Value) IsDefault() bool {
	switch v.Kind {
	case KindInt:
		return v.Int == 0
	case KindFloat:
		return v.Float == 0
	case KindTime:
		return v.Time.IsZero()
	default:
		return v.Text == ""
	}
}

// Float64 returns the numeric value of v, or 0 for non-numeric kinds.
func (v Value) Float64() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindFloat:
		return v.Float
	default:
		return 0
	}
}

// String renders v the way it is stored in checkpoint tables.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindTime:
		if v.Time.IsZero() {
			return ""
		}
		return v.Time.Format(time.RFC3339)
	default:
		return v.Text
	}
}

// Any returns v as a plain Go value for JSON encoding and SQL parameters.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindTime:
		if v.Time.IsZero() {
			return nil
		}
		return v.Time
	default:
		return v.Text
	}
}

// convert re-expresses v under kind k. Unknown-kind cells always hold the
// default, so they convert to k's default.
func (v Value) convert(k Kind) Value {
	if v.Kind == k {
		return v
	}
	switch {
	case v.Kind == KindUnknown:
		return DefaultValue(k)
	case v.Kind == KindInt && k == KindFloat:
		return Value{Kind: KindFloat, Float: float64(v.Int)}
	case k == KindText:
		return Value{Kind: KindText, Text: v.String()}
	default:
		return DefaultValue(k)
	}
}

// ParseValue parses a raw cell under kind k. Empty or whitespace-only cells
// yield the default without error.
func ParseValue(raw string, k Kind) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultValue(k), nil
	}
	switch k {
	case KindInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Value{Kind: KindInt, Int: n}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return DefaultValue(k), fmt.Errorf("parse int %q", s)
		}
		return Value{Kind: KindInt, Int: int64(f)}, nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return DefaultValue(k), fmt.Errorf("parse float %q", s)
		}
		return Value{Kind: KindFloat, Float: f}, nil
	case KindTime:
		t, err := ParseTimestamp(s)
		if err != nil {
			return DefaultValue(k), err
		}
		return Value{Kind: KindTime, Time: t}, nil
	default:
		return Value{Kind: k, Text: s}, nil
	}
}

// Row is one reconciled data row. Values are aligned with the table schema.
type Row struct {
	ReportDate time.Time
	Values     []Value
}

// Get returns the value of the named column.
func (r Row) Get(s Schema, name string) (Value, bool) {
	i, ok := s.Index(name)
	if !ok || i >= len(r.Values) {
		return Value{}, false
	}
	return r.Values[i], true
}

// Record returns the row as a name-keyed map including report_date.
func (r Row) Record(s Schema) map[string]any {
	out := make(map[string]any, len(r.Values)+1)
	for i, v := range r.Values {
		out[s.Column(i).Name] = v.Any()
	}
	out[ReportDateColumn] = r.ReportDate.Format(ISODateLayout)
	return out
}

// ReportDateColumn is the name of the mandatory per-row source date field.
const ReportDateColumn = "report_date"
