package domain

import (
	"fmt"
	"slices"
)

// Kind is the value type of a column.
type Kind uint8

const (
	// KindUnknown is a column that has only ever held empty values.
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindText
	KindTime
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindInt:     "int",
	KindFloat:   "float",
	KindText:    "text",
	KindTime:    "time",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown column kind %q", s)
}

// Numeric reports whether missing values of this kind default to zero.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// unify returns the kind a canonical column takes after observing an
// incoming column of kind other. Unknown adopts whatever arrives, int widens
// to float, and otherwise the first determined kind is kept.
func (k Kind) unify(other Kind) Kind {
	switch {
	case k == KindUnknown:
		return other
	case other == KindUnknown || k == other:
		return k
	case k == KindInt && other == KindFloat:
		return KindFloat
	default:
		return k
	}
}

// Column is one named, typed column of the canonical schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is an ordered set of uniquely named columns. A Schema value is
// immutable; Reconcile returns a new one when columns are added.
type Schema struct {
	cols  []Column
	index map[string]int
}

// NewSchema builds a schema from columns. Later duplicates of a name are
// ignored.
func NewSchema(cols ...Column) Schema {
	s := Schema{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if _, dup := s.index[c.Name]; dup {
			continue
		}
		s.index[c.Name] = len(s.cols)
		s.cols = append(s.cols, c)
	}
	return s
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.cols) }

// Column returns the i-th column.
func (s Schema) Column(i int) Column { return s.cols[i] }

// Columns returns a copy of the columns in order.
func (s Schema) Columns() []Column { return slices.Clone(s.cols) }

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Has reports whether the schema contains the named column.
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Equal reports whether both schemas list the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s.cols, other.cols)
}

// Covers reports whether every column of old is present in s. This is the
// monotonic growth check applied on every merge.
func (s Schema) Covers(old Schema) bool {
	for _, c := range old.cols {
		if !s.Has(c.Name) {
			return false
		}
	}
	return true
}
