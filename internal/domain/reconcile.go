package domain

import (
	"maps"
	"slices"
	"strings"
)

// DefaultThreshold is the minimum similarity score (0–100) at which an
// incoming column is treated as a rename of a canonical column.
const DefaultThreshold = 54

// DefaultAliases returns the built-in table of historical column spellings.
func DefaultAliases() map[string]string {
	return map[string]string{
		"Case-Fatality_Ratio": "Case_Fatality_Ratio",
		"Incident_Rate":       "Incidence_Rate",
		"Last Update":         "Last_Update",
		"Province/State":      "Province_State",
		"Country/Region":      "Country_Region",
		"Long_":               "Long",
		"Latitude":            "Lat",
		"Longitude":           "Long",
	}
}

// DefaultTimeColumns lists the canonical columns parsed as timestamps.
func DefaultTimeColumns() []string { return []string{"Last_Update"} }

// Rules configures reconciliation.
type Rules struct {
	// Aliases maps a published spelling to its canonical name. Applied before
	// any matching so known renames never depend on similarity.
	Aliases map[string]string
	// Threshold is the inclusive minimum score for a fuzzy rename.
	Threshold float64
	// Scorer defaults to RatcliffObershelp.
	Scorer Scorer
	// TimeColumns are canonical names whose values are timestamps regardless
	// of what type inference reports.
	TimeColumns []string
}

// DefaultRules returns the aliases, threshold and time columns observed to
// cover the publisher's historical renames.
func DefaultRules() Rules {
	return Rules{
		Aliases:     DefaultAliases(),
		Threshold:   DefaultThreshold,
		Scorer:      RatcliffObershelp{},
		TimeColumns: DefaultTimeColumns(),
	}
}

// IncomingColumn is one column of a snapshot header with its inferred kind.
type IncomingColumn struct {
	Name string
	Kind Kind
}

// MatchMethod records how an incoming column found its canonical column.
type MatchMethod uint8

const (
	MatchExact MatchMethod = iota + 1
	MatchAlias
	MatchFuzzy
	MatchNew
	// MatchDropped marks a repeated column within one snapshot. Its values
	// are discarded.
	MatchDropped
)

func (m MatchMethod) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchAlias:
		return "alias"
	case MatchFuzzy:
		return "fuzzy"
	case MatchNew:
		return "new"
	case MatchDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ColumnMatch is the mapping decision for one incoming column.
type ColumnMatch struct {
	Incoming  string
	Canonical string
	Method    MatchMethod
	Score     float64
}

// Conflict describes an ambiguity resolved during reconciliation. Conflicts
// are informational; they never fail a reconcile.
type Conflict struct {
	Incoming   string
	Candidates []string
	Chosen     string
	Reason     string
}

// Reconciliation is the result of aligning one snapshot header.
type Reconciliation struct {
	Schema    Schema
	Matches   []ColumnMatch
	Added     []string
	Conflicts []Conflict
}

// Mapping returns, for each incoming column position, the index of its
// canonical column in r.Schema, or -1 when the column is dropped.
func (r Reconciliation) Mapping() []int {
	out := make([]int, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = -1
		if m.Method == MatchDropped {
			continue
		}
		if idx, ok := r.Schema.Index(m.Canonical); ok {
			out[i] = idx
		}
	}
	return out
}

// Renamed returns incoming → canonical for every column that did not match
// its canonical name verbatim.
func (r Reconciliation) Renamed() map[string]string {
	out := make(map[string]string)
	for _, m := range r.Matches {
		if m.Method == MatchAlias || m.Method == MatchFuzzy {
			out[m.Incoming] = m.Canonical
		}
	}
	return out
}

// Missing returns the names in required that no incoming column mapped to.
func (r Reconciliation) Missing(required []string) []string {
	present := make(map[string]bool, len(r.Matches))
	for _, m := range r.Matches {
		if m.Method != MatchDropped {
			present[m.Canonical] = true
		}
	}
	var out []string
	for _, name := range required {
		if !present[name] {
			out = append(out, name)
		}
	}
	return out
}

// Reconcile aligns incoming columns against schema in three passes:
//
//  1. aliases are applied and names identical to a canonical column are
//     matched;
//  2. each remaining column is scored against every canonical column not
//     yet claimed by this snapshot, and taken as a rename of the best one
//     at or above the threshold (ties go to the earliest canonical column);
//  3. anything still unmatched is inserted into the schema at its incoming
//     position.
//
// The result depends only on the arguments. The returned schema always
// covers the input schema.
func Reconcile(schema Schema, incoming []IncomingColumn, rules Rules) Reconciliation {
	scorer := rules.Scorer
	if scorer == nil {
		scorer = RatcliffObershelp{}
	}
	timeCols := make(map[string]bool, len(rules.TimeColumns))
	for _, c := range rules.TimeColumns {
		timeCols[c] = true
	}

	n := len(incoming)
	names := make([]string, n)
	matches := make([]ColumnMatch, n)
	for i, c := range incoming {
		name := strings.TrimSpace(c.Name)
		matches[i] = ColumnMatch{Incoming: c.Name, Method: MatchExact}
		if alias, ok := rules.Aliases[name]; ok {
			name = alias
			matches[i].Method = MatchAlias
		}
		names[i] = name
	}

	var conflicts []Conflict
	claimed := make(map[string]bool, schema.Len())
	resolved := make([]bool, n)

	for i, name := range names {
		if !schema.Has(name) {
			continue
		}
		resolved[i] = true
		if claimed[name] {
			matches[i].Method = MatchDropped
			conflicts = append(conflicts, Conflict{
				Incoming: incoming[i].Name, Candidates: []string{name}, Reason: "duplicate column",
			})
			continue
		}
		claimed[name] = true
		matches[i].Canonical = name
	}

	for i, name := range names {
		if resolved[i] {
			continue
		}
		best, bestScore := -1, 0.0
		var candidates []string
		for j := range schema.Len() {
			canon := schema.Column(j).Name
			if claimed[canon] {
				continue
			}
			score := scorer.Score(canon, name)
			if score < rules.Threshold {
				continue
			}
			candidates = append(candidates, canon)
			if best < 0 || score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 {
			continue
		}
		canon := schema.Column(best).Name
		claimed[canon] = true
		resolved[i] = true
		matches[i].Canonical = canon
		matches[i].Method = MatchFuzzy
		matches[i].Score = bestScore
		if len(candidates) > 1 {
			conflicts = append(conflicts, Conflict{
				Incoming: incoming[i].Name, Candidates: candidates, Chosen: canon, Reason: "ambiguous fuzzy match",
			})
		}
	}

	kinds := make(map[string]Kind, schema.Len()+n)
	for _, c := range schema.cols {
		kinds[c.Name] = c.Kind
	}
	cols := schema.Columns()
	var added []string
	for i, name := range names {
		if resolved[i] {
			continue
		}
		if _, exists := kinds[name]; exists {
			// Two unmatched columns in one snapshot normalized to the same name.
			matches[i].Method = MatchDropped
			conflicts = append(conflicts, Conflict{
				Incoming: incoming[i].Name, Candidates: []string{name}, Reason: "duplicate column",
			})
			continue
		}
		kinds[name] = KindUnknown
		cols = slices.Insert(cols, min(i, len(cols)), Column{Name: name})
		added = append(added, name)
		matches[i].Canonical = name
		matches[i].Method = MatchNew
	}

	for i, m := range matches {
		if m.Method == MatchDropped {
			continue
		}
		k := kinds[m.Canonical].unify(incoming[i].Kind)
		if timeCols[m.Canonical] {
			k = KindTime
		}
		kinds[m.Canonical] = k
	}
	for i := range cols {
		cols[i].Kind = kinds[cols[i].Name]
	}

	return Reconciliation{
		Schema:    NewSchema(cols...),
		Matches:   matches,
		Added:     added,
		Conflicts: conflicts,
	}
}

// CloneRules returns a deep copy of r so callers can adjust aliases safely.
func CloneRules(r Rules) Rules {
	r.Aliases = maps.Clone(r.Aliases)
	r.TimeColumns = slices.Clone(r.TimeColumns)
	return r
}
