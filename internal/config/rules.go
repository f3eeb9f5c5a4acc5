package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/titanous/json5"
)

// Rules is the reconciliation rule set, tunable from a json5 file because the
// publisher's column naming keeps drifting.
type Rules struct {
	Aliases         map[string]string `json:"aliases"`
	Threshold       float64           `json:"threshold"`
	TimeColumns     []string          `json:"time_columns"`
	RequiredColumns []string          `json:"required_columns"`
	GeoColumn       string            `json:"geo_column"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		Aliases:         domain.DefaultAliases(),
		Threshold:       domain.DefaultThreshold,
		TimeColumns:     domain.DefaultTimeColumns(),
		RequiredColumns: []string{"Province_State", "Confirmed", "Deaths"},
		GeoColumn:       "Province_State",
	}
}

// LoadRules reads <name>.<ext> and then <name>.local.<ext>, the local file
// overriding the first, and fills anything still unset from DefaultRules.
// Aliases from files extend the built-in table. An empty path returns the
// defaults.
func LoadRules(path string) (Rules, error) {
	var out Rules
	if path != "" {
		found := false
		base, err := readRulesFile(path)
		switch {
		case err == nil:
			out, found = base, true
		case !errors.Is(err, os.ErrNotExist):
			return Rules{}, err
		}

		local := localPath(path)
		override, err := readRulesFile(local)
		switch {
		case err == nil:
			if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
				return Rules{}, fmt.Errorf("merge %s: %w", local, err)
			}
			slog.Info("merging rules with local overrides", "local", local)
			found = true
		case !errors.Is(err, os.ErrNotExist):
			return Rules{}, err
		}

		if !found {
			return Rules{}, fmt.Errorf("rules file %s: %w", path, os.ErrNotExist)
		}
	}

	if err := mergo.Merge(&out, DefaultRules()); err != nil {
		return Rules{}, fmt.Errorf("apply default rules: %w", err)
	}
	if out.Threshold < 0 || out.Threshold > 100 {
		return Rules{}, fmt.Errorf("rules threshold %v out of range 0-100", out.Threshold)
	}
	return out, nil
}

// Reconcile converts the rule set into domain reconciliation rules.
func (r Rules) Reconcile(scorer domain.Scorer) domain.Rules {
	return domain.CloneRules(domain.Rules{
		Aliases:     r.Aliases,
		Threshold:   r.Threshold,
		Scorer:      scorer,
		TimeColumns: r.TimeColumns,
	})
}

func readRulesFile(path string) (Rules, error) {
	var r Rules
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json5.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

func localPath(path string) string {
	dir, base := filepath.Dir(path), filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}
