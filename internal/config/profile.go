package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Profile is the on-disk QC profile. Every field is optional and overrides
// the matching default.
type Profile struct {
	UnitPolicy  string                   `yaml:"unit_policy" validate:"omitempty,oneof=warn strict"`
	Bounds      map[string]domain.Bounds `yaml:"bounds"`
	Aggregation map[string]string        `yaml:"aggregation"`
	Spike       *SpikeProfile            `yaml:"spike"`
	Flatline    *FlatlineProfile         `yaml:"flatline"`
	Consistency *ConsistencyProfile      `yaml:"consistency"`
}

type SpikeProfile struct {
	Window     *int     `yaml:"window" validate:"omitempty,gte=1"`
	MinPeriods *int     `yaml:"min_periods" validate:"omitempty,gte=1"`
	Threshold  *float64 `yaml:"threshold" validate:"omitempty,gt=0"`
	Epsilon    *float64 `yaml:"epsilon" validate:"omitempty,gt=0"`
	Variables  []string `yaml:"variables"`
}

type FlatlineProfile struct {
	Window     *int     `yaml:"window" validate:"omitempty,gte=2"`
	MinPeriods *int     `yaml:"min_periods" validate:"omitempty,gte=2"`
	Tolerance  *float64 `yaml:"tolerance" validate:"omitempty,gte=0"`
	Variables  []string `yaml:"variables"`
}

type ConsistencyProfile struct {
	CalmThreshold *float64 `yaml:"calm_threshold" validate:"omitempty,gte=0"`
	Tolerance     *float64 `yaml:"tolerance" validate:"omitempty,gte=0"`
}

// LoadQCProfile reads a QC profile and applies it on top of the default
// registry. An empty path returns the defaults.
func LoadQCProfile(path string) (*domain.Registry, error) {
	if path == "" {
		return domain.DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read qc profile: %w", err)
	}
	return ParseQCProfile(data)
}

// ParseQCProfile decodes a profile and applies it to the defaults.
func ParseQCProfile(data []byte) (*domain.Registry, error) {
	const op = "parse qc profile"
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, domain.ConfigError(op, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, domain.ConfigError(op, err)
	}
	reg := domain.DefaultRegistry()
	if err := p.Apply(reg); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Apply writes the profile's overrides into reg.
func (p Profile) Apply(reg *domain.Registry) error {
	if p.UnitPolicy != "" {
		reg.UnitPolicy = domain.UnitPolicy(p.UnitPolicy)
	}
	for _, name := range sortedKeys(p.Bounds) {
		b := p.Bounds[name]
		if err := reg.SetBounds(name, b.Lo, b.Hi); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(p.Aggregation) {
		if err := reg.SetAgg(name, domain.Agg(p.Aggregation[name])); err != nil {
			return err
		}
	}
	if s := p.Spike; s != nil {
		setIf(&reg.Spike.Window, s.Window)
		setIf(&reg.Spike.MinPeriods, s.MinPeriods)
		setIf(&reg.Spike.Threshold, s.Threshold)
		setIf(&reg.Spike.Epsilon, s.Epsilon)
		if s.Variables != nil {
			if err := selectVariables(reg, s.Variables, func(v *domain.Variable, on bool) { v.Spike = on }); err != nil {
				return err
			}
		}
	}
	if f := p.Flatline; f != nil {
		setIf(&reg.Flatline.Window, f.Window)
		setIf(&reg.Flatline.MinPeriods, f.MinPeriods)
		setIf(&reg.Flatline.Tolerance, f.Tolerance)
		if f.Variables != nil {
			if err := selectVariables(reg, f.Variables, func(v *domain.Variable, on bool) { v.Flatline = on }); err != nil {
				return err
			}
		}
	}
	if c := p.Consistency; c != nil {
		setIf(&reg.Consistency.CalmThreshold, c.CalmThreshold)
		setIf(&reg.Consistency.Tolerance, c.Tolerance)
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// selectVariables enables a check for exactly the named variables.
func selectVariables(reg *domain.Registry, names []string, set func(*domain.Variable, bool)) error {
	for _, name := range names {
		if !reg.IsCanonical(name) {
			return domain.ConfigError("parse qc profile", fmt.Errorf("unknown variable %q", name))
		}
	}
	for i := range reg.Variables {
		set(&reg.Variables[i], slices.Contains(names, reg.Variables[i].Name))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
