package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// mappingVersion is the descriptor format written by MappingTemplate.
const mappingVersion = 1

// LoadMapping reads a mapping descriptor. JSON files are accepted as well
// since YAML is a superset.
func LoadMapping(path string) (domain.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Mapping{}, fmt.Errorf("read mapping: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a mapping descriptor.
func ParseMapping(data []byte) (domain.Mapping, error) {
	var m domain.Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return domain.Mapping{}, domain.ConfigError("parse mapping", err)
	}
	if m.Version == 0 {
		m.Version = mappingVersion
	}
	if err := validate.Struct(m); err != nil {
		return domain.Mapping{}, domain.ConfigError("parse mapping", err)
	}
	return m, nil
}

// minimalFields are the variables most stations report.
var minimalFields = []string{
	domain.VarTemp,
	domain.VarRH,
	domain.VarPres,
	domain.VarWspd,
	domain.VarWdir,
	domain.VarRain,
}

// MappingTemplate renders a descriptor with empty source columns and the
// canonical unit of each field, ready to be filled in. With includeOptional
// unset only the commonly reported fields are listed.
func MappingTemplate(reg *domain.Registry, includeOptional bool) ([]byte, error) {
	names := minimalFields
	if includeOptional {
		names = reg.Canonical()
	}
	m := domain.Mapping{
		Version: mappingVersion,
		TS:      domain.TimestampMapping{Col: "timestamp"},
		Fields:  make(map[string]domain.FieldMapping, len(names)),
	}
	for _, name := range names {
		v, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		m.Fields[name] = domain.FieldMapping{Unit: v.Units}
	}
	return yaml.Marshal(m)
}
