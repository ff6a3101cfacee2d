// Package masker applies column masking rules to database rows.
//
// Two rule families exist. Derive rules ({{derive.*}}) replace a value with
// deterministic output keyed on the original value, so the same source value
// masks to the same replacement in every table and every run under the same
// key, and referential integrity needs no bookkeeping. Faker rules
// ({{faker.*}}) produce random realistic filler with no such guarantee.
package masker

import (
	"fmt"
	"regexp"

	"github.com/consentkeys/pseudomask/internal/config"
	"github.com/consentkeys/pseudomask/internal/profile"
	"github.com/consentkeys/pseudomask/internal/pseudonym"
)

var (
	// derivePattern matches {{derive.field}} templates.
	derivePattern = regexp.MustCompile(`\{\{derive\.(\w+)\}\}`)

	// fakerPattern matches {{faker.funcName}} templates.
	fakerPattern = regexp.MustCompile(`\{\{faker\.(\w+)\}\}`)
)

// deriveFields are the supported {{derive.*}} targets.
var deriveFields = map[string]bool{
	"pseudonym": true,
	"email":     true,
	"name":      true,
	"address":   true,
}

// Masker rewrites rows according to the table configuration.
type Masker struct {
	cfg    *config.Config
	engine *pseudonym.Engine
	synth  *profile.Synthesizer
}

// New creates a Masker.
func New(cfg *config.Config, engine *pseudonym.Engine, synth *profile.Synthesizer) *Masker {
	return &Masker{
		cfg:    cfg,
		engine: engine,
		synth:  synth,
	}
}

// MaskRow applies the configured masking rules to a row of data.
// The input row is not modified.
func (m *Masker) MaskRow(tableName string, row map[string]any) (map[string]any, error) {
	tableConfig := m.cfg.GetTableConfig(tableName)
	if tableConfig == nil || tableConfig.Columns == nil {
		return row, nil
	}

	result := make(map[string]any, len(row))
	for col, val := range row {
		result[col] = val
	}

	for col, rule := range tableConfig.Columns {
		if _, exists := result[col]; !exists {
			continue
		}

		// Null rule (set to NULL)
		if rule == "null" || rule == "" {
			result[col] = nil
			continue
		}

		if matches := derivePattern.FindStringSubmatch(rule); matches != nil {
			masked, err := m.deriveValue(matches[1], result[col])
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", tableName, col, err)
			}
			result[col] = masked
			continue
		}

		if matches := fakerPattern.FindStringSubmatch(rule); matches != nil {
			fn := GetFakerFunc(matches[1])
			if fn == nil {
				return nil, fmt.Errorf("table %s column %s: unknown faker function %q", tableName, col, matches[1])
			}
			result[col] = fn()
			continue
		}

		// Static replacement value
		result[col] = rule
	}

	return result, nil
}

// deriveValue masks one value deterministically. The original value acts as
// the userID and the configured client ID as the derivation context. Values
// with no string form, and empty strings, mask to NULL: there is no
// identifier to key on.
func (m *Masker) deriveValue(field string, original any) (any, error) {
	source, ok := original.(string)
	if !ok || source == "" {
		return nil, nil
	}

	switch field {
	case "pseudonym":
		return m.engine.Derive(source, m.cfg.ClientID, pseudonym.DataTypeDefault)
	case "email":
		return m.synth.FakeEmail(source, m.cfg.ClientID)
	case "name":
		return m.synth.FakeDisplayName(source, m.cfg.ClientID)
	case "address":
		addr, err := m.synth.FakeAddress(source, m.cfg.ClientID)
		if err != nil {
			return nil, err
		}
		return addr.String(), nil
	default:
		return nil, fmt.Errorf("unknown derive field %q", field)
	}
}

// ShouldTruncate returns true if the table should be truncated (schema only).
func (m *Masker) ShouldTruncate(tableName string) bool {
	tableConfig := m.cfg.GetTableConfig(tableName)
	if tableConfig == nil {
		return false
	}
	return tableConfig.Truncate
}

// HasMasking returns true if the table has any masking rules.
func (m *Masker) HasMasking(tableName string) bool {
	tableConfig := m.cfg.GetTableConfig(tableName)
	if tableConfig == nil {
		return false
	}
	return len(tableConfig.Columns) > 0
}

// MaskedColumns returns the list of columns that will be masked for a table.
func (m *Masker) MaskedColumns(tableName string) []string {
	tableConfig := m.cfg.GetTableConfig(tableName)
	if tableConfig == nil || tableConfig.Columns == nil {
		return nil
	}

	columns := make([]string, 0, len(tableConfig.Columns))
	for col := range tableConfig.Columns {
		columns = append(columns, col)
	}
	return columns
}

// ValidateRules checks every configured rule against the known derive
// fields and faker functions, returning one message per problem.
func (m *Masker) ValidateRules() []string {
	var errors []string

	for tableName, tableConfig := range m.cfg.Tables {
		if tableConfig == nil || tableConfig.Columns == nil {
			continue
		}

		for col, rule := range tableConfig.Columns {
			if matches := derivePattern.FindStringSubmatch(rule); matches != nil {
				if !deriveFields[matches[1]] {
					errors = append(errors, "unknown derive field '"+matches[1]+"' for "+tableName+"."+col)
				}
				continue
			}
			if matches := fakerPattern.FindStringSubmatch(rule); matches != nil {
				if GetFakerFunc(matches[1]) == nil {
					errors = append(errors, "unknown faker function '"+matches[1]+"' for "+tableName+"."+col)
				}
			}
		}
	}

	return errors
}
