// Package filter implements the Scenario Filter Engine (component K): a list of
// field-level predicates evaluated against a materialized Minion.
package filter

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"

	"github.com/fleetward/fleetward/internal/models"
)

// FieldType selects which part of a Minion a Filter's Field addresses.
type FieldType string

const (
	FieldObject  FieldType = "object"  // a direct Minion column, e.g. "id", "osType"
	FieldGrain   FieldType = "grain"   // a JSON-path into the grains blob
	FieldPackage FieldType = "package" // a package name presence/version check in pkgs
)

// Operand is the comparison applied between the extracted value(s) and Filter.Value.
type Operand string

const (
	OperandContains    Operand = "c"
	OperandNotContains Operand = "nc"
	OperandEquals      Operand = "e"
	OperandNotEquals   Operand = "ne"
	OperandStartsWith  Operand = "sw"
	OperandEndsWith    Operand = "ew"
	OperandGTE         Operand = "gte"
	OperandLTE         Operand = "lte"
)

// Filter is one field-level predicate. An empty []Filter matches everything.
type Filter struct {
	FieldType FieldType `json:"fieldType"`
	Field     string    `json:"field"`
	Operand   Operand   `json:"operand"`
	Value     string    `json:"value"`
}

// MatchAll reports whether the minion satisfies every filter in the list (empty list
// matches everything).
func MatchAll(filters []Filter, minion *models.Minion) bool {
	for _, f := range filters {
		if !f.matches(minion) {
			return false
		}
	}
	return true
}

func (f Filter) matches(minion *models.Minion) bool {
	values := f.extractValues(minion)
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if compare(f.Operand, v, f.Value) {
			return true // ANY semantics across extracted values
		}
	}
	return false
}

func (f Filter) extractValues(minion *models.Minion) []string {
	switch f.FieldType {
	case FieldObject:
		return []string{objectField(minion, f.Field)}
	case FieldGrain:
		return jsonPathValues(minion.Grains, f.Field)
	case FieldPackage:
		return packageVersions(minion.Pkgs, f.Field)
	default:
		return nil
	}
}

func objectField(minion *models.Minion, field string) string {
	switch field {
	case "id":
		return minion.ID
	case "osType":
		return minion.OsType
	default:
		return ""
	}
}

// jsonPathValues walks a dot-separated path into a JSON document and returns every
// scalar value found at that path, stringified. A missing path yields no values, which
// makes the filter fail to match (fail-closed, consistent with "ANY semantics over zero
// values is false").
func jsonPathValues(blob, path string) []string {
	if blob == "" || path == "" {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil
	}
	cur := doc
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return flattenScalars(cur)
}

func flattenScalars(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		var out []string
		for _, item := range t {
			out = append(out, flattenScalars(item)...)
		}
		return out
	case map[string]interface{}:
		return nil
	case nil:
		return nil
	default:
		if s, err := cast.ToStringE(t); err == nil {
			return []string{s}
		}
		return nil
	}
}

// packageVersions returns the installed version string(s) for a package name, or nil if
// the package is absent from pkgs.
func packageVersions(pkgsBlob, name string) []string {
	if pkgsBlob == "" {
		return nil
	}
	var pkgs map[string]interface{}
	if err := json.Unmarshal([]byte(pkgsBlob), &pkgs); err != nil {
		return nil
	}
	v, ok := pkgs[name]
	if !ok {
		return nil
	}
	return flattenScalars(v)
}

func compare(op Operand, actual, expected string) bool {
	switch op {
	case OperandEquals:
		return actual == expected
	case OperandNotEquals:
		return actual != expected
	case OperandContains:
		return strings.Contains(actual, expected)
	case OperandNotContains:
		return !strings.Contains(actual, expected)
	case OperandStartsWith:
		return strings.HasPrefix(actual, expected)
	case OperandEndsWith:
		return strings.HasSuffix(actual, expected)
	case OperandGTE, OperandLTE:
		af, aerr := cast.ToFloat64E(actual)
		ef, eerr := cast.ToFloat64E(expected)
		if aerr != nil || eerr != nil {
			// Fall back to string comparison when either side isn't numeric.
			if op == OperandGTE {
				return actual >= expected
			}
			return actual <= expected
		}
		if op == OperandGTE {
			return af >= ef
		}
		return af <= ef
	default:
		return false
	}
}
