package filter

import (
	"testing"

	"github.com/fleetward/fleetward/internal/models"
)

func TestMatchAllEmptyMatchesEverything(t *testing.T) {
	if !MatchAll(nil, &models.Minion{}) {
		t.Fatal("empty filter list must match everything")
	}
}

func TestGrainFilterAnySemantics(t *testing.T) {
	m := &models.Minion{Grains: `{"os":"Ubuntu","roles":["web","cache"]}`}
	filters := []Filter{{FieldType: FieldGrain, Field: "roles", Operand: OperandEquals, Value: "cache"}}
	if !MatchAll(filters, m) {
		t.Fatal("expected ANY semantics to match one of the role values")
	}
	filters = []Filter{{FieldType: FieldGrain, Field: "roles", Operand: OperandEquals, Value: "db"}}
	if MatchAll(filters, m) {
		t.Fatal("expected no match for absent role value")
	}
}

func TestObjectFilterOsType(t *testing.T) {
	m := &models.Minion{OsType: "Ubuntu"}
	if !MatchAll([]Filter{{FieldType: FieldObject, Field: "osType", Operand: OperandStartsWith, Value: "Ub"}}, m) {
		t.Fatal("expected startswith match on osType")
	}
}

func TestNumericGTE(t *testing.T) {
	m := &models.Minion{Grains: `{"num_cpus":8}`}
	if !MatchAll([]Filter{{FieldType: FieldGrain, Field: "num_cpus", Operand: OperandGTE, Value: "4"}}, m) {
		t.Fatal("expected numeric gte match")
	}
	if MatchAll([]Filter{{FieldType: FieldGrain, Field: "num_cpus", Operand: OperandGTE, Value: "16"}}, m) {
		t.Fatal("expected numeric gte to fail")
	}
}

func TestMissingGrainPathNoMatch(t *testing.T) {
	m := &models.Minion{Grains: `{"os":"Ubuntu"}`}
	if MatchAll([]Filter{{FieldType: FieldGrain, Field: "kernel.version", Operand: OperandEquals, Value: "5.10"}}, m) {
		t.Fatal("expected missing path to fail to match")
	}
}
