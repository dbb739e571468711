// Package indextype implements the index-type selector (C10): chooses
// among B-tree / hash / GIN / partial / expression / composite based on
// EXPLAIN analysis or heuristics, and generates the bit-exact naming
// scheme from spec §6.
package indextype

import (
	"fmt"
	"strings"
)

// Kind is the selected index storage kind.
type Kind string

const (
	KindBTree Kind = "btree"
	KindHash  Kind = "hash"
	KindGIN   Kind = "gin"
	KindGiST  Kind = "gist"
)

// Shape is the structural variant layered on top of Kind.
type Shape string

const (
	ShapeStandard   Shape = "standard"
	ShapePartial    Shape = "partial"
	ShapeExpression Shape = "expression"
	ShapeMultiColumn Shape = "multi_column"
)

// Selection is the (sql, name, kind) tuple the selector emits.
type Selection struct {
	Kind Kind
	Shape Shape
	Name string
	SQL  string
}

// PlanCostByType is the per-candidate-type EXPLAIN cost context.
type PlanCostByType struct {
	Available   bool
	PlanCost    float64
	HasSeqScan  bool
}

// isArrayLike reports whether fieldType needs GIN and disallows hash.
func isArrayLike(fieldType string) bool {
	switch fieldType {
	case "array", "jsonb", "json", "tsvector":
		return true
	}
	return false
}

// SelectType chooses the storage kind using EXPLAIN-derived costs when
// available (spec §4.10's per-type divisors), falling back to
// heuristics otherwise.
func SelectType(fieldType string, pureEquality bool, plan PlanCostByType) (Kind, float64) {
	if !plan.Available {
		return selectTypeHeuristic(fieldType, pureEquality)
	}

	type candidate struct {
		kind Kind
		cost float64
		prior float64
	}
	var candidates []candidate

	if isArrayLike(fieldType) {
		c := plan.PlanCost / 30
		candidates = append(candidates, candidate{KindGIN, c, 0.85})
	} else {
		if plan.HasSeqScan {
			candidates = append(candidates, candidate{KindBTree, plan.PlanCost / 20, 0.8})
			candidates = append(candidates, candidate{KindGIN, plan.PlanCost / 30, 0.6})
		} else {
			candidates = append(candidates, candidate{KindBTree, plan.PlanCost / 20, 0.8})
		}
		candidates = append(candidates, candidate{KindHash, plan.PlanCost / 50, 0.6})
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.cost < best.cost {
			best = c
		}
	}
	return best.kind, best.prior
}

// selectTypeHeuristic applies spec §4.10's no-EXPLAIN heuristics.
func selectTypeHeuristic(fieldType string, pureEquality bool) (Kind, float64) {
	if isArrayLike(fieldType) {
		return KindGIN, 0.9
	}
	if pureEquality {
		return KindHash, 0.6
	}
	return KindBTree, 0.7
}

// ChooseShape selects partial/expression/multi-column shaping on top of
// the chosen Kind, per spec §4.10.
func ChooseShape(sizeClass string, nullRatio float64, hasLike bool, hasTenantCol bool) Shape {
	if (sizeClass == "small" || sizeClass == "medium") && nullRatio > 0.5 {
		return ShapePartial
	}
	if (sizeClass == "small" || sizeClass == "medium") && hasLike {
		return ShapeExpression
	}
	if hasTenantCol {
		return ShapeMultiColumn
	}
	return ShapeStandard
}

// GenerateSQL produces the (sql, name) pair for the chosen kind/shape,
// following the bit-exact naming convention
// idx_<table>_<field>[_<type>][_partial|_lower][_tenant][_fk].
func GenerateSQL(table, field string, kind Kind, shape Shape, isFK bool) Selection {
	var nameParts []string
	nameParts = append(nameParts, "idx", table, field)

	using := ""
	switch kind {
	case KindHash:
		using = " USING hash"
		nameParts = append(nameParts, "hash")
	case KindGIN:
		using = " USING gin"
		nameParts = append(nameParts, "gin")
	case KindGiST:
		using = " USING gist"
		nameParts = append(nameParts, "gist")
	}

	columns := field
	var whereClause string

	switch shape {
	case ShapePartial:
		whereClause = fmt.Sprintf(" WHERE %s IS NOT NULL", field)
		nameParts = append(nameParts, "partial")
	case ShapeExpression:
		columns = fmt.Sprintf("lower(%s)", field)
		nameParts = append(nameParts, "lower")
	case ShapeMultiColumn:
		columns = fmt.Sprintf("tenant_id, %s", field)
		nameParts = append(nameParts, "tenant")
	}

	if isFK {
		nameParts = append(nameParts, "fk")
	}

	name := strings.Join(nameParts, "_")
	sql := fmt.Sprintf("CREATE INDEX CONCURRENTLY %s ON %s%s (%s)%s", name, table, using, columns, whereClause)

	return Selection{Kind: kind, Shape: shape, Name: name, SQL: sql}
}
