package indextype

import "testing"

func TestSelectType_HeuristicArrayLikeUsesGIN(t *testing.T) {
	kind, prior := SelectType("jsonb", false, PlanCostByType{})
	if kind != KindGIN {
		t.Fatalf("expected GIN for array-like type, got %q", kind)
	}
	if prior <= 0 {
		t.Fatalf("expected a positive prior, got %v", prior)
	}
}

func TestSelectType_HeuristicPureEqualityUsesHash(t *testing.T) {
	kind, _ := SelectType("integer", true, PlanCostByType{})
	if kind != KindHash {
		t.Fatalf("expected hash for pure-equality non-array field, got %q", kind)
	}
}

func TestSelectType_HeuristicDefaultUsesBTree(t *testing.T) {
	kind, _ := SelectType("integer", false, PlanCostByType{})
	if kind != KindBTree {
		t.Fatalf("expected btree as default, got %q", kind)
	}
}

func TestSelectType_PlanAvailablePicksCheapestCandidate(t *testing.T) {
	// Hash's divisor (50) beats btree's (20) for equal PlanCost, so with
	// no seq scan hash should win on cost.
	kind, _ := SelectType("integer", false, PlanCostByType{Available: true, PlanCost: 1000, HasSeqScan: false})
	if kind != KindHash {
		t.Fatalf("expected hash to win on lower per-type cost, got %q", kind)
	}
}

func TestSelectType_ArrayLikeWithPlanAvailableStillUsesGIN(t *testing.T) {
	kind, _ := SelectType("array", false, PlanCostByType{Available: true, PlanCost: 900})
	if kind != KindGIN {
		t.Fatalf("expected GIN for array-like field even with a plan, got %q", kind)
	}
}

func TestChooseShape_HighNullRatioOnSmallTableIsPartial(t *testing.T) {
	if got := ChooseShape("small", 0.8, false, false); got != ShapePartial {
		t.Fatalf("expected partial shape, got %q", got)
	}
}

func TestChooseShape_LikePatternOnMediumTableIsExpression(t *testing.T) {
	if got := ChooseShape("medium", 0.1, true, false); got != ShapeExpression {
		t.Fatalf("expected expression shape, got %q", got)
	}
}

func TestChooseShape_TenantColumnIsMultiColumn(t *testing.T) {
	if got := ChooseShape("large", 0.1, false, true); got != ShapeMultiColumn {
		t.Fatalf("expected multi_column shape, got %q", got)
	}
}

func TestChooseShape_DefaultIsStandard(t *testing.T) {
	if got := ChooseShape("large", 0.1, false, false); got != ShapeStandard {
		t.Fatalf("expected standard shape, got %q", got)
	}
}

func TestGenerateSQL_NamingConvention(t *testing.T) {
	sel := GenerateSQL("orders", "customer_id", KindBTree, ShapeStandard, false)
	if sel.Name != "idx_orders_customer_id" {
		t.Fatalf("unexpected name: %q", sel.Name)
	}
	if sel.SQL != "CREATE INDEX CONCURRENTLY idx_orders_customer_id ON orders (customer_id)" {
		t.Fatalf("unexpected sql: %q", sel.SQL)
	}
}

func TestGenerateSQL_PartialShapeAddsWhereAndSuffix(t *testing.T) {
	sel := GenerateSQL("orders", "shipped_at", KindBTree, ShapePartial, false)
	if sel.Name != "idx_orders_shipped_at_partial" {
		t.Fatalf("unexpected name: %q", sel.Name)
	}
	if sel.SQL != "CREATE INDEX CONCURRENTLY idx_orders_shipped_at_partial ON orders (shipped_at) WHERE shipped_at IS NOT NULL" {
		t.Fatalf("unexpected sql: %q", sel.SQL)
	}
}

func TestGenerateSQL_ExpressionShapeLowersColumn(t *testing.T) {
	sel := GenerateSQL("customers", "email", KindBTree, ShapeExpression, false)
	if sel.Name != "idx_customers_email_lower" {
		t.Fatalf("unexpected name: %q", sel.Name)
	}
	if sel.SQL != "CREATE INDEX CONCURRENTLY idx_customers_email_lower ON customers (lower(email))" {
		t.Fatalf("unexpected sql: %q", sel.SQL)
	}
}

func TestGenerateSQL_FKSuffixAndGINUsing(t *testing.T) {
	sel := GenerateSQL("orders", "tags", KindGIN, ShapeStandard, true)
	if sel.Name != "idx_orders_tags_gin_fk" {
		t.Fatalf("unexpected name: %q", sel.Name)
	}
	if sel.SQL != "CREATE INDEX CONCURRENTLY idx_orders_tags_gin_fk ON orders USING gin (tags)" {
		t.Fatalf("unexpected sql: %q", sel.SQL)
	}
}
