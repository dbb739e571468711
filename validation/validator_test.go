package validation

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.DEBUG, io.Discard)
}

type fakeLoader struct {
	catalog map[string]map[string]struct{}
	err     error
}

func (f fakeLoader) LoadCatalog(ctx context.Context) (map[string]map[string]struct{}, error) {
	return f.catalog, f.err
}

func TestValidateTable_BootstrapModePermissive(t *testing.T) {
	v := New(testLogger())

	if _, err := v.ValidateTable("orders"); err != nil {
		t.Fatalf("bootstrap mode should allow any syntactically valid table: %v", err)
	}
}

func TestValidateTable_RejectsBadIdentifier(t *testing.T) {
	v := New(testLogger())

	cases := []string{"1table", "ta-ble", "ta ble", ""}
	for _, name := range cases {
		if _, err := v.ValidateTable(name); err == nil {
			t.Errorf("expected rejection for identifier %q", name)
		}
	}
}

func TestValidateTable_RejectsKeyword(t *testing.T) {
	v := New(testLogger())

	if _, err := v.ValidateTable("select"); err == nil {
		t.Fatal("expected rejection for reserved keyword")
	}
}

func TestValidateTable_MetadataTableAlwaysAllowed(t *testing.T) {
	v := New(testLogger())
	if err := v.Refresh(context.Background(), fakeLoader{catalog: map[string]map[string]struct{}{}}); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := v.ValidateTable("genome_catalog"); err != nil {
		t.Fatalf("metadata table should always validate: %v", err)
	}
}

func TestValidateTable_AfterRefreshRejectsUnknownTable(t *testing.T) {
	v := New(testLogger())
	catalog := map[string]map[string]struct{}{
		"orders": {"id": {}, "customer_id": {}},
	}
	if err := v.Refresh(context.Background(), fakeLoader{catalog: catalog}); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := v.ValidateTable("orders"); err != nil {
		t.Fatalf("known table should validate: %v", err)
	}
	if _, err := v.ValidateTable("unknown_table"); err == nil {
		t.Fatal("expected rejection for unknown table once catalog is loaded")
	}
}

func TestValidateField_ScopedToTable(t *testing.T) {
	v := New(testLogger())
	catalog := map[string]map[string]struct{}{
		"orders":    {"id": {}, "customer_id": {}},
		"customers": {"id": {}, "name": {}},
	}
	if err := v.Refresh(context.Background(), fakeLoader{catalog: catalog}); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := v.ValidateField("customer_id", "orders"); err != nil {
		t.Fatalf("expected customer_id valid on orders: %v", err)
	}
	if _, err := v.ValidateField("name", "orders"); err == nil {
		t.Fatal("expected name to be rejected on orders (belongs to customers)")
	}
	if _, err := v.ValidateField("name", ""); err != nil {
		t.Fatalf("unscoped lookup should find name on customers: %v", err)
	}
}

func TestValidateTable_RefreshError(t *testing.T) {
	v := New(testLogger())
	wantErr := errors.New("connection refused")
	if err := v.Refresh(context.Background(), fakeLoader{err: wantErr}); !errors.Is(err, wantErr) {
		t.Fatalf("expected refresh to propagate loader error, got %v", err)
	}
}

func TestClearCache_ReturnsToBootstrapMode(t *testing.T) {
	v := New(testLogger())
	catalog := map[string]map[string]struct{}{"orders": {"id": {}}}
	if err := v.Refresh(context.Background(), fakeLoader{catalog: catalog}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := v.ValidateTable("unknown_table"); err == nil {
		t.Fatal("expected rejection before ClearCache")
	}

	v.ClearCache()

	if _, err := v.ValidateTable("unknown_table"); err != nil {
		t.Fatalf("expected permissive mode after ClearCache: %v", err)
	}
}
