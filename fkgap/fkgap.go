// Package fkgap implements the foreign-key index gap detector (C11):
// scans the catalog for FK constraints whose referencing column is not
// the leading column of any existing index.
package fkgap

import (
	"context"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
)

// Candidate is a synthetic-weight candidate produced for an FK lacking
// a backing index.
type Candidate struct {
	Table          string
	Field          string // referencing column
	RefTable       string
	RefColumn      string
	HasTenantCol   bool
	SyntheticWeight int64 // treated as if it had moderate query volume
}

const syntheticWeight = 500 // "moderate query volume" stand-in per spec §4.11

// Detector queries information_schema + pg_index for unindexed FKs,
// grounded on original_source/foreign_key_suggestions.py.
type Detector struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Detector {
	return &Detector{pool: pool}
}

// FindGaps returns FK candidates in schema whose referencing column is
// not the leading column of any index.
func (d *Detector) FindGaps(ctx context.Context, schema string) ([]Candidate, error) {
	sql := `
		SELECT
		    tc.table_name,
		    kcu.column_name,
		    ccu.table_name AS referenced_table,
		    ccu.column_name AS referenced_column,
		    EXISTS (
		        SELECT 1 FROM information_schema.columns c
		        WHERE c.table_schema = tc.table_schema
		          AND c.table_name = tc.table_name
		          AND c.column_name = 'tenant_id'
		    ) AS has_tenant_col
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		    ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		    ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM pg_index i
		      JOIN pg_class t ON t.oid = i.indrelid
		      JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = i.indkey[0]
		      WHERE t.relname = tc.table_name AND a.attname = kcu.column_name
		  )
	`
	var candidates []Candidate
	err := d.pool.Query(ctx, sql, []interface{}{schema}, func(r db.Row) error {
		var c Candidate
		if err := r.Scan(&c.Table, &c.Field, &c.RefTable, &c.RefColumn, &c.HasTenantCol); err != nil {
			return err
		}
		c.SyntheticWeight = syntheticWeight
		candidates = append(candidates, c)
		return nil
	})
	return candidates, err
}

// GenerateSQL returns the (tenant_id, fk_col) composite when the
// referencing table has a tenant column, else a single-column index.
func (c Candidate) GenerateSQL() (name, sql string) {
	if c.HasTenantCol {
		name = "idx_" + c.Table + "_" + c.Field + "_tenant_fk"
		sql = "CREATE INDEX CONCURRENTLY " + name + " ON " + c.Table + " (tenant_id, " + c.Field + ")"
		return
	}
	name = "idx_" + c.Table + "_" + c.Field + "_fk"
	sql = "CREATE INDEX CONCURRENTLY " + name + " ON " + c.Table + " (" + c.Field + ")"
	return
}
