package migrations

import (
	"database/sql"
)

func init() {
	RegisterMigration(&Migration{
		Version: 1,
		Name:    "initial_schema",
		Up:      initialSchemaUp,
		Down:    initialSchemaDown,
	})
}

func initialSchemaUp(tx *sql.Tx) error {
	schema := `
	-- genome_catalog is the identifier whitelist source for the validator (C1):
	-- one row per (table, field) the advisor is permitted to reason about.
	CREATE TABLE IF NOT EXISTS genome_catalog (
		id BIGSERIAL PRIMARY KEY,
		table_name VARCHAR(255) NOT NULL,
		field_name VARCHAR(255),
		field_type VARCHAR(64),
		tenant_column VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(table_name, field_name)
	);

	CREATE INDEX idx_genome_catalog_table ON genome_catalog(table_name);

	-- expression_profile caches per-field string/cardinality features so the
	-- probe (C4) doesn't re-scan a table every pass.
	CREATE TABLE IF NOT EXISTS expression_profile (
		id BIGSERIAL PRIMARY KEY,
		table_name VARCHAR(255) NOT NULL,
		field_name VARCHAR(255) NOT NULL,
		selectivity DOUBLE PRECISION,
		null_ratio DOUBLE PRECISION,
		cardinality_ratio DOUBLE PRECISION,
		avg_len DOUBLE PRECISION,
		max_len INT,
		distribution_type VARCHAR(32),
		computed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(table_name, field_name)
	);

	-- query_stats is the append target for the stats buffer (C2) and the
	-- source table for stats query (C3) aggregation.
	CREATE TABLE IF NOT EXISTS query_stats (
		id BIGSERIAL PRIMARY KEY,
		tenant_id BIGINT,
		table_name VARCHAR(255) NOT NULL,
		field_name VARCHAR(255),
		query_type VARCHAR(16) NOT NULL,
		duration_ms DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_query_stats_table_field_time ON query_stats(table_name, field_name, created_at);
	CREATE INDEX idx_query_stats_created_at ON query_stats(created_at);

	-- mutation_log is the append-only audit sink (C16) for decisions,
	-- creations, rollbacks, and gate vetoes.
	CREATE TABLE IF NOT EXISTS mutation_log (
		id BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		table_name VARCHAR(255),
		field_name VARCHAR(255),
		index_name VARCHAR(255),
		action VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reason TEXT,
		confidence DOUBLE PRECISION,
		details JSONB,
		severity VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_mutation_log_table_field ON mutation_log(table_name, field_name);
	CREATE INDEX idx_mutation_log_created_at ON mutation_log(created_at);

	-- algorithm_usage records every advisor verdict consulted during a
	-- decision pass, whether or not it ultimately influenced the outcome.
	CREATE TABLE IF NOT EXISTS algorithm_usage (
		id BIGSERIAL PRIMARY KEY,
		table_name VARCHAR(255) NOT NULL,
		field_name VARCHAR(255),
		algorithm_name VARCHAR(64) NOT NULL,
		recommendation_json JSONB,
		used_in_decision BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_algorithm_usage_table ON algorithm_usage(table_name, algorithm_name);

	-- index_approvals holds approval records; the in-memory
	-- safety.ApprovalStore neither reads nor writes this table.
	CREATE TABLE IF NOT EXISTS index_approvals (
		id BIGSERIAL PRIMARY KEY,
		request_id VARCHAR(64) UNIQUE NOT NULL,
		index_name VARCHAR(255) NOT NULL,
		table_name VARCHAR(255) NOT NULL,
		field_name VARCHAR(255),
		sql_text TEXT NOT NULL,
		reason TEXT,
		confidence DOUBLE PRECISION,
		tenant_id BIGINT,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		decided_at TIMESTAMP
	);

	CREATE INDEX idx_index_approvals_status ON index_approvals(status);
	`

	_, err := tx.Exec(schema)
	return err
}

func initialSchemaDown(tx *sql.Tx) error {
	schema := `
	DROP TABLE IF EXISTS index_approvals;
	DROP TABLE IF EXISTS algorithm_usage;
	DROP TABLE IF EXISTS mutation_log;
	DROP TABLE IF EXISTS query_stats;
	DROP TABLE IF EXISTS expression_profile;
	DROP TABLE IF EXISTS genome_catalog;
	`
	_, err := tx.Exec(schema)
	return err
}
