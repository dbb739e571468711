// Package validation implements the identifier validator (C1): a
// whitelist check against a live catalog plus a keyword blacklist, with
// permissive bootstrap behavior when no catalog has been loaded yet.
package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlKeywords is the blacklist of reserved words that can never be a
// valid table or field name, regardless of catalog contents.
var sqlKeywords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
	"table": {}, "from": {}, "where": {}, "join": {}, "union": {},
	"create": {}, "alter": {}, "grant": {}, "revoke": {}, "exec": {},
	"execute": {}, "truncate": {}, "into": {}, "values": {}, "null": {},
}

// metadataTables are always allowed regardless of catalog contents —
// the system's own bookkeeping tables.
var metadataTables = map[string]struct{}{
	"genome_catalog": {}, "expression_profile": {}, "mutation_log": {},
	"query_stats": {}, "algorithm_usage": {},
}

// CatalogLoader loads the (table, field) whitelist from the database.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (map[string]map[string]struct{}, error)
}

// Validator whitelists tables and fields against a catalog snapshot
// refreshed periodically by the caller. Lookups take the read lock and a
// catalog refresh takes the write lock.
type Validator struct {
	mu      sync.RWMutex
	catalog map[string]map[string]struct{} // nil ⇒ bootstrap/permissive mode
	logger  *logging.Logger
}

// New returns a Validator in bootstrap (permissive) mode.
func New(logger *logging.Logger) *Validator {
	return &Validator{logger: logger}
}

// Refresh reloads the catalog snapshot from loader.
func (v *Validator) Refresh(ctx context.Context, loader CatalogLoader) error {
	cat, err := loader.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.catalog = cat
	v.mu.Unlock()
	return nil
}

// ClearCache resets the validator to bootstrap/permissive mode.
func (v *Validator) ClearCache() {
	v.mu.Lock()
	v.catalog = nil
	v.mu.Unlock()
}

func isKeyword(name string) bool {
	_, ok := sqlKeywords[strings.ToLower(name)]
	return ok
}

// ValidateTable checks name is a syntactically valid identifier, not a
// reserved keyword, and — if a catalog is loaded — present in it.
func (v *Validator) ValidateTable(name string) (string, error) {
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("validation_failed: invalid table identifier %q", name)
	}
	if isKeyword(name) {
		return "", fmt.Errorf("validation_failed: reserved keyword %q", name)
	}
	if _, ok := metadataTables[name]; ok {
		return name, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.catalog == nil {
		v.logger.Debug("validator in bootstrap mode, permissive", logging.Table(name))
		return name, nil
	}
	if _, ok := v.catalog[name]; !ok {
		return "", fmt.Errorf("validation_failed: unknown table %q", name)
	}
	return name, nil
}

// ValidateField checks field the same way, scoped to table when the
// catalog is loaded (an empty table means "any table").
func (v *Validator) ValidateField(field string, table string) (string, error) {
	if !identifierRe.MatchString(field) {
		return "", fmt.Errorf("validation_failed: invalid field identifier %q", field)
	}
	if isKeyword(field) {
		return "", fmt.Errorf("validation_failed: reserved keyword %q", field)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.catalog == nil {
		v.logger.Debug("validator in bootstrap mode, permissive", logging.FieldName(field))
		return field, nil
	}
	if table != "" {
		fields, ok := v.catalog[table]
		if !ok {
			return "", fmt.Errorf("validation_failed: unknown table %q", table)
		}
		if _, ok := fields[field]; !ok {
			return "", fmt.Errorf("validation_failed: unknown field %q on table %q", field, table)
		}
		return field, nil
	}
	for _, fields := range v.catalog {
		if _, ok := fields[field]; ok {
			return field, nil
		}
	}
	return "", fmt.Errorf("validation_failed: unknown field %q", field)
}
