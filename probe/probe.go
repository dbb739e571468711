// Package probe implements the selectivity and distribution probe (C4):
// distinct/total ratio, NULL ratio, string cardinality features, and an
// ordered-ness heuristic for learned-index suitability.
package probe

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// DistributionType classifies how ordered a sampled column's values are.
type DistributionType string

const (
	DistSequential  DistributionType = "sequential"
	DistSemiOrdered DistributionType = "semi_ordered"
	DistRandom      DistributionType = "random"
	DistUnknown     DistributionType = "unknown"
)

// DistributionInfo is the learned-index suitability summary for a field.
type DistributionInfo struct {
	DistinctCount    int64
	NullCount        int64
	DistributionType DistributionType
	IsOrdered        bool
}

// StringFeatures holds the extra per-pass features gathered in one query
// for string-typed fields.
type StringFeatures struct {
	CardinalityRatio float64
	AvgLen           float64
	MaxLen           int
}

// CertValidator is the optional external validator that can confirm or
// correct an estimated selectivity (§4.4). When not supplied, the
// estimate is returned as-is.
type CertValidator interface {
	Validate(ctx context.Context, table, field string, estimated float64) (actual float64, stale bool, err error)
}

// Probe runs selectivity/distribution queries against the pool.
type Probe struct {
	pool   *db.Pool
	cert   CertValidator
	logger *logging.Logger
}

func New(pool *db.Pool, cert CertValidator, logger *logging.Logger) *Probe {
	return &Probe{pool: pool, cert: cert, logger: logger}
}

// Selectivity returns count(distinct field)/count(*), 0 on failure or an
// empty table. When validateWithCert is set and a CertValidator is
// configured, a stale/incorrect estimate is replaced by the CERT-reported
// actual value and a warning is logged.
func (p *Probe) Selectivity(ctx context.Context, table, field string, validateWithCert bool) (float64, error) {
	sql := fmt.Sprintf(`SELECT count(DISTINCT %s)::float8, count(*)::float8 FROM %s`, field, table)
	var distinct, total float64
	row := p.pool.QueryRow(ctx, sql)
	if err := row.Scan(&distinct, &total); err != nil {
		p.logger.Warn("selectivity probe failed", logging.Table(table), logging.FieldName(field))
		return 0, nil
	}
	if total == 0 {
		return 0, nil
	}
	estimated := distinct / total

	if validateWithCert && p.cert != nil {
		actual, stale, err := p.cert.Validate(ctx, table, field, estimated)
		if err == nil && stale {
			p.logger.Warn("selectivity estimate stale, replaced by cert",
				logging.Table(table), logging.FieldName(field),
				logging.Float64("estimated", estimated), logging.Float64("actual", actual))
			return actual, nil
		}
	}
	return estimated, nil
}

// NullRatio returns nulls/total for field, 0 on an empty table.
func (p *Probe) NullRatio(ctx context.Context, table, field string) (float64, error) {
	sql := fmt.Sprintf(`SELECT count(*) FILTER (WHERE %s IS NULL)::float8, count(*)::float8 FROM %s`, field, table)
	var nulls, total float64
	row := p.pool.QueryRow(ctx, sql)
	if err := row.Scan(&nulls, &total); err != nil {
		return 0, nil
	}
	if total == 0 {
		return 0, nil
	}
	return nulls / total, nil
}

// StringFeatures gathers cardinality_ratio, avg_len, and max_len for a
// string field in one pass.
func (p *Probe) StringFeatures(ctx context.Context, table, field string) (StringFeatures, error) {
	sql := fmt.Sprintf(`
		SELECT count(DISTINCT %s)::float8 / GREATEST(count(*), 1)::float8,
		       avg(length(%s))::float8,
		       max(length(%s))
		FROM %s
	`, field, field, field, table)
	var sf StringFeatures
	var maxLen *int
	row := p.pool.QueryRow(ctx, sql)
	if err := row.Scan(&sf.CardinalityRatio, &sf.AvgLen, &maxLen); err != nil {
		return StringFeatures{}, nil
	}
	if maxLen != nil {
		sf.MaxLen = *maxLen
	}
	return sf, nil
}

// Distribution samples the first 1000 ordered non-null values of field
// and classifies the column's ordered-ness by distinct-ratio bands.
func (p *Probe) Distribution(ctx context.Context, table, field string) (DistributionInfo, error) {
	sql := fmt.Sprintf(`
		SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT 1000
	`, field, table, field, field)

	seen := make(map[string]struct{})
	var sample []string
	err := p.pool.Query(ctx, sql, nil, func(r db.Row) error {
		var v interface{}
		if err := r.Scan(&v); err != nil {
			return err
		}
		s := fmt.Sprint(v)
		seen[s] = struct{}{}
		sample = append(sample, s)
		return nil
	})
	if err != nil || len(sample) == 0 {
		return DistributionInfo{DistributionType: DistUnknown}, nil
	}

	nullRatio, _ := p.NullRatio(ctx, table, field)
	distinctRatio := float64(len(seen)) / float64(len(sample))

	distType := DistRandom
	switch {
	case distinctRatio >= 0.8:
		distType = DistSequential
	case distinctRatio >= 0.5:
		distType = DistSemiOrdered
	}

	var total float64
	row := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*)::float8 FROM %s`, table))
	row.Scan(&total)

	return DistributionInfo{
		DistinctCount:    int64(len(seen)),
		NullCount:        int64(nullRatio * total),
		DistributionType: distType,
		IsOrdered:        distType == DistSequential || distType == DistSemiOrdered,
	}, nil
}
