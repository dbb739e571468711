// Package core wires every component of the index advisor into a single
// process-wide object (spec §9: "inject one Core object rather than
// reaching through package-level globals"). cmd/server and cmd/advisor
// each construct exactly one Core and thread it explicitly.
package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/advisors"
	"github.com/eyeinthesky6/indexpilot-sub002/audit"
	"github.com/eyeinthesky6/indexpilot-sub002/cache"
	"github.com/eyeinthesky6/indexpilot-sub002/composite"
	"github.com/eyeinthesky6/indexpilot-sub002/config"
	"github.com/eyeinthesky6/indexpilot-sub002/costengine"
	"github.com/eyeinthesky6/indexpilot-sub002/coverage"
	"github.com/eyeinthesky6/indexpilot-sub002/db"
	"github.com/eyeinthesky6/indexpilot-sub002/fkgap"
	"github.com/eyeinthesky6/indexpilot-sub002/fuser"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/pattern"
	"github.com/eyeinthesky6/indexpilot-sub002/planner"
	"github.com/eyeinthesky6/indexpilot-sub002/probe"
	"github.com/eyeinthesky6/indexpilot-sub002/safety"
	"github.com/eyeinthesky6/indexpilot-sub002/scheduler"
	"github.com/eyeinthesky6/indexpilot-sub002/statsbuffer"
	"github.com/eyeinthesky6/indexpilot-sub002/statsquery"
	"github.com/eyeinthesky6/indexpilot-sub002/threshold"
	"github.com/eyeinthesky6/indexpilot-sub002/validation"
)

// Core composes every C1-C17 component built so far. Nothing here is a
// package-level global; every caller receives its own *Core.
type Core struct {
	Config *config.Config
	Logger *logging.Logger
	Pool   *db.Pool

	Validator  *validation.Validator
	StatsBuf   *statsbuffer.Buffer
	StatsQ     *statsquery.Querier
	Probe      *probe.Probe
	Planner    *planner.Analyzer
	Pattern    *pattern.Detector
	FKGaps     *fkgap.Detector
	Composite  *composite.Detector
	Fuser      *fuser.Fuser
	Safety     *safety.Envelope
	Thresholds *threshold.Store
	Meter      *coverage.Meter
	Audit      audit.Sink
	Creator    *db.LockedIndexCreate
	Scheduler  *scheduler.Driver
	Cache      *cache.CacheManager

	jsonlAudit *logging.AuditLogger
}

// New opens the database pool and wires every collaborator described in
// SPEC_FULL.md, using cfg's tuned constants throughout.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Core, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Name, cfg.Database.SSLMode)

	pool, err := db.Open(ctx, connStr, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	meter := coverage.New(logger)
	planr := planner.New(pool, meter)
	validator := validation.New(logger)
	if err := validator.Refresh(ctx, &pgCatalogLoader{pool: pool}); err != nil {
		logger.Warn("initial catalog load failed, starting in bootstrap mode", logging.String("error", err.Error()))
	}
	statsQ := statsquery.New(pool)
	prb := probe.New(pool, nil, logger)

	patCfg := pattern.Config{
		MinDaysSustained:     cfg.PatternDetection.MinDaysSustained,
		MinQueriesPerDay:     cfg.PatternDetection.MinQueriesPerDay,
		SpikeDetectionWindow: cfg.PatternDetection.SpikeDetectionWindow,
		SpikeThreshold:       cfg.PatternDetection.SpikeThreshold,
	}
	patternDetector := pattern.New(pattern.NewSQLPeriodCounter(pool), &pgUsageTracker{pool: pool}, patCfg)

	fkDetector := fkgap.New(pool)
	compositeDetector := composite.New(pool, composite.NewSQLCoUsageRanker(pool), cfg.CompositeDetection.HighCostThreshold, nil)

	fus := fuser.New(nil, nil)

	breakerCfg := safety.DefaultBreakerConfig()
	breakers := safety.NewCircuitBreakerRegistry(breakerCfg, logger)
	canaries := safety.NewCanaryRegistry(logger)
	rateLimiter := safety.NewRateLimiter(12, 3, nil, time.Hour)
	budget := safety.NewStorageBudget(10240, nil)
	writeGuard := safety.NewWritePerfMonitor(nil)
	cpu := safety.NewCPUThrottle(0.8, nil)
	approvals := safety.NewApprovalStore(func(ctx context.Context, r safety.ApprovalRequest) {
		logger.Info("approval request recorded", logging.Table(r.Table), logging.FieldName(r.Field), logging.IndexName(r.IndexName))
	})

	safetyCfg, err := config.LoadSafetyConfig()
	if err != nil {
		logger.Warn("safety config load failed, using index-count and maintenance-window defaults", logging.String("error", err.Error()))
		safetyCfg.IndexCount = config.IndexCountYAMLConfig{MaxPerTable: 10, MaxPerTenant: map[string]int{}}
		safetyCfg.MaintenanceWindow = config.MaintenanceWindowYAMLConfig{StartHour: 2, EndHour: 6}
	}
	indexCounts := safety.NewIndexCountGuard(safetyCfg.IndexCount.MaxPerTable, safetyCfg.IndexCount.MaxPerTenant)
	window := safety.NewMaintenanceWindow(safetyCfg.MaintenanceWindow.StartHour, safetyCfg.MaintenanceWindow.EndHour, time.Duration(cfg.AutoIndexer.MaxWaitForMaintenanceWindow)*time.Second)

	envelope := &safety.Envelope{
		Breakers:    breakers,
		Canaries:    canaries,
		RateLimiter: rateLimiter,
		Window:      window,
		Budget:      budget,
		WriteGuard:  writeGuard,
		CPU:         cpu,
		Approvals:   approvals,
	}

	thresholds := threshold.New()

	logSink := audit.NewLogSink(logger)
	pgSink := audit.NewPostgresSink(pool)
	auditSinks := []audit.Sink{logSink, pgSink}
	auditDir := os.Getenv("INDEXPILOT_AUDIT_DIR")
	if auditDir == "" {
		auditDir = "data/audit"
	}
	var jsonlAudit *logging.AuditLogger
	if al, err := logging.NewAuditLogger(auditDir); err != nil {
		logger.Warn("jsonl audit logger init failed, continuing without it", logging.String("error", err.Error()))
	} else {
		jsonlAudit = al
		auditSinks = append(auditSinks, audit.NewJSONLSink(al))
	}
	auditSink := audit.NewMultiSink(auditSinks...)

	statsBuf := statsbuffer.New(&pgStatsInserter{pool: pool}, logger)

	creator := db.NewLockedIndexCreate(pool, cpu, logger)

	cacheMgr, err := newCacheManager(cfg, pool)
	if err != nil {
		logger.Warn("cache manager init failed, continuing without it", logging.String("error", err.Error()))
	}

	costCfg := costengine.Config{
		BuildCostPer1000Rows:           cfg.AutoIndexer.BuildCostPer1000Rows,
		QueryCostPer10000Rows:          cfg.AutoIndexer.QueryCostPer10000Rows,
		MinQueryCost:                   cfg.AutoIndexer.MinQueryCost,
		IndexTypeCostPartial:           cfg.AutoIndexer.IndexTypeCostPartial,
		IndexTypeCostExpression:        cfg.AutoIndexer.IndexTypeCostExpression,
		IndexTypeCostStandard:          cfg.AutoIndexer.IndexTypeCostStandard,
		IndexTypeCostMultiColumn:       cfg.AutoIndexer.IndexTypeCostMultiColumn,
		MinSelectivityForIndex:         cfg.AutoIndexer.MinSelectivityForIndex,
		HighSelectivityThreshold:       cfg.AutoIndexer.HighSelectivityThreshold,
		MinPlanCostForIndex:            cfg.AutoIndexer.MinPlanCostForIndex,
		SmallTableRowCount:             int64(cfg.AutoIndexer.SmallTableRowCount),
		MediumTableRowCount:            int64(cfg.AutoIndexer.MediumTableRowCount),
		SmallTableMinQueriesPerHour:    int64(cfg.AutoIndexer.SmallTableMinQueriesPerHour),
		SmallTableMaxIndexOverheadPct:  cfg.AutoIndexer.SmallTableMaxIndexOverheadPct,
		MediumTableMaxIndexOverheadPct: cfg.AutoIndexer.MediumTableMaxIndexOverheadPct,
		LargeTableCostReductionFactor:  cfg.AutoIndexer.LargeTableCostReductionFactor,
	}

	advisorCfg := map[string]advisors.AdvisorConfig{
		"alex":         {MinSuitability: cfg.Advisors.AlexMinSuitability},
		"pgm":          {MinSuitability: cfg.Advisors.PGMMinSuitability},
		"rss":          {MinSuitability: cfg.Advisors.RSSMinSuitability},
		"cortex":       {MinSuitability: cfg.Advisors.CortexMinSuitability},
		"idistance":    {MinSuitability: cfg.Advisors.IDistanceMinSuitability},
		"bxtree":       {MinSuitability: cfg.Advisors.BxTreeMinSuitability},
		"fractal_tree": {MinSuitability: cfg.Advisors.FractalTreeMinSuitability},
	}

	driver := &scheduler.Driver{
		Validator:   validator,
		StatsQ:      statsQ,
		Probe:       prb,
		Planner:     planr,
		Pattern:     patternDetector,
		CostCfg:     costCfg,
		AdvisorCfg:  advisorCfg,
		Fuser:       fus,
		Safety:      envelope,
		Thresholds:  thresholds,
		Audit:       auditSink,
		Meter:       meter,
		Creator:     creator,
		Catalog:     &pgCatalogChecker{pool: pool},
		Sizer:       &pgTableSizer{pool: pool},
		Logger:      logger,
		IndexCounts: indexCounts,

		WindowHours:         cfg.WorkloadAnalysis.TimeWindowHours,
		AutoRollbackEnabled: cfg.AutoRollback.Enabled,
		CanaryEnabled:       cfg.Canary.Enabled,
		CanaryDefaultPct:    cfg.Canary.DefaultPercent,
		CanarySuccessThresh: cfg.Canary.SuccessThreshold,
		CanaryMinSamples:    cfg.Canary.MinSamples,
		CreateTimeout:       10 * time.Minute,
	}

	return &Core{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Validator:  validator,
		StatsBuf:   statsBuf,
		StatsQ:     statsQ,
		Probe:      prb,
		Planner:    planr,
		Pattern:    patternDetector,
		FKGaps:     fkDetector,
		Composite:  compositeDetector,
		Fuser:      fus,
		Safety:     envelope,
		Thresholds: thresholds,
		Meter:      meter,
		Audit:      auditSink,
		Creator:    creator,
		Scheduler:  driver,
		Cache:      cacheMgr,
		jsonlAudit: jsonlAudit,
	}, nil
}

// newCacheManager wires the L1/L2 (memory/Redis) cache for catalog
// entries and table-size estimates (spec §7's caching concern), with
// startup warmup strategies sourced from the same Postgres adapters
// the validator and probe use.
func newCacheManager(cfg *config.Config, pool *db.Pool) (*cache.CacheManager, error) {
	redisCfg := cache.DefaultRedisConfig()
	redisCfg.Address = fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)
	redisCfg.Password = cfg.Redis.Password
	redisCfg.Prefix = "indexpilot"

	loader := pgCatalogLoader{pool: pool}
	sizer := pgTableSizer{pool: pool}

	mgrCfg := cache.DefaultManagerConfig()
	mgrCfg.RedisConfig = redisCfg
	mgrCfg.WarmupStrategies = []cache.WarmupStrategy{
		cache.NewCatalogWarmup(func(ctx context.Context) (map[string]string, error) {
			catalog, err := loader.LoadCatalog(ctx)
			if err != nil {
				return nil, err
			}
			entries := make(map[string]string)
			for table, fields := range catalog {
				for field := range fields {
					entries[table+"."+field] = "catalog"
				}
			}
			return entries, nil
		}),
		cache.NewTableSizeWarmup(func(ctx context.Context) (map[string]interface{}, error) {
			sql := `SELECT relname FROM pg_class WHERE relkind = 'r' LIMIT 200`
			sizes := make(map[string]interface{})
			err := pool.Query(ctx, sql, nil, func(row db.Row) error {
				var table string
				if err := row.Scan(&table); err != nil {
					return err
				}
				rowCount, tableBytes, indexBytes, err := sizer.TableSize(ctx, table)
				if err != nil {
					return nil // skip tables the sizer can't resolve
				}
				sizes[table] = map[string]int64{"rows": rowCount, "table_bytes": tableBytes, "index_bytes": indexBytes}
				return nil
			})
			return sizes, err
		}),
	}

	return cache.NewCacheManager(mgrCfg, func(ctx context.Context, key string) (interface{}, error) {
		return nil, fmt.Errorf("no loader configured for key %q", key)
	})
}

// Start launches the background stats-buffer flush loop. Callers should
// run it in its own goroutine and cancel ctx to stop it.
func (c *Core) Start(ctx context.Context) {
	if c.Cache != nil {
		if err := c.Cache.Start(ctx); err != nil {
			c.Logger.Warn("cache manager start failed", logging.String("error", err.Error()))
		}
	}
	c.StatsBuf.Run(ctx)
}

// Close flushes the JSONL audit trail and releases the database pool.
func (c *Core) Close() {
	if c.jsonlAudit != nil {
		c.jsonlAudit.Close()
	}
	c.Pool.Close()
}

// RunFKGapScan folds unindexed-foreign-key candidates (C11) into a
// decision pass by feeding each gap through the fuser with a synthetic
// query-volume weight, per spec §4.11.
func (c *Core) RunFKGapScan(ctx context.Context, schema string, mode scheduler.Mode) ([]string, error) {
	gaps, err := c.FKGaps.FindGaps(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("fk gap scan: %w", err)
	}

	var created []string
	for _, g := range gaps {
		fu := statsquery.FieldUsage{Table: g.Table, Field: g.Field, TotalQueries: g.SyntheticWeight}
		dec, reason, err := c.Scheduler.ProcessOne(ctx, fu, mode)
		if err != nil || reason != "" {
			continue
		}
		if dec.Create {
			created = append(created, dec.IndexName)
		}
	}
	return created, nil
}

// RunCompositeScan drives multi-column opportunity detection (C12) for a
// single table. Composite candidates don't fit the single-field fuser
// pipeline, so this scan always audits its findings and only issues the
// CREATE INDEX CONCURRENTLY itself in apply mode — there is no canary or
// rollback path for a multi-column index the way there is for C1-C11's
// single-field decisions.
func (c *Core) RunCompositeScan(ctx context.Context, table string, mode scheduler.Mode) ([]string, error) {
	k := 5
	windowH := c.Config.CompositeDetection.TimeWindowHours
	if windowH <= 0 {
		windowH = 24
	}

	candidates, err := c.Composite.DetectOpportunities(ctx, table, k, windowH)
	if err != nil {
		return nil, fmt.Errorf("composite scan: %w", err)
	}

	var created []string
	for _, cand := range candidates {
		indexName := fmt.Sprintf("idx_%s_%s_composite", table, strings.Join(cand.Fields, "_"))

		c.Audit.Emit(ctx, audit.Event{
			Action:   "composite_opportunity",
			Table:    table,
			Field:    strings.Join(cand.Fields, ","),
			Details:  map[string]interface{}{"total_cost": cand.TotalCost, "index_name": indexName},
			Severity: "info",
			At:       time.Now(),
		})

		if mode != scheduler.ModeApply {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX CONCURRENTLY %s ON %s (%s)", indexName, table, strings.Join(cand.Fields, ", "))
		ok, err := c.Creator.Create(ctx, table, strings.Join(cand.Fields, ","), sql, 30*time.Minute, true)
		if err != nil || !ok {
			c.Audit.Emit(ctx, audit.Event{
				Action: "composite_create_failed", Table: table,
				Field: strings.Join(cand.Fields, ","), Severity: "warning", At: time.Now(),
			})
			continue
		}
		created = append(created, indexName)
	}
	return created, nil
}
