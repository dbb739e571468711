package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the index advisor.
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	Database DatabaseConfig

	// Redis (catalog cache, cross-process threshold/canary mirror)
	Redis RedisConfig

	// JWT (admin approval-queue API)
	JWT JWTConfig

	// Admin
	Admin AdminConfig

	AutoIndexer        AutoIndexerConfig
	PatternDetection   PatternDetectionConfig
	WorkloadAnalysis   WorkloadAnalysisConfig
	Advisors           AdvisorsConfig
	AutoRollback       AutoRollbackConfig
	Canary             CanaryConfig
	CompositeDetection CompositeDetectionConfig
	ForeignKeyGaps     ForeignKeyGapsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type JWTConfig struct {
	Secret string
	Expiry string
}

type AdminConfig struct {
	Email       string
	IPWhitelist []string
	Password    string // bcrypt hash
}

// AutoIndexerConfig is `features.auto_indexer` in the spec's namespace table.
type AutoIndexerConfig struct {
	BuildCostPer1000Rows         float64
	QueryCostPer10000Rows        float64
	MinQueryCost                 float64
	IndexTypeCostPartial         float64
	IndexTypeCostExpression      float64
	IndexTypeCostStandard        float64
	IndexTypeCostMultiColumn     float64
	MinSelectivityForIndex       float64
	HighSelectivityThreshold     float64
	MinImprovementPct            float64
	SampleQueryRuns              int
	UseRealQueryPlans            bool
	MinPlanCostForIndex          float64
	SmallTableRowCount           int
	MediumTableRowCount          int
	SmallTableMinQueriesPerHour  int
	SmallTableMaxIndexOverheadPct float64
	MediumTableMaxIndexOverheadPct float64
	LargeTableCostReductionFactor float64
	MaxWaitForMaintenanceWindow   int // seconds
	Mode                          string // "apply" | "advisory"
	ExplainUsageTrackingEnabled   bool
	MinExplainCoveragePct        float64
}

type PatternDetectionConfig struct {
	MinDaysSustained     int
	MinQueriesPerDay     int
	SpikeDetectionWindow int
	SpikeThreshold       float64
}

type WorkloadAnalysisConfig struct {
	Enabled            bool
	TimeWindowHours    int
	ReadHeavyThreshold float64
	WriteHeavyThreshold float64
}

// AdvisorsConfig holds the per-advisor minimum-suitability thresholds for C7.
type AdvisorsConfig struct {
	AlexMinSuitability          float64
	PGMMinSuitability           float64
	RSSMinSuitability           float64
	CortexMinSuitability        float64
	IDistanceMinSuitability     float64
	BxTreeMinSuitability        float64
	FractalTreeMinSuitability   float64
}

type AutoRollbackConfig struct {
	Enabled bool
}

type CanaryConfig struct {
	Enabled          bool
	DefaultPercent   float64
	SuccessThreshold float64
	MinSamples       int
}

type CompositeDetectionConfig struct {
	TimeWindowHours            int
	MinQueryCount              int
	HighCostThreshold          float64
	MinImprovementPercent      float64
	EstimatedImprovementPercent float64
}

type ForeignKeyGapsConfig struct {
	Enabled bool
	Schema  string
}

// Load loads configuration from environment variables, prefixed INDEXPILOT_
// where a setting is specific to this service, matching the bare DB_/REDIS_
// style of shared infra settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "app"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Expiry: getEnv("JWT_EXPIRY", "24h"),
		},

		Admin: AdminConfig{
			Email:       getEnv("ADMIN_EMAIL", "admin@example.com"),
			IPWhitelist: getEnvAsSlice("ADMIN_IP_WHITELIST", []string{"127.0.0.1", "::1"}, ","),
			Password:    getEnv("ADMIN_PASSWORD_HASH", ""),
		},

		AutoIndexer: AutoIndexerConfig{
			BuildCostPer1000Rows:          getEnvAsFloat("INDEXPILOT_BUILD_COST_PER_1000_ROWS", 1.0),
			QueryCostPer10000Rows:         getEnvAsFloat("INDEXPILOT_QUERY_COST_PER_10000_ROWS", 1.0),
			MinQueryCost:                  getEnvAsFloat("INDEXPILOT_MIN_QUERY_COST", 0.1),
			IndexTypeCostPartial:          getEnvAsFloat("INDEXPILOT_INDEX_TYPE_COST_PARTIAL", 0.5),
			IndexTypeCostExpression:       getEnvAsFloat("INDEXPILOT_INDEX_TYPE_COST_EXPRESSION", 0.7),
			IndexTypeCostStandard:         getEnvAsFloat("INDEXPILOT_INDEX_TYPE_COST_STANDARD", 1.0),
			IndexTypeCostMultiColumn:      getEnvAsFloat("INDEXPILOT_INDEX_TYPE_COST_MULTI_COLUMN", 1.2),
			MinSelectivityForIndex:        getEnvAsFloat("INDEXPILOT_MIN_SELECTIVITY_FOR_INDEX", 0.01),
			HighSelectivityThreshold:      getEnvAsFloat("INDEXPILOT_HIGH_SELECTIVITY_THRESHOLD", 0.5),
			MinImprovementPct:             getEnvAsFloat("INDEXPILOT_MIN_IMPROVEMENT_PCT", 20.0),
			SampleQueryRuns:               getEnvAsInt("INDEXPILOT_SAMPLE_QUERY_RUNS", 5),
			UseRealQueryPlans:             getEnvAsBool("INDEXPILOT_USE_REAL_QUERY_PLANS", true),
			MinPlanCostForIndex:           getEnvAsFloat("INDEXPILOT_MIN_PLAN_COST_FOR_INDEX", 100.0),
			SmallTableRowCount:            getEnvAsInt("INDEXPILOT_SMALL_TABLE_ROW_COUNT", 1000),
			MediumTableRowCount:           getEnvAsInt("INDEXPILOT_MEDIUM_TABLE_ROW_COUNT", 10000),
			SmallTableMinQueriesPerHour:   getEnvAsInt("INDEXPILOT_SMALL_TABLE_MIN_QUERIES_PER_HOUR", 1000),
			SmallTableMaxIndexOverheadPct: getEnvAsFloat("INDEXPILOT_SMALL_TABLE_MAX_INDEX_OVERHEAD_PCT", 50.0),
			MediumTableMaxIndexOverheadPct: getEnvAsFloat("INDEXPILOT_MEDIUM_TABLE_MAX_INDEX_OVERHEAD_PCT", 60.0),
			LargeTableCostReductionFactor: getEnvAsFloat("INDEXPILOT_LARGE_TABLE_COST_REDUCTION_FACTOR", 0.8),
			MaxWaitForMaintenanceWindow:   getEnvAsInt("INDEXPILOT_MAX_WAIT_FOR_MAINTENANCE_WINDOW", 3600),
			Mode:                          getEnv("INDEXPILOT_MODE", "advisory"),
			ExplainUsageTrackingEnabled:   getEnvAsBool("INDEXPILOT_EXPLAIN_USAGE_TRACKING_ENABLED", true),
			MinExplainCoveragePct:         getEnvAsFloat("INDEXPILOT_MIN_EXPLAIN_COVERAGE_PCT", 70.0),
		},

		PatternDetection: PatternDetectionConfig{
			MinDaysSustained:     getEnvAsInt("INDEXPILOT_MIN_DAYS_SUSTAINED", 3),
			MinQueriesPerDay:     getEnvAsInt("INDEXPILOT_MIN_QUERIES_PER_DAY", 50),
			SpikeDetectionWindow: getEnvAsInt("INDEXPILOT_SPIKE_DETECTION_WINDOW", 7),
			SpikeThreshold:       getEnvAsFloat("INDEXPILOT_SPIKE_THRESHOLD", 3.0),
		},

		WorkloadAnalysis: WorkloadAnalysisConfig{
			Enabled:             getEnvAsBool("INDEXPILOT_WORKLOAD_ANALYSIS_ENABLED", true),
			TimeWindowHours:     getEnvAsInt("INDEXPILOT_WORKLOAD_TIME_WINDOW_HOURS", 24),
			ReadHeavyThreshold:  getEnvAsFloat("INDEXPILOT_READ_HEAVY_THRESHOLD", 0.7),
			WriteHeavyThreshold: getEnvAsFloat("INDEXPILOT_WRITE_HEAVY_THRESHOLD", 0.3),
		},

		Advisors: AdvisorsConfig{
			AlexMinSuitability:        getEnvAsFloat("INDEXPILOT_ALEX_MIN_SUITABILITY", 0.5),
			PGMMinSuitability:         getEnvAsFloat("INDEXPILOT_PGM_MIN_SUITABILITY", 0.5),
			RSSMinSuitability:         getEnvAsFloat("INDEXPILOT_RSS_MIN_SUITABILITY", 0.5),
			CortexMinSuitability:      getEnvAsFloat("INDEXPILOT_CORTEX_MIN_SUITABILITY", 0.5),
			IDistanceMinSuitability:   getEnvAsFloat("INDEXPILOT_IDISTANCE_MIN_SUITABILITY", 0.5),
			BxTreeMinSuitability:      getEnvAsFloat("INDEXPILOT_BX_TREE_MIN_SUITABILITY", 0.5),
			FractalTreeMinSuitability: getEnvAsFloat("INDEXPILOT_FRACTAL_TREE_MIN_SUITABILITY", 0.5),
		},

		AutoRollback: AutoRollbackConfig{
			Enabled: getEnvAsBool("INDEXPILOT_AUTO_ROLLBACK_ENABLED", false),
		},

		Canary: CanaryConfig{
			Enabled:          getEnvAsBool("INDEXPILOT_CANARY_ENABLED", false),
			DefaultPercent:   getEnvAsFloat("INDEXPILOT_CANARY_PERCENT", 10.0),
			SuccessThreshold: getEnvAsFloat("INDEXPILOT_CANARY_SUCCESS_THRESHOLD", 0.95),
			MinSamples:       getEnvAsInt("INDEXPILOT_CANARY_MIN_SAMPLES", 100),
		},

		CompositeDetection: CompositeDetectionConfig{
			TimeWindowHours:             getEnvAsInt("INDEXPILOT_COMPOSITE_TIME_WINDOW_HOURS", 24),
			MinQueryCount:               getEnvAsInt("INDEXPILOT_COMPOSITE_MIN_QUERY_COUNT", 10),
			HighCostThreshold:           getEnvAsFloat("INDEXPILOT_COMPOSITE_HIGH_COST_THRESHOLD", 100.0),
			MinImprovementPercent:       getEnvAsFloat("INDEXPILOT_COMPOSITE_MIN_IMPROVEMENT_PCT", 10.0),
			EstimatedImprovementPercent: getEnvAsFloat("INDEXPILOT_COMPOSITE_ESTIMATED_IMPROVEMENT_PCT", 50.0),
		},

		ForeignKeyGaps: ForeignKeyGapsConfig{
			Enabled: getEnvAsBool("INDEXPILOT_FK_GAP_DETECTION_ENABLED", true),
			Schema:  getEnv("INDEXPILOT_FK_GAP_SCHEMA", "public"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks logical invariants and required fields, clamping or
// adjusting values that would otherwise violate an ordering invariant
// (e.g. small table threshold must be strictly below the medium threshold).
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Admin.Password == "" {
			log.Println("WARNING: ADMIN_PASSWORD_HASH not set - admin login will reject every password")
		}
	}

	ai := &c.AutoIndexer
	if ai.SmallTableRowCount >= ai.MediumTableRowCount {
		log.Printf("WARNING: small table row count (%d) >= medium (%d), adjusting", ai.SmallTableRowCount, ai.MediumTableRowCount)
		ai.SmallTableRowCount = ai.MediumTableRowCount - 1000
		if ai.SmallTableRowCount < 1 {
			ai.SmallTableRowCount = 1
		}
	}
	if ai.MinSelectivityForIndex >= ai.HighSelectivityThreshold {
		log.Printf("WARNING: min selectivity (%f) >= high selectivity (%f), adjusting", ai.MinSelectivityForIndex, ai.HighSelectivityThreshold)
		ai.MinSelectivityForIndex = ai.HighSelectivityThreshold - 0.1
	}
	if ai.LargeTableCostReductionFactor <= 0 || ai.LargeTableCostReductionFactor > 1 {
		log.Printf("WARNING: invalid large table cost reduction factor %f, clamping", ai.LargeTableCostReductionFactor)
		if ai.LargeTableCostReductionFactor <= 0 {
			ai.LargeTableCostReductionFactor = 0.1
		} else {
			ai.LargeTableCostReductionFactor = 1.0
		}
	}

	return nil
}

// Helper functions

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	return strings.Split(valueStr, sep)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultVal
	}
	return value
}
