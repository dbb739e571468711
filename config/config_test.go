package config

import (
	"os"
	"testing"
)

func TestGetEnv_FallsBackToDefault(t *testing.T) {
	os.Unsetenv("INDEXPILOT_TEST_UNSET")
	if got := getEnv("INDEXPILOT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}

	os.Setenv("INDEXPILOT_TEST_UNSET", "set")
	defer os.Unsetenv("INDEXPILOT_TEST_UNSET")
	if got := getEnv("INDEXPILOT_TEST_UNSET", "fallback"); got != "set" {
		t.Fatalf("expected env value to win, got %q", got)
	}
}

func TestGetEnvAsInt_FallsBackOnParseFailure(t *testing.T) {
	os.Setenv("INDEXPILOT_TEST_INT", "not-a-number")
	defer os.Unsetenv("INDEXPILOT_TEST_INT")
	if got := getEnvAsInt("INDEXPILOT_TEST_INT", 42); got != 42 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}

	os.Setenv("INDEXPILOT_TEST_INT", "7")
	if got := getEnvAsInt("INDEXPILOT_TEST_INT", 42); got != 7 {
		t.Fatalf("expected parsed value 7, got %d", got)
	}
}

func TestGetEnvAsFloat_FallsBackOnParseFailure(t *testing.T) {
	os.Setenv("INDEXPILOT_TEST_FLOAT", "nope")
	defer os.Unsetenv("INDEXPILOT_TEST_FLOAT")
	if got := getEnvAsFloat("INDEXPILOT_TEST_FLOAT", 0.5); got != 0.5 {
		t.Fatalf("expected default on parse failure, got %v", got)
	}

	os.Setenv("INDEXPILOT_TEST_FLOAT", "0.95")
	if got := getEnvAsFloat("INDEXPILOT_TEST_FLOAT", 0.5); got != 0.95 {
		t.Fatalf("expected parsed value 0.95, got %v", got)
	}
}

func TestGetEnvAsSlice_SplitsOnSeparator(t *testing.T) {
	os.Unsetenv("INDEXPILOT_TEST_SLICE")
	if got := getEnvAsSlice("INDEXPILOT_TEST_SLICE", []string{"a", "b"}, ","); len(got) != 2 {
		t.Fatalf("expected default slice, got %v", got)
	}

	os.Setenv("INDEXPILOT_TEST_SLICE", "x,y,z")
	defer os.Unsetenv("INDEXPILOT_TEST_SLICE")
	got := getEnvAsSlice("INDEXPILOT_TEST_SLICE", nil, ",")
	if len(got) != 3 || got[0] != "x" || got[2] != "z" {
		t.Fatalf("expected [x y z], got %v", got)
	}
}

func TestGetEnvAsBool_FallsBackOnParseFailure(t *testing.T) {
	os.Setenv("INDEXPILOT_TEST_BOOL", "maybe")
	defer os.Unsetenv("INDEXPILOT_TEST_BOOL")
	if got := getEnvAsBool("INDEXPILOT_TEST_BOOL", true); got != true {
		t.Fatalf("expected default true on parse failure, got %v", got)
	}

	os.Setenv("INDEXPILOT_TEST_BOOL", "false")
	if got := getEnvAsBool("INDEXPILOT_TEST_BOOL", true); got != false {
		t.Fatalf("expected parsed false, got %v", got)
	}
}

func TestValidate_ProductionRequiresJWTSecret(t *testing.T) {
	c := &Config{Environment: "production"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when JWT secret is missing in production")
	}

	c.JWT.Secret = "s3cr3t"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error once JWT secret is set, got %v", err)
	}
}

func TestValidate_AdjustsInvertedTableThresholds(t *testing.T) {
	c := &Config{}
	c.AutoIndexer.SmallTableRowCount = 50000
	c.AutoIndexer.MediumTableRowCount = 10000
	c.AutoIndexer.LargeTableCostReductionFactor = 0.5

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AutoIndexer.SmallTableRowCount >= c.AutoIndexer.MediumTableRowCount {
		t.Fatalf("expected small threshold to be adjusted below medium, got small=%d medium=%d",
			c.AutoIndexer.SmallTableRowCount, c.AutoIndexer.MediumTableRowCount)
	}
}

func TestValidate_ClampsSmallTableRowCountFloor(t *testing.T) {
	c := &Config{}
	c.AutoIndexer.SmallTableRowCount = 500
	c.AutoIndexer.MediumTableRowCount = 500

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AutoIndexer.SmallTableRowCount < 1 {
		t.Fatalf("expected small table row count to be floored at 1, got %d", c.AutoIndexer.SmallTableRowCount)
	}
}

func TestValidate_AdjustsInvertedSelectivityThresholds(t *testing.T) {
	c := &Config{}
	c.AutoIndexer.SmallTableRowCount = 1000
	c.AutoIndexer.MediumTableRowCount = 100000
	c.AutoIndexer.LargeTableCostReductionFactor = 0.5
	c.AutoIndexer.MinSelectivityForIndex = 0.9
	c.AutoIndexer.HighSelectivityThreshold = 0.8

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AutoIndexer.MinSelectivityForIndex >= c.AutoIndexer.HighSelectivityThreshold {
		t.Fatalf("expected min selectivity to be adjusted below high selectivity threshold, got min=%v high=%v",
			c.AutoIndexer.MinSelectivityForIndex, c.AutoIndexer.HighSelectivityThreshold)
	}
}

func TestValidate_ClampsOutOfRangeCostReductionFactor(t *testing.T) {
	c := &Config{}
	c.AutoIndexer.SmallTableRowCount = 1000
	c.AutoIndexer.MediumTableRowCount = 100000
	c.AutoIndexer.LargeTableCostReductionFactor = -1

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AutoIndexer.LargeTableCostReductionFactor != 0.1 {
		t.Fatalf("expected negative factor clamped to 0.1, got %v", c.AutoIndexer.LargeTableCostReductionFactor)
	}

	c.AutoIndexer.LargeTableCostReductionFactor = 5
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AutoIndexer.LargeTableCostReductionFactor != 1.0 {
		t.Fatalf("expected over-1 factor clamped to 1.0, got %v", c.AutoIndexer.LargeTableCostReductionFactor)
	}
}
