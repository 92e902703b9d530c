package refdata

import (
	"strings"
	"testing"
)

func defaultConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(defaultConfig(t)); err != nil {
		t.Fatalf("shipped defaults should validate, got: %v", err)
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Risk.Weights = map[string]float64{
		"liquidity":     0.30,
		"interest_rate": 0.20,
		"operational":   0.20,
		"legal":         0.15,
		"prepayment":    0.20,
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for weights summing to 1.05, got nil")
	}
	if !IsConfigurationError(err) {
		t.Errorf("Expected ConfigurationError, got %T", err)
	}
	if !strings.Contains(err.Error(), "sum") {
		t.Errorf("Expected error message about the weight sum, got: %v", err)
	}
}

func TestValidate_MissingCategoryWeight(t *testing.T) {
	cfg := defaultConfig(t)
	delete(cfg.Risk.Weights, "legal")

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for missing category, got nil")
	}
	if !strings.Contains(err.Error(), "legal") {
		t.Errorf("Expected error to mention 'legal', got: %v", err)
	}
}

func TestValidate_UnknownCategoryWeight(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Risk.Weights["fx"] = 0

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "fx") {
		t.Errorf("Expected error about unknown category fx, got: %v", err)
	}
}

func TestValidate_RedFlagFields(t *testing.T) {
	tests := []struct {
		name    string
		spec    RuleSpec
		mention string
	}{
		{
			name:    "bad severity",
			spec:    RuleSpec{ID: "x1", Expression: "true", Severity: "low", Category: "legal", Fields: []string{"rate"}},
			mention: "severity",
		},
		{
			name:    "bad category",
			spec:    RuleSpec{ID: "x2", Expression: "true", Severity: "high", Category: "fx", Fields: []string{"rate"}},
			mention: "category",
		},
		{
			name:    "no fields",
			spec:    RuleSpec{ID: "x3", Expression: "true", Severity: "high", Category: "legal"},
			mention: "fields",
		},
		{
			name:    "no expression",
			spec:    RuleSpec{ID: "x4", Severity: "high", Category: "legal", Fields: []string{"rate"}},
			mention: "no expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.RedFlags = append(cfg.RedFlags, tt.spec)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("Expected error to mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_DuplicateRuleIDAcrossLists(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Decisions.Rules = append(cfg.Decisions.Rules, RuleSpec{
		ID:         "cross_default",
		Expression: "true",
		Outcome:    "accept",
	})

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "already used") {
		t.Errorf("Expected duplicate id error, got: %v", err)
	}
}

func TestValidate_NarrativeTemplate(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Narrative = append(cfg.Narrative, RuleSpec{
		ID:         "broken",
		Section:    "rate_evaluation",
		Expression: "true",
		Template:   "{{.terms.rate_pct",
	})

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected template error for rule broken, got: %v", err)
	}
}

func TestValidate_NarrativeSection(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Narrative = append(cfg.Narrative, RuleSpec{
		ID:         "misplaced",
		Section:    "appendix",
		Expression: "true",
		Template:   "text",
	})

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "appendix") {
		t.Errorf("Expected section error, got: %v", err)
	}
}

func TestValidate_DecisionOutcome(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Decisions.Fallback = "maybe"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "fallback") {
		t.Errorf("Expected fallback error, got: %v", err)
	}
}

func TestValidate_Brackets(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Market.SizeBrackets = []Bracket{
		{Name: "small", Max: 0},
		{Name: "large", Max: 1000},
	}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "unbounded but not last") {
		t.Errorf("Expected bracket ordering error, got: %v", err)
	}
}

func TestValidate_MarketRateUnknownBracket(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Market.Rates = append(cfg.Market.Rates, MarketRate{Sector: "mining", Size: "huge", Term: "short", Rate: 0.1})

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "huge") {
		t.Errorf("Expected unknown bracket error, got: %v", err)
	}
}

func TestValidate_MultipleProblems(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.ReviewThreshold = 0
	cfg.Solver.MaxIterations = 0
	cfg.Report.SummaryCap = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	cfgErr, ok := err.(*ConfigurationError)
	if !ok {
		t.Fatalf("Expected *ConfigurationError, got %T", err)
	}
	if len(cfgErr.Problems) != 3 {
		t.Errorf("Expected 3 problems, got %d: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"rate_above_market", "_private", "R2"}
	for _, name := range valid {
		if err := validateIdentifier(name); err != nil {
			t.Errorf("Expected %q to be valid, got: %v", name, err)
		}
	}

	invalid := []string{"", "2fast", "has-dash", "has space", "terms", "true", strings.Repeat("a", 101)}
	for _, name := range invalid {
		if err := validateIdentifier(name); err == nil {
			t.Errorf("Expected %q to be rejected", name)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg, err := LoadConfig()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Validate(cfg)
	}
}
