package refdata

// Config is the raw, externally supplied reference data before validation.
// Field tags follow the YAML layout of defaults.yaml.
type Config struct {
	Version         string           `json:"version" mapstructure:"version"`
	ReviewThreshold float64          `json:"review_threshold" mapstructure:"review_threshold"`
	Extraction      ExtractionConfig `json:"extraction" mapstructure:"extraction"`
	Market          MarketConfig     `json:"market" mapstructure:"market"`
	// IndexCurves maps a rate index to its projected annual levels, one per year; the last level persists
	IndexCurves    map[string][]float64 `json:"index_curves" mapstructure:"index_curves"`
	SensitivityBps []float64            `json:"sensitivity_bps" mapstructure:"sensitivity_bps"`
	Solver         SolverConfig         `json:"solver" mapstructure:"solver"`
	Risk           RiskConfig           `json:"risk" mapstructure:"risk"`
	RedFlags       []RuleSpec           `json:"red_flags" mapstructure:"red_flags"`
	Narrative      []RuleSpec           `json:"narrative" mapstructure:"narrative"`
	Decisions      DecisionConfig       `json:"decisions" mapstructure:"decisions"`
	Report         ReportConfig         `json:"report" mapstructure:"report"`
}

// ExtractionConfig holds the tolerances used to reconcile extraction strategies
type ExtractionConfig struct {
	// AmountTolerance is relative: 0.005 accepts amounts within 0.5% of each other
	AmountTolerance float64 `json:"amount_tolerance" mapstructure:"amount_tolerance"`
	// RateToleranceBps is absolute, in basis points
	RateToleranceBps float64 `json:"rate_tolerance_bps" mapstructure:"rate_tolerance_bps"`
	// AmbiguityFactor scales the confidence of a field whose strategies disagree
	AmbiguityFactor float64 `json:"ambiguity_factor" mapstructure:"ambiguity_factor"`
}

// Bracket is a named upper bound. Max of zero means unbounded and is only valid last.
type Bracket struct {
	Name string  `json:"name" mapstructure:"name"`
	Max  float64 `json:"max" mapstructure:"max"`
}

// MarketRate is one row of the market rate table
type MarketRate struct {
	Sector     string  `json:"sector" mapstructure:"sector"`
	Size       string  `json:"size" mapstructure:"size"`
	Term       string  `json:"term" mapstructure:"term"`
	Rate       float64 `json:"rate" mapstructure:"rate"`
	SampleDate string  `json:"sample_date" mapstructure:"sample_date"`
}

// MarketConfig holds the benchmark table and its bracket definitions
type MarketConfig struct {
	SizeBrackets        []Bracket    `json:"size_brackets" mapstructure:"size_brackets"`
	TermBrackets        []Bracket    `json:"term_brackets" mapstructure:"term_brackets"`
	Rates               []MarketRate `json:"rates" mapstructure:"rates"`
	DefaultDiscountRate float64      `json:"default_discount_rate" mapstructure:"default_discount_rate"`
}

// SolverConfig bounds the effective cost solver
type SolverConfig struct {
	MaxIterations int     `json:"max_iterations" mapstructure:"max_iterations"`
	Tolerance     float64 `json:"tolerance" mapstructure:"tolerance"`
}

// LevelBand names a range of aggregate risk scores; a score belongs to the first band whose Max it does not exceed
type LevelBand struct {
	Name string  `json:"name" mapstructure:"name"`
	Max  float64 `json:"max" mapstructure:"max"`
}

// RiskConfig holds category weights and the penalty each fired red flag adds
type RiskConfig struct {
	Weights         map[string]float64 `json:"weights" mapstructure:"weights"`
	SeverityPenalty map[string]float64 `json:"severity_penalty" mapstructure:"severity_penalty"`
	Levels          []LevelBand        `json:"levels" mapstructure:"levels"`
}

// DecisionConfig holds the recommendation rule set and its thresholds
type DecisionConfig struct {
	Rules      []RuleSpec         `json:"rules" mapstructure:"rules"`
	Fallback   string             `json:"fallback" mapstructure:"fallback"`
	Thresholds map[string]float64 `json:"thresholds" mapstructure:"thresholds"`
}

// ReportConfig tunes report assembly and supplementary calculations
type ReportConfig struct {
	SummaryCap           int     `json:"summary_cap" mapstructure:"summary_cap"`
	CriticalPeriodFactor float64 `json:"critical_period_factor" mapstructure:"critical_period_factor"`
	PrepaymentMonth      int     `json:"prepayment_month" mapstructure:"prepayment_month"`
}

// RuleSpec is a rule as written in a reference data file
type RuleSpec struct {
	ID         string   `json:"id" mapstructure:"id"`
	Name       string   `json:"name" mapstructure:"name"`
	Expression string   `json:"expression" mapstructure:"expression"`
	Priority   int      `json:"priority" mapstructure:"priority"`
	Disabled   bool     `json:"disabled" mapstructure:"disabled"`
	Severity   string   `json:"severity" mapstructure:"severity"`
	Category   string   `json:"category" mapstructure:"category"`
	Fields     []string `json:"fields" mapstructure:"fields"`
	Impact     string   `json:"impact" mapstructure:"impact"`
	Advice     string   `json:"advice" mapstructure:"advice"`
	Section    string   `json:"section" mapstructure:"section"`
	Template   string   `json:"template" mapstructure:"template"`
	Exclusive  bool     `json:"exclusive" mapstructure:"exclusive"`
	Group      string   `json:"group" mapstructure:"group"`
	Requires   []string `json:"requires" mapstructure:"requires"`
	Outcome    string   `json:"outcome" mapstructure:"outcome"`
}
