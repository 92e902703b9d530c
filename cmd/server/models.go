package main

import (
	"time"

	"github.com/liamcoop/loanlens/analysis"
	"github.com/liamcoop/loanlens/rules"
)

// API request and response models

// Output formats of the analyze endpoint
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// ContractRequest is one contract submitted for analysis. Exactly one of Text and HTML is set.
type ContractRequest struct {
	Name string `json:"name,omitempty" example:"acme-credit-line"`
	Text string `json:"text,omitempty" example:"The Lender grants the Borrower a loan of USD 250,000..."`
	HTML string `json:"html,omitempty"`
}

// AnalyzeRequest is the JSON body of POST /api/v1/analyze
type AnalyzeRequest struct {
	ContractRequest
	RuleSet string `json:"rule_set,omitempty" example:"default"`
}

// BatchRequest is the body of POST /api/v1/analyze/batch
type BatchRequest struct {
	RuleSet   string            `json:"rule_set,omitempty" example:"default"`
	Contracts []ContractRequest `json:"contracts"`
}

// BatchResponse lists one result per submitted contract, in order
type BatchResponse struct {
	RuleSet   string                 `json:"rule_set"`
	Results   []analysis.BatchResult `json:"results"`
	Failed    int                    `json:"failed"`
	Duration  string                 `json:"duration" example:"41ms"`
	Completed int                    `json:"completed"`
}

// RuleSetResponse describes a loaded rule set snapshot
type RuleSetResponse struct {
	Name      string    `json:"name" example:"default"`
	Version   string    `json:"version" example:"2026-03"`
	LoadedAt  time.Time `json:"loaded_at"`
	RedFlags  int       `json:"red_flags"`
	Narrative int       `json:"narrative"`
	Decisions int       `json:"decisions"`
}

// RuleSetsListResponse represents the response for listing rule sets
type RuleSetsListResponse struct {
	RuleSets []RuleSetResponse `json:"rule_sets"`
}

// RulesListResponse lists the compiled rules of a rule set in evaluation order
type RulesListResponse struct {
	RuleSet string        `json:"rule_set"`
	Rules   []*rules.Rule `json:"rules"`
}

// RuleRequest is the body for creating or replacing a stored rule.
// The ID is optional on create; one is generated when empty.
type RuleRequest struct {
	ID         string     `json:"id,omitempty" example:"balloon_over_half"`
	Name       string     `json:"name" example:"Balloon above half of principal"`
	Kind       rules.Kind `json:"kind" example:"red_flag"`
	Expression string     `json:"expression" example:"terms.balloon.amount > terms.principal.amount / 2"`
	Priority   int        `json:"priority"`
	Active     *bool      `json:"active,omitempty" example:"true"`

	Severity string   `json:"severity,omitempty" example:"high"`
	Category string   `json:"category,omitempty" example:"liquidity"`
	Fields   []string `json:"fields,omitempty" example:"balloon,principal"`
	Impact   string   `json:"impact,omitempty"`
	Advice   string   `json:"advice,omitempty"`

	Section   string   `json:"section,omitempty"`
	Template  string   `json:"template,omitempty"`
	Exclusive bool     `json:"exclusive,omitempty"`
	Group     string   `json:"group,omitempty"`
	Requires  []string `json:"requires,omitempty"`

	Outcome string `json:"outcome,omitempty"`
}

// toRule converts the request into a rule with the given ID. Rules are active unless stated otherwise.
func (req RuleRequest) toRule(id string) *rules.Rule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &rules.Rule{
		ID:         id,
		Name:       req.Name,
		Kind:       req.Kind,
		Expression: req.Expression,
		Priority:   req.Priority,
		Active:     active,
		Severity:   req.Severity,
		Category:   req.Category,
		Fields:     req.Fields,
		Impact:     req.Impact,
		Advice:     req.Advice,
		Section:    req.Section,
		Template:   req.Template,
		Exclusive:  req.Exclusive,
		Group:      req.Group,
		Requires:   req.Requires,
		Outcome:    req.Outcome,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"rule set not loaded: conservative"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string   `json:"status" example:"healthy"`
	RuleSets []string `json:"rule_sets"`
	Database string   `json:"database,omitempty" example:"ok"`
	Error    string   `json:"error,omitempty"`
}
