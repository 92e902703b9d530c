package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/loanlens/internal/logger"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/rules"
)

func ruleSetResponse(name string, ref *refdata.Reference) RuleSetResponse {
	return RuleSetResponse{
		Name:      name,
		Version:   ref.Version,
		LoadedAt:  ref.LoadedAt,
		RedFlags:  len(ref.RedFlags.Rules()),
		Narrative: len(ref.Narrative.Rules()),
		Decisions: len(ref.Decisions.Rules()),
	}
}

// List rule sets handler
func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	resp := RuleSetsListResponse{RuleSets: []RuleSetResponse{}}
	for _, name := range s.refs.RuleSets() {
		ref, err := s.refs.Get(name)
		if err != nil {
			// removed between the two calls
			continue
		}
		resp.RuleSets = append(resp.RuleSets, ruleSetResponse(name, ref))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get rule set handler
func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")

	ref, err := s.refs.Get(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}
	respondJSON(w, http.StatusOK, ruleSetResponse(name, ref))
}

// Reload handler. Rebuilds the rule set from its source and swaps it in;
// a rejected reload leaves the current snapshot in service.
func (s *Server) handleReloadRuleSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")

	// only stored rule sets can appear at runtime; file rule sets are fixed at start-up
	if _, err := s.refs.Get(name); err != nil {
		if _, ok := s.postgres(); !ok {
			respondError(w, http.StatusNotFound, "rule set not found", err)
			return
		}
	}

	if err := s.reload(r.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if refdata.IsConfigurationError(err) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, "reload rejected", err)
		return
	}

	ref, err := s.refs.Get(name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rule set vanished after reload", err)
		return
	}
	respondJSON(w, http.StatusOK, ruleSetResponse(name, ref))
}

// List rules handler. The optional kind query parameter filters by rule kind.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")

	ref, err := s.refs.Get(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}

	kind := rules.Kind(r.URL.Query().Get("kind"))
	resp := RulesListResponse{RuleSet: name, Rules: []*rules.Rule{}}
	for _, en := range []*rules.Engine{ref.RedFlags, ref.Narrative, ref.Decisions} {
		if kind != "" && en.Kind() != kind {
			continue
		}
		resp.Rules = append(resp.Rules, en.Rules()...)
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	ref, err := s.refs.Get(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}

	for _, en := range []*rules.Engine{ref.RedFlags, ref.Narrative, ref.Decisions} {
		if rule, ok := en.Rule(ruleID); ok {
			respondJSON(w, http.StatusOK, rule)
			return
		}
	}
	respondError(w, http.StatusNotFound, "rule not found", nil)
}

// Create rule handler. The rule set is rebuilt with the new rule before anything is written.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, bodyErrorStatus(err), "invalid request body", err)
		return
	}

	if req.Name == "" || req.Expression == "" || req.Kind == "" {
		respondError(w, http.StatusBadRequest, "name, kind and expression are required", nil)
		return
	}

	id := req.ID
	if id == "" {
		id = newRuleID()
	}
	rule := req.toRule(id)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pg, _ := s.postgres()
	if err := pg.Check(r.Context(), name, func(st rules.RuleStore) error { return st.Add(rule) }); err != nil {
		respondError(w, ruleErrorStatus(err), "rule rejected", err)
		return
	}

	store := rules.NewPostgresRuleStore(s.db, name)
	if err := store.EnsureRuleSet(""); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule set", err)
		return
	}
	if err := store.Add(rule); err != nil {
		respondError(w, ruleErrorStatus(err), "failed to add rule", err)
		return
	}

	s.applied(r, name, "rule created", rule.ID)
	respondJSON(w, http.StatusCreated, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, bodyErrorStatus(err), "invalid request body", err)
		return
	}
	if req.ID != "" && req.ID != ruleID {
		respondError(w, http.StatusBadRequest, "rule id cannot be changed", nil)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pg, _ := s.postgres()
	check := req.toRule(ruleID)
	if err := pg.Check(r.Context(), name, func(st rules.RuleStore) error { return st.Update(check) }); err != nil {
		respondError(w, ruleErrorStatus(err), "rule rejected", err)
		return
	}

	rule := req.toRule(ruleID)
	if err := rules.NewPostgresRuleStore(s.db, name).Update(rule); err != nil {
		respondError(w, ruleErrorStatus(err), "failed to update rule", err)
		return
	}

	s.applied(r, name, "rule updated", rule.ID)
	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ruleSet")
	ruleID := chi.URLParam(r, "ruleId")

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pg, _ := s.postgres()
	if err := pg.Check(r.Context(), name, func(st rules.RuleStore) error { return st.Delete(ruleID) }); err != nil {
		respondError(w, ruleErrorStatus(err), "rule deletion rejected", err)
		return
	}

	if err := rules.NewPostgresRuleStore(s.db, name).Delete(ruleID); err != nil {
		respondError(w, ruleErrorStatus(err), "failed to delete rule", err)
		return
	}

	s.applied(r, name, "rule deleted", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

// applied logs a stored rule change and swaps in the rebuilt rule set.
// The change was checked beforehand, so a failed reload here means the database moved underneath us;
// reload logs it and the previous snapshot stays in service.
func (s *Server) applied(r *http.Request, ruleSet, msg, ruleID string) {
	logger.Info(msg, "rule_set", ruleSet, "rule_id", ruleID)
	_ = s.reload(r.Context(), ruleSet)
}

func ruleErrorStatus(err error) int {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicate):
		return http.StatusConflict
	case refdata.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// newRuleID returns a rule identifier that is also a valid CEL identifier
func newRuleID() string {
	return "rule_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
