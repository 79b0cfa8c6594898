package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"stash/internal/core"
	"stash/internal/services"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	payload := make([]accountPayload, 0, len(views))
	for _, v := range views {
		payload = append(payload, toAccountPayload(services.AllocationSnapshot{
			Account: v,
			Result:  core.Allocate(v.Balance, v.Rules),
		}))
	}
	writeJSON(w, r, http.StatusOK, payload)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		AccountType string `json:"account_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := s.service.CreateAccount(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.AccountType))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toAccountPayload(services.AllocationSnapshot{
		Account: v,
		Result:  core.Allocate(v.Balance, v.Rules),
	}))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := s.getSnapshot(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAccountPayload(snap))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteAccount(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Balance json.RawMessage `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Balance) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	// Accept the balance as either a JSON string or a bare number.
	balance := strings.Trim(string(req.Balance), `"`)

	snap, err := s.service.UpdateBalance(r.Context(), id, balance)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.snapshotCache.Set(id, snap)

	writeJSON(w, r, http.StatusOK, toAccountPayload(snap))
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	snap, err := s.getSnapshot(r, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAllocationPayload(snap.Result))
}

// handleReplaceRules swaps in a whole rule list. An empty body commits
// the current list instead, which ends any open edit session.
func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		rules, err := s.service.SaveRules(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		s.respondRules(w, r, id, rules)
		return
	}

	var rules []core.AllocationRule
	if err := json.Unmarshal(body, &rules); err != nil {
		if errors.Is(err, core.ErrInvalidRule) {
			writeServiceError(w, r, err)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid rule list")
		return
	}

	saved, err := s.service.ReplaceRules(r.Context(), id, rules)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRules(w, r, id, saved)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// New rules may arrive without an id; the service generates one.
	var rule core.AllocationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		if errors.Is(err, core.ErrInvalidRule) {
			writeServiceError(w, r, err)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid rule")
		return
	}

	rules, err := s.service.AddRule(r.Context(), id, rule)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRulesStatus(w, r, id, rules, http.StatusCreated)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ruleID := r.PathValue("ruleID")

	var req struct {
		Name   *string  `json:"name"`
		Type   *string  `json:"type"`
		Value  *float64 `json:"value"`
		Status *string  `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, err := s.buildPatch(r, id, ruleID, req.Name, req.Type, req.Value, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rules, err := s.service.UpdateRule(r.Context(), id, ruleID, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRules(w, r, id, rules)
}

// buildPatch translates the wire-level patch into a core.RulePatch. The
// "value" field means a fixed amount or a percentage depending on the
// rule's effective kind after the patch.
func (s *Server) buildPatch(r *http.Request, accountID, ruleID string, name, kindStr *string, value *float64, status *string) (core.RulePatch, error) {
	var patch core.RulePatch
	patch.Name = name

	if kindStr != nil {
		kind, err := core.ParseRuleKind(*kindStr)
		if err != nil {
			return core.RulePatch{}, err
		}
		patch.Kind = &kind
	}
	if status != nil {
		bucket, err := core.ParseBucket(*status)
		if err != nil {
			return core.RulePatch{}, err
		}
		patch.Bucket = &bucket
	}

	if value != nil {
		kind := core.KindRemaining
		if patch.Kind != nil {
			kind = *patch.Kind
		} else {
			v, err := s.service.GetAccount(r.Context(), accountID)
			if err != nil {
				return core.RulePatch{}, err
			}
			found := false
			for _, rule := range v.Rules {
				if rule.ID == ruleID {
					kind = rule.Kind
					found = true
					break
				}
			}
			if !found {
				return core.RulePatch{}, core.ErrNotFound
			}
		}

		switch kind {
		case core.KindFixed:
			amount := core.Money{Milliunits: core.UnitsToMilliunits(*value)}
			patch.Amount = &amount
		default:
			// Percentage, or remaining where core rejects the edit.
			patch.Percent = value
		}
	}

	return patch, nil
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rules, err := s.service.DeleteRule(r.Context(), id, r.PathValue("ruleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRules(w, r, id, rules)
}

// handleMoveRule swaps a rule with its neighbor. Boundary moves return
// the unchanged list with 200.
func (s *Server) handleMoveRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ruleID := r.PathValue("ruleID")

	var req struct {
		Direction int `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := s.service.GetAccount(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	index := -1
	for i, rule := range v.Rules {
		if rule.ID == ruleID {
			index = i
			break
		}
	}
	if index < 0 {
		writeServiceError(w, r, core.ErrNotFound)
		return
	}

	rules, err := s.service.MoveRule(r.Context(), id, index, req.Direction)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRules(w, r, id, rules)
}

// handleCancelEdit discards a rule added during the current edit
// session and never saved. Saved rules are left untouched.
func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rules, err := s.service.CancelEdit(r.Context(), id, r.PathValue("ruleID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.respondRules(w, r, id, rules)
}

// getSnapshot serves computed snapshots through the TTL cache.
func (s *Server) getSnapshot(r *http.Request, id string) (services.AllocationSnapshot, error) {
	if snap, ok := s.snapshotCache.Get(id); ok {
		return snap, nil
	}
	snap, err := s.service.GetSnapshot(r.Context(), id)
	if err != nil {
		return services.AllocationSnapshot{}, err
	}
	s.snapshotCache.Set(id, snap)
	return snap, nil
}

func (s *Server) respondRules(w http.ResponseWriter, r *http.Request, id string, rules core.RuleList) {
	s.respondRulesStatus(w, r, id, rules, http.StatusOK)
}

// respondRulesStatus responds with the fresh rule list and recomputed
// allocation so the caller can render atomically.
func (s *Server) respondRulesStatus(w http.ResponseWriter, r *http.Request, id string, rules core.RuleList, status int) {
	s.snapshotCache.Delete(id)
	snap, err := s.getSnapshot(r, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, status, rulesPayload{
		Rules:      rules,
		Allocation: toAllocationPayload(snap.Result),
	})
}
