package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"stash/internal/core"
	applog "stash/internal/log"
	"stash/internal/services"
	"stash/internal/storage"
)

type allocationPayload struct {
	Liquid      float64 `json:"liquid"`
	Frozen      float64 `json:"frozen"`
	DeepFreeze  float64 `json:"deep_freeze"`
	Unallocated float64 `json:"unallocated"`
	Total       float64 `json:"total"`
}

type accountPayload struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	AccountType string             `json:"account_type"`
	Balance     float64            `json:"balance"`
	Notes       string             `json:"notes,omitempty"`
	Rules       core.RuleList      `json:"allocation_rules"`
	Allocation  *allocationPayload `json:"allocation,omitempty"`
}

type rulesPayload struct {
	Rules      core.RuleList     `json:"allocation_rules"`
	Allocation allocationPayload `json:"allocation"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func toAllocationPayload(result core.AllocationResult) allocationPayload {
	return allocationPayload{
		Liquid:      result.Liquid.Units(),
		Frozen:      result.Frozen.Units(),
		DeepFreeze:  result.DeepFreeze.Units(),
		Unallocated: result.Unallocated.Units(),
		Total:       result.Total().Units(),
	}
}

func toAccountPayload(snap services.AllocationSnapshot) accountPayload {
	alloc := toAllocationPayload(snap.Result)
	return accountPayload{
		ID:          snap.Account.ID,
		Name:        snap.Account.Name,
		AccountType: snap.Account.AccountType,
		Balance:     snap.Account.Balance.Units(),
		Notes:       snap.Account.Notes,
		Rules:       snap.Account.Rules,
		Allocation:  &alloc,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response",
			"error", err, "url", r.URL.Path)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorPayload{Error: msg})
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidRule), errors.Is(err, core.ErrInvalidAmount):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrProtectedRule):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotFound), errors.Is(err, storage.ErrAccountNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"error", err, "url", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
