package http

import (
	"log/slog"
	"net/http"

	"smartbudget/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		fail(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, s.budget.Filter(q))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.budget.Transaction(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpAdd, err)
		return
	}
	draft, err := req.draft(s.budget.Location())
	if err != nil {
		fail(w, r, log.OpAdd, err)
		return
	}

	tx, err := s.budget.Add(r.Context(), draft)
	if err != nil {
		fail(w, r, log.OpAdd, err)
		return
	}
	log.FromContext(r.Context()).LogFields(r.Context(), slog.LevelInfo, "Transaction created", log.NewFields().
		WithOperation(log.OpAdd).
		WithTransaction(tx.ID, string(tx.Type), string(tx.Category), tx.Amount.String()))
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	patch, err := req.patch(s.budget.Location())
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}

	found, err := s.budget.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, foundResponse{Found: found})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	found, err := s.budget.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, foundResponse{Found: found})
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		fail(w, r, "month", err)
		return
	}
	writeJSON(w, http.StatusOK, s.budget.TransactionsByMonth(year, month))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.budget.Summary())
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.budget.Breakdown())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.budget.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpSettings, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		fail(w, r, log.OpSettings, err)
		return
	}
	settings, err := s.budget.UpdateSettings(r.Context(), patch)
	if err != nil {
		fail(w, r, log.OpSettings, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Describe())
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	out, err := s.tools.Call(r.Context(), r.PathValue("name"))
	if err != nil {
		fail(w, r, "tool", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}
