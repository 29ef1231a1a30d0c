package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

type groupBudgetRequest struct {
	Name    string `json:"name"`
	Ceiling amount `json:"ceiling"`
}

type ceilingRequest struct {
	Ceiling amount `json:"ceiling"`
}

func (s *Server) handleListGroupBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.deps.GroupBudgets.List(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []models.GroupBudget{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleCreateGroupBudget(w http.ResponseWriter, r *http.Request) {
	var req groupBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ceiling, err := req.Ceiling.nonNegative()
	if err != nil {
		writeError(w, r, err)
		return
	}
	gb, err := s.deps.GroupBudgets.Create(r.Context(), caller(r), chi.URLParam(r, "groupID"), req.Name, ceiling)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, gb)
}

func (s *Server) handleGetGroupBudget(w http.ResponseWriter, r *http.Request) {
	gb, err := s.deps.GroupBudgets.Get(r.Context(), caller(r), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gb)
}

func (s *Server) handleDeleteGroupBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.GroupBudgets.Delete(r.Context(), caller(r), chi.URLParam(r, "budgetID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	var req ceilingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ceiling, err := req.Ceiling.nonNegative()
	if err != nil {
		writeError(w, r, err)
		return
	}
	gb, err := s.deps.GroupBudgets.SetCeiling(r.Context(), caller(r), chi.URLParam(r, "budgetID"), ceiling)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gb)
}

// handleAddGroupExpense answers 422 when the expense would overdraw the
// budget; the budget is left unchanged in that case.
func (s *Server) handleAddGroupExpense(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	value, err := req.Amount.positive()
	if err != nil {
		writeError(w, r, err)
		return
	}
	gb, err := s.deps.GroupBudgets.AddExpense(r.Context(), caller(r), chi.URLParam(r, "budgetID"),
		req.Category, req.Expense, value, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gb)
}

func (s *Server) handleDeleteGroupExpense(w http.ResponseWriter, r *http.Request) {
	gb, err := s.deps.GroupBudgets.DeleteExpense(r.Context(), caller(r), chi.URLParam(r, "budgetID"),
		chi.URLParam(r, "category"), chi.URLParam(r, "expense"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gb)
}

func (s *Server) handleListSharedBudgets(w http.ResponseWriter, r *http.Request) {
	shared, err := s.deps.Sharing.ListByGroup(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if shared == nil {
		shared = []models.SharedBudget{}
	}
	writeJSON(w, http.StatusOK, shared)
}

func (s *Server) handleShareBudget(w http.ResponseWriter, r *http.Request) {
	sb, err := s.deps.Sharing.Share(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sb)
}

func (s *Server) handleGetSharedBudget(w http.ResponseWriter, r *http.Request) {
	sb, err := s.deps.Sharing.Get(r.Context(), caller(r), chi.URLParam(r, "sharedID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (s *Server) handleUnshareBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sharing.Unshare(r.Context(), caller(r), chi.URLParam(r, "sharedID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
