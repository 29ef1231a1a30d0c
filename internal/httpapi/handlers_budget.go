package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitlab.com/yelinaung/sharedbudget/internal/budget"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/report"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
)

type entryRequest struct {
	Category string      `json:"category"`
	Expense  string      `json:"expense"`
	Amount   amount      `json:"amount"`
	Date     models.Date `json:"date"`
}

type recurringRequest struct {
	Category  string           `json:"category"`
	Expense   string           `json:"expense"`
	Amount    amount           `json:"amount"`
	Interval  models.Interval  `json:"interval"`
	StartDate models.Date      `json:"startDate"`
	EndDate   models.Date      `json:"endDate"`
	Type      models.EntryType `json:"type"`
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Budgets.Get(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Budgets.Summary(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings service.Settings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Budgets.UpdateSettings(r.Context(), caller(r), settings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
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

	user, err := s.deps.Budgets.AddEntry(r.Context(), caller(r), req.Category, req.Expense, value, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteEntry removes one expense, or the whole category when the
// expense segment is absent.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Budgets.DeleteEntry(r.Context(), caller(r),
		chi.URLParam(r, "category"), chi.URLParam(r, "expense"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleAddRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	value, err := req.Amount.positive()
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.deps.Budgets.AddRecurringEntry(r.Context(), caller(r), models.RecurringEntry{
		Category:  req.Category,
		Expense:   req.Expense,
		Amount:    value,
		Interval:  req.Interval,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Type:      req.Type,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRemoveRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Budgets.RemoveRecurringEntry(r.Context(), caller(r), chi.URLParam(r, "entryID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) today() models.Date {
	return models.DateOf(s.deps.Clock())
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Budgets.Get(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := report.BudgetCSV(user.Budget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "text/csv", report.CSVFilename(s.today()), data)
}

func (s *Server) handleSavingsCSV(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Budgets.Summary(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := report.SavingsCSV(summary.MonthlySavings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "text/csv", "savings_"+report.CSVFilename(s.today()), data)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Budgets.Get(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	today := s.today()
	data, err := report.BudgetChart(budget.CategoryTotals(user.Budget), fmt.Sprintf("Expenses %s", today.MonthKey()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "image/png", report.ChartFilename(today), data)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
