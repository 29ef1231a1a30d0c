package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"gitlab.com/yelinaung/sharedbudget/internal/budget"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/report"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
)

// maxBodyBytes leaves room for a base64 profile picture plus the envelope.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("malformed request")

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated), errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound), errors.Is(err, report.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotOwner), errors.Is(err, models.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, models.ErrCannotRemoveOwner),
		errors.Is(err, models.ErrAlreadyShared),
		errors.Is(err, models.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientBudget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrPictureTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrEmptyName),
		errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrInvalidInterval),
		errors.Is(err, models.ErrInvalidEntryType),
		errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, models.ErrWeakPassword),
		errors.Is(err, models.ErrInvalidPicture):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// cascadeStatus is 200 when every step succeeded and 207 otherwise, so the
// client knows to retry. Empty step lists encode as [] rather than null.
func cascadeStatus(result service.CascadeResult) (int, service.CascadeResult) {
	if result.Succeeded == nil {
		result.Succeeded = []string{}
	}
	if result.Failed == nil {
		result.Failed = []service.StepFailure{}
	}
	if !result.OK() {
		return http.StatusMultiStatus, result
	}
	return http.StatusOK, result
}

func writeCascade(w http.ResponseWriter, result service.CascadeResult) {
	status, result := cascadeStatus(result)
	writeJSON(w, status, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, models.ErrInvalidDate) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body over %d bytes", models.ErrPictureTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// amount accepts a JSON number or a string such as "12,50".
type amount string

func (a *amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = amount(s)
		return nil
	}
	*a = amount(strings.TrimSpace(string(data)))
	return nil
}

// positive parses an expense amount.
func (a amount) positive() (decimal.Decimal, error) {
	return budget.ParseAmount(string(a))
}

// nonNegative parses a ceiling, where zero is allowed.
func (a amount) nonNegative() (decimal.Decimal, error) {
	if d, err := decimal.NewFromString(strings.TrimSpace(string(a))); err == nil && d.IsZero() {
		return decimal.Zero, nil
	}
	return budget.ParseAmount(string(a))
}
