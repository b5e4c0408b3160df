package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/vault"
)

var (
	// ErrBadRequest is returned when the provided HTTP request
	// is malformed.
	ErrBadRequest = errors.New("invalid request parameters")
	// ErrMissingCaller is returned when an operation needs a caller and
	// the request does not name one.
	ErrMissingCaller = fmt.Errorf("%w: missing %s header", ErrBadRequest, CallerHeader)
)

// HumanReadableError is the JSON body of every error response.
type HumanReadableError struct {
	Msg string `json:"msg"`
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func HttpCodeForError(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrTokenNotSet),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrAmountOverflow),
		errors.Is(err, ledger.ErrTransferFromZero),
		errors.Is(err, ledger.ErrTransferToZero),
		errors.Is(err, ledger.ErrApproveZero):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrWithdrawalDisabled),
		errors.Is(err, vault.ErrLimitExceeded),
		errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// A simple error handler that renders any error as human-readable JSON to
// the HTTP response stream `w`.
func HumanReadableJsonErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("x-content-type-options", "nosniff")
	w.WriteHeader(HttpCodeForError(err))

	_ = json.NewEncoder(w).Encode(HumanReadableError{Msg: vault.Reason(err)})
}
