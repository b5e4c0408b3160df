package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/vault"
)

func TestHttpCodeForError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{ErrMissingCaller, http.StatusBadRequest},
		{badRequest("x"), http.StatusBadRequest},
		{&vault.RevertError{Kind: vault.ErrInvalidAmount, Reason: "r"}, http.StatusBadRequest},
		{&vault.RevertError{Kind: vault.ErrTokenNotSet, Reason: "r"}, http.StatusBadRequest},
		{ledger.ErrTransferToZero, http.StatusBadRequest},
		{ledger.ErrAmountOverflow, http.StatusBadRequest},
		{&vault.RevertError{Kind: vault.ErrUnauthorized, Reason: "r"}, http.StatusForbidden},
		{&vault.RevertError{Kind: vault.ErrWithdrawalDisabled, Reason: "r"}, http.StatusConflict},
		{&vault.RevertError{Kind: vault.ErrLimitExceeded, Reason: "r"}, http.StatusConflict},
		{&vault.RevertError{Kind: vault.ErrInsufficientBalance, Reason: "r"}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", ledger.ErrInsufficientAllowance), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		require.Equal(t, tc.code, HttpCodeForError(tc.err), tc.err.Error())
	}
}

func TestHumanReadableJsonErrorHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HumanReadableJsonErrorHandler(w, httptest.NewRequest("GET", "/", nil),
		&vault.RevertError{Kind: vault.ErrLimitExceeded, Reason: vault.ReasonExceedMaximum})

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("content-type"))
	require.JSONEq(t, `{"msg":"Exceed maximum amount"}`, w.Body.String())
}
