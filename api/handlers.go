package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/evmabi"
	"github.com/oasisprotocol/custody/vault"
)

const maxBodyBytes = 1 << 16

type handlerFunc func(r *http.Request) (interface{}, error)

// handle renders the result of fn as JSON, or the error it returns.
func (h *Handler) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r)
		if err != nil {
			if HttpCodeForError(err) == http.StatusInternalServerError {
				h.logger.Error("request failed",
					"path", r.URL.Path,
					"request_id", r.Context().Value(common.RequestIDContextKey),
					"err", err,
				)
			}
			HumanReadableJsonErrorHandler(w, r, err)
			return
		}
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			h.logger.Warn("failed to write response", "err", err)
		}
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("body: %v", err)
	}
	return nil
}

func callerFrom(r *http.Request) (ethCommon.Address, error) {
	caller, ok := r.Context().Value(common.CallerContextKey).(ethCommon.Address)
	if !ok {
		return ethCommon.Address{}, ErrMissingCaller
	}
	return caller, nil
}

func addressParam(r *http.Request, name string) (ethCommon.Address, error) {
	addr, err := common.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return ethCommon.Address{}, badRequest("%s: %v", name, err)
	}
	return addr, nil
}

func requireAmount(amount *common.BigInt) error {
	if amount == nil {
		return badRequest("missing amount")
	}
	return nil
}

func (h *Handler) getStatus(r *http.Request) (interface{}, error) {
	return h.vault.Status(r.Context())
}

func (h *Handler) setToken(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	var req SetTokenRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := h.vault.SetToken(r.Context(), caller, req.Token); err != nil {
		return nil, err
	}
	return h.vault.Status(r.Context())
}

func (h *Handler) setWithdrawEnabled(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	var req SetWithdrawEnabledRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.Enabled == nil {
		return nil, badRequest("missing enabled")
	}
	if err := h.vault.SetWithdrawEnable(r.Context(), caller, *req.Enabled); err != nil {
		return nil, err
	}
	return h.vault.Status(r.Context())
}

func (h *Handler) setMaxWithdrawAmount(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := h.vault.SetMaxWithdrawAmount(r.Context(), caller, req.Amount.Ptr()); err != nil {
		return nil, err
	}
	return h.vault.Status(r.Context())
}

func roleParam(r *http.Request) (vault.Role, error) {
	role, err := vault.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return vault.Role{}, badRequest("role: %v", err)
	}
	return role, nil
}

func (h *Handler) roleMembers(role vault.Role) *RoleMembers {
	name, _ := role.Name()
	return &RoleMembers{
		Role:    role,
		Name:    name,
		Members: h.vault.RoleMembers(role),
	}
}

func (h *Handler) getRoleMembers(r *http.Request) (interface{}, error) {
	role, err := roleParam(r)
	if err != nil {
		return nil, err
	}
	return h.roleMembers(role), nil
}

func (h *Handler) grantRole(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	role, err := roleParam(r)
	if err != nil {
		return nil, err
	}
	var req GrantRoleRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := h.vault.GrantRole(r.Context(), caller, role, req.Account); err != nil {
		return nil, err
	}
	return h.roleMembers(role), nil
}

func (h *Handler) deposit(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := h.vault.Deposit(r.Context(), caller, req.Amount.Ptr()); err != nil {
		return nil, err
	}
	return h.vault.Status(r.Context())
}

func (h *Handler) withdraw(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := h.vault.Withdraw(r.Context(), caller, req.To, req.Amount.Ptr()); err != nil {
		return nil, err
	}
	return h.vault.Status(r.Context())
}

func (h *Handler) listEvents(r *http.Request) (interface{}, error) {
	if h.events == nil {
		return nil, errors.New("no event journal configured")
	}
	p, err := newPagination(r)
	if err != nil {
		return nil, err
	}
	events, err := h.events.List(p.Offset, p.Limit)
	if err != nil {
		return nil, err
	}
	list := EventList{Events: make([]EventWithLogs, 0, len(events))}
	for _, ev := range events {
		l, err := evmabi.EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		transfer, err := evmabi.TransferLog(ev)
		if err != nil {
			return nil, err
		}
		list.Events = append(list.Events, EventWithLogs{Event: ev, Log: l, TransferLog: transfer})
	}
	return &list, nil
}

func (h *Handler) getBalance(r *http.Request) (interface{}, error) {
	token, err := addressParam(r, "token")
	if err != nil {
		return nil, err
	}
	account, err := addressParam(r, "account")
	if err != nil {
		return nil, err
	}
	balance, err := h.ledger.BalanceOf(r.Context(), token, account)
	if err != nil {
		return nil, err
	}
	return &Balance{Token: token, Account: account, Balance: common.BigIntFromInt(balance)}, nil
}

func (h *Handler) getAllowance(r *http.Request) (interface{}, error) {
	token, err := addressParam(r, "token")
	if err != nil {
		return nil, err
	}
	owner, err := addressParam(r, "owner")
	if err != nil {
		return nil, err
	}
	spender, err := addressParam(r, "spender")
	if err != nil {
		return nil, err
	}
	allowance, err := h.ledger.Allowance(r.Context(), token, owner, spender)
	if err != nil {
		return nil, err
	}
	return &Allowance{Token: token, Owner: owner, Spender: spender, Allowance: common.BigIntFromInt(allowance)}, nil
}

func (h *Handler) approve(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	token, err := addressParam(r, "token")
	if err != nil {
		return nil, err
	}
	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := h.ledger.Approve(r.Context(), token, caller, req.Spender, req.Amount.Ptr()); err != nil {
		return nil, err
	}
	return &Allowance{Token: token, Owner: caller, Spender: req.Spender, Allowance: *req.Amount}, nil
}

func (h *Handler) transfer(r *http.Request) (interface{}, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return nil, err
	}
	token, err := addressParam(r, "token")
	if err != nil {
		return nil, err
	}
	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := h.ledger.Transfer(r.Context(), token, caller, req.To, req.Amount.Ptr()); err != nil {
		return nil, err
	}
	balance, err := h.ledger.BalanceOf(r.Context(), token, caller)
	if err != nil {
		return nil, err
	}
	return &Balance{Token: token, Account: caller, Balance: common.BigIntFromInt(balance)}, nil
}
