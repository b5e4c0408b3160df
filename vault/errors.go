package vault

import (
	"errors"

	"github.com/oasisprotocol/custody/ledger"
)

var (
	// ErrInsufficientBalance is the kind of rejections caused by a balance
	// or allowance that is too small.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnauthorized is the kind of rejections caused by a missing role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrWithdrawalDisabled is the kind of rejections of withdrawals while
	// withdrawals are switched off.
	ErrWithdrawalDisabled = errors.New("withdrawal disabled")
	// ErrLimitExceeded is the kind of rejections of withdrawals above the
	// per-call ceiling.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrInvalidAmount is the kind of rejections of non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTokenNotSet is the kind of rejections while no token is bound.
	ErrTokenNotSet = errors.New("token not set")
)

// Revert reasons.
const (
	ReasonInsufficientAccountBalance = "Insufficient account balance"
	ReasonNotWithdrawer              = "Caller is not a withdrawer"
	ReasonWithdrawDisabled           = "Withdraw is not available"
	ReasonExceedMaximum              = "Exceed maximum amount"
	ReasonNonPositiveAmount          = "Amount must be greater than zero"
	ReasonNegativeAmount             = "Amount must not be negative"
	ReasonAmountOverflow             = "Amount exceeds uint256"
	ReasonTokenNotSet                = "Token is not set"
)

// RevertError is a rejected vault operation. Error() returns the
// human-readable reason, errors.Is matches the kind and, for rejections
// raised by the ledger, the ledger error as well.
type RevertError struct {
	Kind   error
	Reason string

	cause error
}

func (e *RevertError) Error() string {
	return e.Reason
}

func (e *RevertError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func revert(kind error, reason string) error {
	return &RevertError{Kind: kind, Reason: reason}
}

// Reason returns the revert reason carried by err, or err's message if it
// is not a rejection.
func Reason(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return err.Error()
}

// fromLedger turns the ledger's balance and allowance failures into
// rejections that carry the ledger's reason. Other errors pass through.
func fromLedger(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return &RevertError{Kind: ErrInsufficientBalance, Reason: ledger.ErrInsufficientBalance.Error(), cause: err}
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return &RevertError{Kind: ErrInsufficientBalance, Reason: ledger.ErrInsufficientAllowance.Error(), cause: err}
	default:
		return err
	}
}

// outcome names the result of an operation for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrWithdrawalDisabled):
		return "withdrawal_disabled"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrTokenNotSet):
		return "token_not_set"
	default:
		return "error"
	}
}
