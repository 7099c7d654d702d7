package contract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"blockcoop/wallet"
)

// Wallet-level failures are shared with the wallet package so errors.Is works on
// either name.
var (
	ErrWalletUnavailable   = wallet.ErrWalletUnavailable
	ErrUserRejected        = wallet.ErrUserRejected
	ErrAccountsEmpty       = wallet.ErrAccountsEmpty
	ErrNetworkSwitchFailed = wallet.ErrNetworkSwitchFailed
)

var (
	ErrInsufficientFunds     = errors.New("contract: insufficient funds for gas")
	ErrInsufficientBalance   = errors.New("contract: insufficient token balance")
	ErrInsufficientAllowance = errors.New("contract: token approval failed")
	ErrUnauthorized          = errors.New("contract: caller lacks the required role")
	ErrAlreadyWhitelisted    = errors.New("contract: token already whitelisted")
	ErrNotWhitelisted        = errors.New("contract: token not whitelisted")
	ErrContractReverted      = errors.New("contract: execution reverted")
	ErrReadFailure           = errors.New("contract: read failed")
	ErrInvalidArgument       = errors.New("contract: invalid argument")
)

// RevertError carries the reason a transaction or call was reverted. Reason is the
// Error(string) message, the custom error name or a panic description.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return ErrContractReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrContractReverted.Error(), e.Reason)
}

func (e *RevertError) Unwrap() error { return ErrContractReverted }

// customErrorReasons maps the contract's custom errors to readable reasons.
var customErrorReasons = map[string]string{
	"InsufficientRepaymentAmount": "insufficient repayment amount",
	"LoanAlreadyRepaid":           "loan already repaid",
	"LoanNotActive":               "loan not active",
	"UnauthorizedRepayment":       "unauthorized repayment",
}

// decodeRevert interprets revert data: Error(string), Panic(uint256) or one of the
// contract's custom errors.
func decodeRevert(data []byte) *RevertError {
	if len(data) == 0 {
		return &RevertError{}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &RevertError{Reason: reason, Data: data}
	}
	if len(data) >= 4 {
		for name, def := range BlockCoopABI().Errors {
			if bytes.Equal(def.ID.Bytes()[:4], data[:4]) {
				reason := customErrorReasons[name]
				if reason == "" {
					reason = name
				}
				return &RevertError{Reason: reason, Data: data}
			}
		}
	}
	return &RevertError{Reason: "unrecognised revert data " + hexutil.Encode(data), Data: data}
}

func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		raw, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return nil, false
		}
		return raw, true
	case []byte:
		return data, true
	case hexutil.Bytes:
		return data, true
	}
	return nil, false
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		ErrWalletUnavailable, ErrUserRejected, ErrAccountsEmpty, ErrNetworkSwitchFailed,
		ErrInsufficientFunds, ErrInsufficientBalance, ErrInsufficientAllowance, ErrUnauthorized,
		ErrAlreadyWhitelisted, ErrNotWhitelisted, ErrContractReverted, ErrReadFailure, ErrInvalidArgument,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Classify maps a raw wallet, RPC or node error onto the taxonomy. Structured codes
// and revert data are preferred; message matching is the last resort. Errors that
// match nothing are returned unchanged.
func Classify(err error) error {
	if err == nil || isTaxonomy(err) {
		return err
	}
	var perr *wallet.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case wallet.CodeUserRejected, wallet.CodeUnauthorized:
			return fmt.Errorf("%w: %w", ErrUserRejected, err)
		case wallet.CodeDisconnected, wallet.CodeChainDisconnected, wallet.CodeUnsupportedMethod:
			return fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
		case wallet.CodeUnrecognizedChain:
			return fmt.Errorf("%w: %w", ErrNetworkSwitchFailed, err)
		}
	}
	if data, ok := revertData(err); ok {
		return decodeRevert(data)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == wallet.CodeUserRejected {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	return classifyMessage(err)
}

func classifyMessage(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case strings.Contains(msg, "insufficient balance"), strings.Contains(msg, "exceeds balance"):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case strings.Contains(msg, "insufficient allowance"), strings.Contains(msg, "exceeds allowance"):
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	case strings.Contains(msg, "already whitelisted"):
		return fmt.Errorf("%w: %w", ErrAlreadyWhitelisted, err)
	case strings.Contains(msg, "not whitelisted"):
		return fmt.Errorf("%w: %w", ErrNotWhitelisted, err)
	case strings.Contains(msg, "not owner"), strings.Contains(msg, "caller is not the owner"), strings.Contains(msg, "not authorized"), strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case strings.Contains(msg, "execution reverted"):
		_, reason, _ := strings.Cut(err.Error(), "execution reverted")
		reason = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(reason), ":"))
		return &RevertError{Reason: reason}
	}
	return err
}

// Kind returns a stable label for err, suitable for metrics and logs. nil yields "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetworkSwitchFailed):
		return "network_switch_failed"
	case errors.Is(err, ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, ErrWalletUnavailable):
		return "wallet_unavailable"
	case errors.Is(err, ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, ErrAccountsEmpty):
		return "accounts_empty"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyWhitelisted):
		return "already_whitelisted"
	case errors.Is(err, ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, ErrContractReverted):
		return "contract_reverted"
	case errors.Is(err, ErrReadFailure):
		return "read_failure"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Describe renders err as an actionable message for the account holder.
func Describe(err error) string {
	var revert *RevertError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetworkSwitchFailed):
		return "Could not switch the wallet to the configured network. Add or select it in your wallet and retry."
	case errors.Is(err, ErrInsufficientAllowance):
		return "Token approval failed, so the transaction was not sent: " + rootMessage(err)
	case errors.Is(err, ErrWalletUnavailable):
		return "No wallet is available. Configure a keystore directory or a remote signer."
	case errors.Is(err, ErrUserRejected):
		return "Transaction was rejected by user"
	case errors.Is(err, ErrAccountsEmpty):
		return "No accounts found. Please unlock or create an account in your wallet."
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient funds for gas"
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient token balance"
	case errors.Is(err, ErrUnauthorized):
		return "Your account does not have the role required for this action"
	case errors.Is(err, ErrAlreadyWhitelisted):
		return "Token is already whitelisted"
	case errors.Is(err, ErrNotWhitelisted):
		return "Token is not whitelisted"
	case errors.As(err, &revert):
		if revert.Reason == "" {
			return "Transaction reverted by the contract"
		}
		return "Transaction reverted: " + revert.Reason
	case errors.Is(err, ErrReadFailure):
		return "Could not read contract state. Check the RPC endpoint and try again."
	case errors.Is(err, ErrInvalidArgument):
		return rootMessage(err)
	default:
		return err.Error()
	}
}

func rootMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{ErrInsufficientAllowance.Error() + ": ", ErrInvalidArgument.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
