package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"

	"blockcoop/wallet"
)

type codeErr struct {
	code int
	msg  string
}

func (e *codeErr) Error() string  { return e.msg }
func (e *codeErr) ErrorCode() int { return e.code }

var _ rpc.Error = (*codeErr)(nil)

func TestClassify(t *testing.T) {
	loanNotActive := BlockCoopABI().Errors["LoanNotActive"].ID.Bytes()[:4]
	cases := []struct {
		name   string
		err    error
		target error
		kind   string
	}{
		{"provider rejection", &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "denied"}, ErrUserRejected, "user_rejected"},
		{"provider unauthorized", &wallet.ProviderError{Code: wallet.CodeUnauthorized, Message: "locked"}, ErrUserRejected, "user_rejected"},
		{"provider disconnected", &wallet.ProviderError{Code: wallet.CodeDisconnected, Message: "gone"}, ErrWalletUnavailable, "wallet_unavailable"},
		{"unknown chain", &wallet.ProviderError{Code: wallet.CodeUnrecognizedChain, Message: "add it"}, ErrNetworkSwitchFailed, "network_switch_failed"},
		{"rpc rejection code", &codeErr{code: 4001, msg: "nope"}, ErrUserRejected, "user_rejected"},
		{"revert string", &revertErr{data: revertReason("Token not whitelisted")}, ErrContractReverted, "contract_reverted"},
		{"custom error", &revertErr{data: loanNotActive}, ErrContractReverted, "contract_reverted"},
		{"gas funds message", errors.New("insufficient funds for gas * price + value"), ErrInsufficientFunds, "insufficient_funds"},
		{"allowance message", errors.New("ERC20: transfer amount exceeds allowance"), ErrInsufficientAllowance, "insufficient_allowance"},
		{"denied message", errors.New("MetaMask Tx Signature: User denied transaction signature."), ErrUserRejected, "user_rejected"},
		{"owner message", errors.New("Ownable: caller is not the owner"), ErrUnauthorized, "unauthorized"},
		{"already classified", fmt.Errorf("wrapped: %w", ErrAlreadyWhitelisted), ErrAlreadyWhitelisted, "already_whitelisted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if !errors.Is(got, tc.target) {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.target)
			}
			if kind := Kind(got); kind != tc.kind {
				t.Fatalf("Kind = %q, want %q", kind, tc.kind)
			}
		})
	}
}

func TestClassifyDecodesRevertReasons(t *testing.T) {
	var revert *RevertError
	if !errors.As(Classify(&revertErr{data: revertReason("Insufficient collateral")}), &revert) {
		t.Fatal("expected RevertError")
	}
	if revert.Reason != "Insufficient collateral" {
		t.Fatalf("unexpected reason %q", revert.Reason)
	}

	custom := BlockCoopABI().Errors["InsufficientRepaymentAmount"].ID.Bytes()[:4]
	if !errors.As(Classify(&revertErr{data: custom}), &revert) {
		t.Fatal("expected RevertError for custom error")
	}
	if revert.Reason != "insufficient repayment amount" {
		t.Fatalf("unexpected reason %q", revert.Reason)
	}

	if !errors.As(Classify(errors.New("execution reverted: Price feed stale")), &revert) {
		t.Fatal("expected RevertError from message")
	}
	if revert.Reason != "Price feed stale" {
		t.Fatalf("unexpected reason %q", revert.Reason)
	}
}

func TestClassifyLeavesUnknownErrors(t *testing.T) {
	raw := errors.New("connection refused")
	if got := Classify(raw); got != raw {
		t.Fatalf("expected unknown error unchanged, got %v", got)
	}
	if Kind(raw) != "unknown" {
		t.Fatalf("unexpected kind %q", Kind(raw))
	}
	if Classify(nil) != nil || Kind(nil) != "" || Describe(nil) != "" {
		t.Fatal("nil error must stay nil")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrUserRejected, "Transaction was rejected by user"},
		{ErrInsufficientFunds, "Insufficient funds for gas"},
		{ErrAccountsEmpty, "No accounts found. Please unlock or create an account in your wallet."},
		{&RevertError{Reason: "loan not active"}, "Transaction reverted: loan not active"},
		{fmt.Errorf("%w: %w", ErrInsufficientAllowance, ErrUserRejected), "Token approval failed, so the transaction was not sent: " + ErrUserRejected.Error()},
	}
	for _, tc := range cases {
		if got := Describe(tc.err); got != tc.want {
			t.Errorf("Describe(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
