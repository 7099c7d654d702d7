package passphrase

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"blockcoop/wallet"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newTestSource(envVar string, answer string) *Source {
	s := NewSource(envVar)
	s.isTerminal = func() bool { return true }
	s.readSecret = func() ([]byte, error) { return []byte(answer), nil }
	s.out = &bytes.Buffer{}
	return s
}

func TestLookupUsesEnvironment(t *testing.T) {
	t.Setenv("BLOCKCOOP_TEST_PASS", "hunter2")
	s := newTestSource("BLOCKCOOP_TEST_PASS", "")
	got, ok := s.Lookup(testAccount)
	if !ok || got != "hunter2" {
		t.Fatalf("unexpected lookup result %q %v", got, ok)
	}
}

func TestLookupIgnoresBlankEnvironment(t *testing.T) {
	t.Setenv("BLOCKCOOP_TEST_PASS", "   ")
	s := newTestSource("BLOCKCOOP_TEST_PASS", "")
	if _, ok := s.Lookup(testAccount); ok {
		t.Fatal("blank environment value must not be used")
	}
}

func TestPromptCachesAnswer(t *testing.T) {
	s := newTestSource("", "s3cret")
	got, err := s.Prompt(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("unexpected passphrase %q", got)
	}
	cached, ok := s.Lookup(testAccount)
	if !ok || cached != "s3cret" {
		t.Fatalf("expected cached passphrase, got %q %v", cached, ok)
	}
}

func TestPromptEmptyAnswerDeclines(t *testing.T) {
	s := newTestSource("", "  ")
	if _, err := s.Prompt(context.Background(), testAccount); !errors.Is(err, wallet.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestPromptWithoutTerminal(t *testing.T) {
	s := newTestSource("BLOCKCOOP_TEST_PASS", "ignored")
	s.isTerminal = func() bool { return false }
	_, err := s.Prompt(context.Background(), testAccount)
	if err == nil || !strings.Contains(err.Error(), "BLOCKCOOP_TEST_PASS") {
		t.Fatalf("expected hint about env var, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
	s := newTestSource("", "")

	if err := s.Confirm(strings.NewReader("yes\n"), false)(context.Background(), testAccount, tx); err != nil {
		t.Fatalf("expected approval, got %v", err)
	}
	if err := s.Confirm(strings.NewReader("n\n"), false)(context.Background(), testAccount, tx); !errors.Is(err, wallet.ErrUserRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := s.Confirm(strings.NewReader(""), true)(context.Background(), testAccount, tx); err != nil {
		t.Fatalf("assumeYes must approve, got %v", err)
	}
}

func TestChooseRequiresMatchingAnswers(t *testing.T) {
	s := newTestSource("", "")
	answers := []string{"first", "second"}
	s.readSecret = func() ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
	if _, err := s.Choose(context.Background()); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}

	s = newTestSource("", "same")
	got, err := s.Choose(context.Background())
	if err != nil || got != "same" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
}

func TestChoosePrefersEnvironment(t *testing.T) {
	t.Setenv("BLOCKCOOP_TEST_PASS", "from-env")
	s := newTestSource("BLOCKCOOP_TEST_PASS", "prompted")
	s.isTerminal = func() bool { return false }
	got, err := s.Choose(context.Background())
	if err != nil || got != "from-env" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
}
