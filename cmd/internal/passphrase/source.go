package passphrase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/term"

	"blockcoop/wallet"
)

// Source resolves keystore passphrases from an environment variable or by
// prompting the operator. Successful answers are cached per account so a
// reconnect within the same process does not prompt twice.
type Source struct {
	envVar string

	mu     sync.Mutex
	cached map[common.Address]string

	// overridable in tests
	isTerminal func() bool
	readSecret func() ([]byte, error)
	out        io.Writer
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		cached:     make(map[common.Address]string),
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
		out:        os.Stderr,
	}
}

// Lookup never prompts. It returns a cached answer or the environment value.
// Whitespace-only values are ignored to avoid unprotected keystores.
func (s *Source) Lookup(account common.Address) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.cached[account]; ok {
		return value, true
	}
	if s.envVar == "" {
		return "", false
	}
	value, ok := os.LookupEnv(s.envVar)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// Prompt asks for the passphrase on stderr. An empty answer counts as the holder
// declining the connection.
func (s *Source) Prompt(ctx context.Context, account common.Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", fmt.Errorf("keystore passphrase required and no terminal available")
	}

	fmt.Fprintf(s.out, "Unlock %s, passphrase (empty to decline): ", account.Hex())
	bytes, err := s.readSecret()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}

	passphrase := string(bytes)
	if strings.TrimSpace(passphrase) == "" {
		return "", wallet.ErrUserRejected
	}

	s.mu.Lock()
	s.cached[account] = passphrase
	s.mu.Unlock()
	return passphrase, nil
}

// Confirm returns a wallet.ConfirmFunc that asks the operator to approve every
// transaction. Anything other than "y" or "yes" declines. When assumeYes is set
// no question is asked.
func (s *Source) Confirm(in io.Reader, assumeYes bool) wallet.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, account common.Address, tx *types.Transaction) error {
		if assumeYes {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		to := "contract creation"
		if tx.To() != nil {
			to = tx.To().Hex()
		}
		fmt.Fprintf(s.out, "Sign transaction from %s to %s (nonce %d, gas %d)? [y/N]: ", account.Hex(), to, tx.Nonce(), tx.Gas())
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		}
		return wallet.ErrUserRejected
	}
}

// Choose returns the passphrase for a new keystore file: the environment value when
// set, otherwise a prompted answer that must be entered twice.
func (s *Source) Choose(ctx context.Context) (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok && strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.isTerminal() {
		return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
	}
	fmt.Fprint(s.out, "New passphrase: ")
	first, err := s.readSecret()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	fmt.Fprint(s.out, "Repeat passphrase: ")
	second, err := s.readSecret()
	fmt.Fprintln(s.out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}
