package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"blockcoop/contract"
	"blockcoop/events"
	"blockcoop/wallet"
)

func writeConfig(t *testing.T, walletSection string) string {
	t.Helper()
	dir := t.TempDir()
	body := `[network]
chain_id = 31337
rpc_url = "http://127.0.0.1:1"

[contract]
address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

[wallet]
` + walletSection + `

[log]
level = "error"
`
	path := filepath.Join(dir, "blockcoop.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{
		"connect", "disconnect", "status", "role", "tokens", "whitelist", "unwhitelist",
		"update-feed", "transfer", "fund-manager", "pause", "unpause", "stale-threshold",
		"fund-pool", "deposit", "deposits", "withdraw", "borrow", "repay", "loans", "events", "serve", "account",
	}
	for _, name := range want {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, found.Name())
	}
}

func TestAccountNewWritesKeystore(t *testing.T) {
	t.Setenv("BLOCKCOOP_PASSPHRASE", "correct horse")
	cfgPath := writeConfig(t, `keystore_dir = "keys"`)

	out, err := execute(t, "--config", cfgPath, "account", "new", "--light-kdf")
	require.NoError(t, err)
	require.Contains(t, out, "created 0x")

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(cfgPath), "keys"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "UTC--"))
}

func TestAccountImportRejectsBadKey(t *testing.T) {
	t.Setenv("BLOCKCOOP_PASSPHRASE", "correct horse")
	cfgPath := writeConfig(t, `keystore_dir = "keys"`)
	keyFile := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(keyFile, []byte("not-hex"), 0o600))

	_, err := execute(t, "--config", cfgPath, "account", "import", keyFile)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse key")
}

func TestEventsRejectsUnknownName(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, "--config", cfgPath, "events", "Transfer")
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
	require.ErrorIs(t, err, events.ErrUnsupportedEvent)
}

func TestReadOnlyCommandsNeedWallet(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, "--config", cfgPath, "loans")
	require.True(t, errors.Is(err, wallet.ErrWalletUnavailable), "got %v", err)
}

func TestStatusWithoutWallet(t *testing.T) {
	cfgPath := writeConfig(t, "")
	out, err := execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	require.Contains(t, out, "read-only")
	require.Contains(t, out, "chain 31337")
}

func TestStaleThresholdValidatesSeconds(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, "--config", cfgPath, "stale-threshold", "soon")
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}

func TestDepositsValidatesTokenFlag(t *testing.T) {
	cfgPath := writeConfig(t, "")
	_, err := execute(t, "--config", cfgPath, "deposits", "0x00000000000000000000000000000000000000aa", "--token", "nope")
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}
