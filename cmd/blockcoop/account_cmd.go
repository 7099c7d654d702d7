package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/spf13/cobra"

	"blockcoop/cmd/internal/passphrase"
	"blockcoop/config"
	"blockcoop/crypto"
)

// Account commands only touch the keystore directory, so they load the config
// without wiring the RPC client.
func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage keystore accounts",
	}
	var light bool
	cmd.PersistentFlags().BoolVar(&light, "light-kdf", false, "use the light scrypt parameters (faster, weaker)")

	scrypt := func() (int, int) {
		if light {
			return keystore.LightScryptN, keystore.LightScryptP
		}
		return keystore.StandardScryptN, keystore.StandardScryptP
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Generate a key and store it encrypted in the keystore directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, source, err := loadKeystoreConfig(opts)
				if err != nil {
					return err
				}
				pass, err := source.Choose(cmd.Context())
				if err != nil {
					return err
				}
				n, p := scrypt()
				acct, err := crypto.NewKeystoreAccount(cfg.Wallet.KeystoreDir, pass, n, p)
				if err != nil {
					return fmt.Errorf("create account: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n%s\n", acct.Address.Hex(), acct.URL.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "import <hex-key-file>",
			Short: "Encrypt a hex private key into the keystore directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, source, err := loadKeystoreConfig(opts)
				if err != nil {
					return err
				}
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				key, err := crypto.PrivateKeyFromHex(strings.TrimSpace(string(raw)))
				if err != nil {
					return fmt.Errorf("parse key: %w", err)
				}
				pass, err := source.Choose(cmd.Context())
				if err != nil {
					return err
				}
				n, p := scrypt()
				acct, err := crypto.ImportToKeystore(cfg.Wallet.KeystoreDir, key, pass, n, p)
				if err != nil {
					return fmt.Errorf("import account: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n%s\n", acct.Address.Hex(), acct.URL.Path)
				return nil
			},
		},
	)
	return cmd
}

func loadKeystoreConfig(opts *rootOptions) (config.Config, *passphrase.Source, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Wallet.KeystoreDir) == "" {
		return config.Config{}, nil, fmt.Errorf("wallet.keystore_dir is not configured")
	}
	return cfg, passphrase.NewSource(cfg.Wallet.PassphraseEnv), nil
}
