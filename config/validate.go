package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxPriceDecimals bounds the configurable price exponent.
const MaxPriceDecimals = 36

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.Network.validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := cfg.Contract.validate(); err != nil {
		return fmt.Errorf("contract: %w", err)
	}
	if err := cfg.Wallet.validate(); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	if cfg.RPC.ReadsPerSecond < 0 {
		return fmt.Errorf("rpc: reads_per_second must not be negative")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	return nil
}

func (n Network) validate() error {
	if n.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if n.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if err := validateURL(n.RPCURL, "http", "https", "ws", "wss"); err != nil {
		return fmt.Errorf("rpc_url: %w", err)
	}
	if n.ExplorerURL != "" {
		if err := validateURL(n.ExplorerURL, "http", "https"); err != nil {
			return fmt.Errorf("explorer_url: %w", err)
		}
	}
	return nil
}

func (c Contract) validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(c.Address) {
		return fmt.Errorf("address %q is not a hex address", c.Address)
	}
	if common.HexToAddress(c.Address) == (common.Address{}) {
		return fmt.Errorf("address must not be the zero address")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("gas_limit must be positive")
	}
	if c.PriceDecimals > MaxPriceDecimals {
		return fmt.Errorf("price_decimals must be at most %d", MaxPriceDecimals)
	}
	return nil
}

func (w Wallet) validate() error {
	if w.KeystoreDir != "" && w.SignerURL != "" {
		return fmt.Errorf("keystore_dir and signer_url are mutually exclusive")
	}
	if w.Account != "" && !common.IsHexAddress(w.Account) {
		return fmt.Errorf("account %q is not a hex address", w.Account)
	}
	if w.SignerURL != "" {
		if err := validateURL(w.SignerURL, "http", "https", "ws", "wss"); err != nil {
			return fmt.Errorf("signer_url: %w", err)
		}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
}
