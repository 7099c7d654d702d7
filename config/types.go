package config

import (
	"fmt"
	"strings"
	"time"
)

// Network describes the chain the client must be connected to. The same values are
// handed to the wallet when it does not know the chain yet.
type Network struct {
	ChainID        uint64         `toml:"chain_id" yaml:"chain_id"`
	Name           string         `toml:"name" yaml:"name"`
	RPCURL         string         `toml:"rpc_url" yaml:"rpc_url"`
	ExplorerURL    string         `toml:"explorer_url" yaml:"explorer_url"`
	NativeCurrency NativeCurrency `toml:"native_currency" yaml:"native_currency"`
}

// NativeCurrency is the gas token metadata advertised when adding a chain to a wallet.
type NativeCurrency struct {
	Name     string `toml:"name" yaml:"name"`
	Symbol   string `toml:"symbol" yaml:"symbol"`
	Decimals uint8  `toml:"decimals" yaml:"decimals"`
}

// Contract pins the BlockCoop deployment and the conventions used to talk to it.
type Contract struct {
	Address string `toml:"address" yaml:"address"`
	// GasLimit is the fixed ceiling attached to every write. Estimation against the
	// contract is unreliable for some paths so it is never used.
	GasLimit uint64 `toml:"gas_limit" yaml:"gas_limit"`
	// PriceDecimals is the fixed-point exponent of getTokenPrice results.
	PriceDecimals uint8  `toml:"price_decimals" yaml:"price_decimals"`
	StartBlock    uint64 `toml:"start_block" yaml:"start_block"`
	Confirmations uint64 `toml:"confirmations" yaml:"confirmations"`
}

// Wallet selects the signer backing the session. KeystoreDir and SignerURL are
// mutually exclusive; when both are empty no wallet is available.
type Wallet struct {
	KeystoreDir   string   `toml:"keystore_dir" yaml:"keystore_dir"`
	Account       string   `toml:"account" yaml:"account"`
	PassphraseEnv string   `toml:"passphrase_env" yaml:"passphrase_env"`
	SignerURL     string   `toml:"signer_url" yaml:"signer_url"`
	PollInterval  Duration `toml:"poll_interval" yaml:"poll_interval"`
}

// Session configures the durable session state file.
type Session struct {
	StorePath string `toml:"store_path" yaml:"store_path"`
}

// Confirm controls how pending transactions are awaited.
type Confirm struct {
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	SlowAfter    Duration `toml:"slow_after" yaml:"slow_after"`
}

// RPC bounds the read traffic sent to the node endpoint.
type RPC struct {
	ReadsPerSecond float64 `toml:"reads_per_second" yaml:"reads_per_second"`
	Burst          int     `toml:"burst" yaml:"burst"`
}

// Log configures the structured logger.
type Log struct {
	Env   string `toml:"env" yaml:"env"`
	File  string `toml:"file" yaml:"file"`
	Level string `toml:"level" yaml:"level"`
}

// Metrics configures the HTTP surface started by `blockcoop serve`.
type Metrics struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// Telemetry configures the optional OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"insecure" yaml:"insecure"`
	Traces   bool   `toml:"traces" yaml:"traces"`
	Metrics  bool   `toml:"metrics" yaml:"metrics"`
}

// Duration decodes human readable durations ("5s", "2m") from TOML and YAML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
