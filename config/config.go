package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChainID       = 50002
	DefaultNetworkName   = "Pharos Network"
	DefaultRPCURL        = "https://devnet.dplabs-internal.com"
	DefaultGasLimit      = 500000
	DefaultPriceDecimals = 18
	DefaultPassphraseEnv = "BLOCKCOOP_PASSPHRASE"
	DefaultMetricsListen = "127.0.0.1:9464"
)

// Config captures the runtime settings of the BlockCoop client.
type Config struct {
	Network   Network   `toml:"network" yaml:"network"`
	Contract  Contract  `toml:"contract" yaml:"contract"`
	Wallet    Wallet    `toml:"wallet" yaml:"wallet"`
	Session   Session   `toml:"session" yaml:"session"`
	Confirm   Confirm   `toml:"confirm" yaml:"confirm"`
	RPC       RPC       `toml:"rpc" yaml:"rpc"`
	Log       Log       `toml:"log" yaml:"log"`
	Metrics   Metrics   `toml:"metrics" yaml:"metrics"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
}

// Default returns the configuration of the Pharos devnet deployment.
// The contract address is left empty on purpose; it must always be supplied.
func Default() Config {
	return Config{
		Network: Network{
			ChainID: DefaultChainID,
			Name:    DefaultNetworkName,
			RPCURL:  DefaultRPCURL,
			NativeCurrency: NativeCurrency{
				Name:     "ETH",
				Symbol:   "ETH",
				Decimals: 18,
			},
		},
		Contract: Contract{
			GasLimit:      DefaultGasLimit,
			PriceDecimals: DefaultPriceDecimals,
			Confirmations: 1,
		},
		Wallet: Wallet{
			PassphraseEnv: DefaultPassphraseEnv,
			PollInterval:  Duration{2 * time.Second},
		},
		Confirm: Confirm{
			PollInterval: Duration{2 * time.Second},
			SlowAfter:    Duration{45 * time.Second},
		},
		RPC: RPC{
			ReadsPerSecond: 20,
			Burst:          10,
		},
		Metrics: Metrics{Listen: DefaultMetricsListen},
	}
}

// Load reads the configuration from disk and validates the result. Files ending in
// .yaml or .yml are decoded as YAML, everything else as TOML.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("decode config: unknown key %q", undecoded[0].String())
		}
	}

	cfg.normalize(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating the parent directory when needed.
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (cfg *Config) normalize(baseDir string) {
	if cfg == nil {
		return
	}
	cfg.Network.Name = strings.TrimSpace(cfg.Network.Name)
	if cfg.Network.Name == "" {
		cfg.Network.Name = fmt.Sprintf("chain-%d", cfg.Network.ChainID)
	}
	cfg.Network.RPCURL = strings.TrimSpace(cfg.Network.RPCURL)
	cfg.Network.ExplorerURL = strings.TrimSpace(cfg.Network.ExplorerURL)
	cfg.Network.NativeCurrency.Name = strings.TrimSpace(cfg.Network.NativeCurrency.Name)
	cfg.Network.NativeCurrency.Symbol = strings.TrimSpace(cfg.Network.NativeCurrency.Symbol)
	if cfg.Network.NativeCurrency.Symbol == "" {
		cfg.Network.NativeCurrency.Symbol = "ETH"
	}
	if cfg.Network.NativeCurrency.Name == "" {
		cfg.Network.NativeCurrency.Name = cfg.Network.NativeCurrency.Symbol
	}
	if cfg.Network.NativeCurrency.Decimals == 0 {
		cfg.Network.NativeCurrency.Decimals = 18
	}

	cfg.Contract.Address = strings.TrimSpace(cfg.Contract.Address)
	if cfg.Contract.GasLimit == 0 {
		cfg.Contract.GasLimit = DefaultGasLimit
	}

	cfg.Wallet.KeystoreDir = resolvePath(baseDir, cfg.Wallet.KeystoreDir)
	cfg.Wallet.Account = strings.TrimSpace(cfg.Wallet.Account)
	cfg.Wallet.PassphraseEnv = strings.TrimSpace(cfg.Wallet.PassphraseEnv)
	cfg.Wallet.SignerURL = strings.TrimSpace(cfg.Wallet.SignerURL)
	if cfg.Wallet.PollInterval.Duration <= 0 {
		cfg.Wallet.PollInterval = Duration{2 * time.Second}
	}

	cfg.Session.StorePath = resolvePath(baseDir, cfg.Session.StorePath)
	if cfg.Session.StorePath == "" {
		cfg.Session.StorePath = filepath.Join(baseDir, "session.db")
	}

	if cfg.Confirm.PollInterval.Duration <= 0 {
		cfg.Confirm.PollInterval = Duration{2 * time.Second}
	}
	if cfg.RPC.Burst <= 0 {
		cfg.RPC.Burst = 1
	}

	cfg.Log.Env = strings.TrimSpace(cfg.Log.Env)
	cfg.Log.File = resolvePath(baseDir, cfg.Log.File)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Metrics.Listen = strings.TrimSpace(cfg.Metrics.Listen)
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func resolvePath(baseDir, path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
