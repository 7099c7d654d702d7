package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"blockcoop/cmd/internal/passphrase"
	"blockcoop/config"
	"blockcoop/contract"
	"blockcoop/events"
	"blockcoop/loans"
	"blockcoop/observability"
	"blockcoop/observability/logging"
	telemetry "blockcoop/observability/otel"
	"blockcoop/session"
	"blockcoop/tokens"
	"blockcoop/wallet"
)

const serviceName = "blockcoop"

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	passphrases *passphrase.Source

	backend  *ethclient.Client
	provider wallet.Provider
	store    *session.Store
	sessions *session.Adapter
	client   *contract.Client
	tokens   *tokens.Cache
	book     *loans.Book
	events   *events.Subscriber

	closers []func() error
}

type wireOptions struct {
	configPath string
	assumeYes  bool
	in         io.Reader
	logOutput  io.Writer
}

func wireApp(ctx context.Context, opts wireOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg}

	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Log.Env, logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Output: opts.logOutput,
	})
	a.logger = logger
	a.closers = append(a.closers, logCloser.Close)
	logger.Debug("configuration loaded",
		logging.MaskField("rpc_url", cfg.Network.RPCURL),
		slog.String("passphrase_env", cfg.Wallet.PassphraseEnv),
		logging.MaskField("signer_url", cfg.Wallet.SignerURL),
		slog.Uint64("chain_id", cfg.Network.ChainID),
		slog.String("contract", cfg.Contract.Address))

	telemetryCfg := telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Log.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	}
	if telemetryCfg.Enabled() {
		shutdown, err := telemetry.Init(ctx, telemetryCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		})
	}

	backend, err := contract.Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, func() error { backend.Close(); return nil })

	a.passphrases = passphrase.NewSource(cfg.Wallet.PassphraseEnv)
	in := opts.in
	if in == nil {
		in = os.Stdin
	}
	chain := wallet.ChainParamsFromConfig(cfg.Network)
	provider, err := wallet.Open(ctx, cfg.Wallet, a.passphrases,
		wallet.WithConfirm(a.passphrases.Confirm(in, opts.assumeYes)),
		wallet.WithKnownChain(chain))
	switch {
	case errors.Is(err, wallet.ErrWalletUnavailable):
		logger.Debug("no wallet configured, running read-only")
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("open wallet: %w", err)
	default:
		a.provider = provider
		a.closers = append(a.closers, provider.Close)
	}

	store, err := session.OpenStore(cfg.Session.StorePath, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.sessions = session.NewAdapter(a.provider, chain,
		session.WithStore(store),
		session.WithLogger(logger),
		session.WithMetrics(observability.Session()),
		session.WithRoleResolver(func(ctx context.Context, account common.Address) string {
			return a.client.Roles().ResolveLabel(ctx, account)
		}))
	a.closers = append(a.closers, func() error { a.sessions.Close(); return nil })

	var sessions contract.Sessions
	if a.provider != nil {
		sessions = a.sessions
	}
	a.client = contract.New(backend, sessions, contract.ConfigFrom(cfg),
		contract.WithLogger(logger),
		contract.WithMetrics(observability.Contract()))

	a.tokens = tokens.NewCache(a.client)
	detach := a.tokens.Attach(a.sessions)
	a.closers = append(a.closers, func() error { detach(); return nil })

	a.book = loans.NewBook(a.client, a.tokens, logger)
	a.events = events.NewSubscriber(backend, a.client.Address(), cfg.Contract.StartBlock, logger)
	return a, nil
}

// account returns the connected account, connecting when needed.
func (a *app) account(ctx context.Context) (common.Address, error) {
	if a.provider == nil {
		return common.Address{}, wallet.ErrWalletUnavailable
	}
	sess, err := a.sessions.Ensure(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return sess.Account, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("shutdown step failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
