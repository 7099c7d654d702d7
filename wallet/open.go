package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"blockcoop/config"
)

// ChainParamsFromConfig converts the configured network into AddChain metadata.
func ChainParamsFromConfig(network config.Network) ChainParams {
	params := ChainParams{
		ChainID:   network.ChainID,
		ChainName: network.Name,
		NativeCurrency: NativeCurrency{
			Name:     network.NativeCurrency.Name,
			Symbol:   network.NativeCurrency.Symbol,
			Decimals: network.NativeCurrency.Decimals,
		},
		RPCURLs: []string{network.RPCURL},
	}
	if url := strings.TrimSpace(network.ExplorerURL); url != "" {
		params.BlockExplorerURLs = []string{url}
	}
	return params
}

// Open returns the provider selected by cfg. A remote signer wins when configured;
// otherwise the keystore directory is used. ErrWalletUnavailable is returned when
// neither is present.
func Open(ctx context.Context, cfg config.Wallet, passphrases Passphrases, opts ...KeystoreOption) (Provider, error) {
	if url := strings.TrimSpace(cfg.SignerURL); url != "" {
		signer, err := DialRemoteSigner(ctx, url, cfg.PollInterval.Duration)
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	if strings.TrimSpace(cfg.KeystoreDir) == "" {
		return nil, ErrWalletUnavailable
	}
	if account := strings.TrimSpace(cfg.Account); account != "" && common.IsHexAddress(account) {
		opts = append(opts, WithPreferredAccount(common.HexToAddress(account)))
	}
	ks, err := OpenKeystore(cfg.KeystoreDir, passphrases, opts...)
	if err != nil {
		return nil, err
	}
	return ks, nil
}
