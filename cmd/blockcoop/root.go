package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"blockcoop/contract"
	"blockcoop/tokens"
)

const defaultConfigPath = "blockcoop.toml"

type rootOptions struct {
	configPath string
	assumeYes  bool
	logOutput  io.Writer
}

// run wires the application for one command invocation and tears it down afterwards.
func (o *rootOptions) run(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := wireApp(ctx, wireOptions{
			configPath: o.configPath,
			assumeYes:  o.assumeYes,
			in:         cmd.InOrStdin(),
			logOutput:  o.logOutput,
		})
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOutput: os.Stderr}
	rootCmd := &cobra.Command{
		Use:           "blockcoop",
		Short:         "BlockCoop lending client",
		Long:          "blockcoop connects a keystore or remote signer to the BlockCoop lending contract: deposits, loans, token whitelisting and fund manager administration.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath := os.Getenv("BLOCKCOOP_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", configPath, "path to the TOML or YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.assumeYes, "yes", "y", false, "sign transactions without asking for confirmation")

	rootCmd.AddCommand(
		newConnectCmd(opts),
		newDisconnectCmd(opts),
		newStatusCmd(opts),
		newRoleCmd(opts),
		newTokensCmd(opts),
		newWhitelistCmd(opts),
		newUnwhitelistCmd(opts),
		newUpdateFeedCmd(opts),
		newTransferCmd(opts),
		newFundManagerCmd(opts),
		newPauseCmd(opts),
		newUnpauseCmd(opts),
		newStaleThresholdCmd(opts),
		newFundPoolCmd(opts),
		newDepositCmd(opts),
		newWithdrawCmd(opts),
		newDepositsCmd(opts),
		newBorrowCmd(opts),
		newRepayCmd(opts),
		newLoansCmd(opts),
		newEventsCmd(opts),
		newServeCmd(opts),
		newAccountCmd(opts),
	)
	return rootCmd
}

// await prints the hash of ptx, waits for confirmation and reports slow progress.
func await(ctx context.Context, cmd *cobra.Command, ptx *contract.PendingTx) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "submitted %s: %s\n", ptx.Method, ptx.Hash.Hex())
	receipt, err := ptx.Wait(ctx, contract.OnSlow(func(p *contract.PendingTx) {
		fmt.Fprintf(out, "transaction %s is taking longer than expected, still waiting...\n", p.Hash.Hex())
	}))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "confirmed in block %s\n", receipt.BlockNumber)
	return nil
}

// slowNotice is passed to approvals run ahead of a primary action.
func slowNotice(cmd *cobra.Command) contract.WaitOption {
	return contract.OnSlow(func(p *contract.PendingTx) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is taking longer than expected, still waiting...\n", p.Method, p.Hash.Hex())
	})
}

func parseAddressArg(name, raw string) (common.Address, error) {
	return contract.ParseAddress(name, raw)
}

// parseAmountArg converts a decimal amount into base units of token.
func parseAmountArg(ctx context.Context, a *app, token common.Address, raw string) (tokens.Amount, error) {
	amount, err := a.tokens.ParseAmount(ctx, token, strings.TrimSpace(raw))
	if err != nil {
		return tokens.Amount{}, fmt.Errorf("%w: amount %q: %w", contract.ErrInvalidArgument, raw, err)
	}
	return amount, nil
}
