package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newConnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet, switching or adding the configured network when needed",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			sess, err := a.sessions.Connect(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected %s on chain %d as %s\n", sess.Account.Hex(), sess.ChainID, a.sessions.Role())
			return nil
		}),
	}
}

func newDisconnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the persisted session",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
			a.sessions.Disconnect()
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		}),
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session without prompting the wallet",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "network:  %s (chain %d)\n", a.cfg.Network.Name, a.cfg.Network.ChainID)
			fmt.Fprintf(out, "contract: %s\n", a.client.Address().Hex())
			if a.provider == nil {
				fmt.Fprintln(out, "wallet:   not configured (read-only)")
				return nil
			}
			restored, err := a.sessions.ReconnectSilently(ctx)
			if err != nil {
				return err
			}
			sess, ok := a.sessions.Current()
			if !restored || !ok {
				fmt.Fprintln(out, "session:  disconnected")
				return nil
			}
			fmt.Fprintf(out, "session:  %s\n", sess.Account.Hex())
			fmt.Fprintf(out, "role:     %s\n", a.sessions.Role())
			return nil
		}),
	}
}

func newRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "role [address]",
		Short: "Resolve the contract role of an address, defaulting to the connected account",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			var account common.Address
			var err error
			if len(args) == 1 {
				account, err = parseAddressArg("address", args[0])
			} else {
				account, err = a.account(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", account.Hex(), a.client.Roles().Resolve(ctx, account))
			return nil
		}),
	}
}
