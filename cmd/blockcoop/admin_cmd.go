package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"blockcoop/contract"
)

func newFundManagerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund-manager",
		Short: "Manage fund managers (owner only)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <address>",
			Short: "Grant the fund manager role",
			Args:  cobra.ExactArgs(1),
			RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				manager, err := parseAddressArg("fund manager", args[0])
				if err != nil {
					return err
				}
				ptx, err := a.client.AddFundManager(ctx, manager)
				if err != nil {
					return err
				}
				return await(ctx, cmd, ptx)
			}),
		},
		&cobra.Command{
			Use:   "remove <address>",
			Short: "Revoke the fund manager role",
			Args:  cobra.ExactArgs(1),
			RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				manager, err := parseAddressArg("fund manager", args[0])
				if err != nil {
					return err
				}
				ptx, err := a.client.RemoveFundManager(ctx, manager)
				if err != nil {
					return err
				}
				return await(ctx, cmd, ptx)
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the owner and active fund managers",
			Args:  cobra.NoArgs,
			RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				owner, err := a.client.Owner(ctx)
				if err != nil {
					return err
				}
				managers, err := a.client.ActiveFundManagers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "owner\t%s\n", owner.Hex())
				for _, m := range managers {
					fmt.Fprintf(out, "manager\t%s\n", m.Hex())
				}
				return nil
			}),
		},
	)
	return cmd
}

func newPauseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the contract (owner only)",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			ptx, err := a.client.Pause(ctx)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newUnpauseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unpause",
		Short: "Resume the contract (owner only)",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			ptx, err := a.client.Unpause(ctx)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newStaleThresholdCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stale-threshold <seconds>",
		Short: "Set how old an oracle price may be before it is rejected (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			seconds, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: seconds %q: %w", contract.ErrInvalidArgument, args[0], err)
			}
			ptx, err := a.client.UpdateStalePriceThreshold(ctx, seconds)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newFundPoolCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fund-pool <amount>",
		Short: "Move lending tokens into the lending pool (owner only)",
		Long:  "fund-pool approves the lending token when the allowance is short, then funds the pool. The amount is in lending token units.",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			lending, err := a.client.LendingToken(ctx)
			if err != nil {
				return err
			}
			amount, err := parseAmountArg(ctx, a, lending, args[0])
			if err != nil {
				return err
			}
			ptx, err := a.client.FundLendingPool(ctx, amount.Raw, slowNotice(cmd))
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}
