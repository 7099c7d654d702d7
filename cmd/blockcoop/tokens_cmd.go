package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newTokensCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect whitelisted tokens",
	}
	cmd.AddCommand(
		newTokensListCmd(opts),
		newTokensDescribeCmd(opts),
		newTokensBalanceCmd(opts),
		newTokensPriceCmd(opts),
	)
	return cmd
}

func newTokensListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List whitelisted tokens with their price feeds and USD prices",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			infos, err := a.client.WhitelistedTokens(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tDECIMALS\tPRICE (USD)\tADDRESS\tPRICE FEED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					info.Symbol, info.Name, info.Decimals, info.PriceUSD.StringFixed(2), info.Address.Hex(), info.PriceFeed.Hex())
			}
			return w.Flush()
		}),
	}
}

func newTokensDescribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <token>",
		Short: "Show ERC-20 metadata and whitelist status",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			meta, err := a.tokens.Describe(ctx, token)
			if err != nil {
				return err
			}
			status, err := a.client.WhitelistStatus(ctx, token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:        %s\n", meta.Name)
			fmt.Fprintf(out, "symbol:      %s\n", meta.Symbol)
			fmt.Fprintf(out, "decimals:    %d\n", meta.Decimals)
			fmt.Fprintf(out, "whitelisted: %t\n", status.IsWhitelisted)
			if status.IsWhitelisted {
				fmt.Fprintf(out, "price feed:  %s\n", status.PriceFeed.Hex())
			}
			return nil
		}),
	}
}

func newTokensBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <token> [owner]",
		Short: "Show a token balance, the deposit held by the contract and the allowance granted to it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			var owner common.Address
			if len(args) == 2 {
				owner, err = parseAddressArg("owner", args[1])
			} else {
				owner, err = a.account(ctx)
			}
			if err != nil {
				return err
			}
			balance, err := a.tokens.Balance(ctx, token, owner)
			if err != nil {
				return err
			}
			allowance, err := a.tokens.Allowance(ctx, token, owner, a.client.Address())
			if err != nil {
				return err
			}
			deposit, err := a.client.UserDeposit(ctx, owner, token)
			if err != nil {
				return err
			}
			deposited := balance
			deposited.Raw = deposit.Amount
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wallet:    %s\n", balance)
			fmt.Fprintf(out, "deposited: %s\n", deposited)
			fmt.Fprintf(out, "allowance: %s\n", allowance)
			return nil
		}),
	}
}

func newTokensPriceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "price <token>",
		Short: "Show the oracle price of a whitelisted token",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			price, err := a.client.TokenPrice(ctx, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s USD\n", price.USD.String())
			return nil
		}),
	}
}

func newWhitelistCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whitelist <token> <price-feed>",
		Short: "Whitelist a collateral token (owner or fund manager)",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			feed, err := parseAddressArg("price feed", args[1])
			if err != nil {
				return err
			}
			ptx, err := a.client.WhitelistToken(ctx, token, feed)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newUnwhitelistCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unwhitelist <token>",
		Short: "Remove a token from the whitelist (owner or fund manager)",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			ptx, err := a.client.UnWhitelistToken(ctx, token)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newUpdateFeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update-feed <token> <price-feed>",
		Short: "Point a whitelisted token at a new price feed (owner or fund manager)",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			feed, err := parseAddressArg("price feed", args[1])
			if err != nil {
				return err
			}
			ptx, err := a.client.UpdatePriceFeed(ctx, token, feed)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newTransferCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <token> <recipient> <amount>",
		Short: "Send tokens from the connected account",
		Args:  cobra.ExactArgs(3),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			recipient, err := parseAddressArg("recipient", args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmountArg(ctx, a, token, args[2])
			if err != nil {
				return err
			}
			ptx, err := a.client.TransferToken(ctx, token, recipient, amount.Raw)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}
