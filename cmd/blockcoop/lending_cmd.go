package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"blockcoop/contract"
	"blockcoop/tokens"
)

func newDepositCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <token> <amount>",
		Short: "Deposit a whitelisted token as collateral, approving it first when needed",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmountArg(ctx, a, token, args[1])
			if err != nil {
				return err
			}
			ptx, err := a.client.Deposit(ctx, token, amount.Raw, slowNotice(cmd))
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newWithdrawCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <token> <amount>",
		Short: "Withdraw deposited collateral",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := parseAddressArg("token", args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmountArg(ctx, a, token, args[1])
			if err != nil {
				return err
			}
			ptx, err := a.client.Withdraw(ctx, token, amount.Raw)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newBorrowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <collateral-token> <collateral-amount> <borrow-amount>",
		Short: "Borrow lending tokens against deposited collateral",
		Long:  "borrow locks collateral-amount of a deposited token and borrows borrow-amount of the lending token.",
		Args:  cobra.ExactArgs(3),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			collateral, err := parseAddressArg("collateral token", args[0])
			if err != nil {
				return err
			}
			collateralAmount, err := parseAmountArg(ctx, a, collateral, args[1])
			if err != nil {
				return err
			}
			lending, err := a.client.LendingToken(ctx)
			if err != nil {
				return err
			}
			borrowAmount, err := parseAmountArg(ctx, a, lending, args[2])
			if err != nil {
				return err
			}
			ptx, err := a.client.Borrow(ctx, collateral, collateralAmount.Raw, borrowAmount.Raw)
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newRepayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repay <loan-index> <amount>",
		Short: "Repay a loan in lending token units, approving the lending token first when needed",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: loan index %q: %w", contract.ErrInvalidArgument, args[0], err)
			}
			lending, err := a.client.LendingToken(ctx)
			if err != nil {
				return err
			}
			amount, err := parseAmountArg(ctx, a, lending, args[1])
			if err != nil {
				return err
			}
			ptx, err := a.client.Repay(ctx, index, amount.Raw, slowNotice(cmd))
			if err != nil {
				return err
			}
			return await(ctx, cmd, ptx)
		}),
	}
}

func newLoansCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "Show active loans with estimated interest",
		Long:  "loans lists the active loans of the connected account. Interest is estimated locally; the contract computes the exact amount at repayment.",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			account, err := a.account(ctx)
			if err != nil {
				return err
			}
			portfolio, err := a.book.Portfolio(ctx, account, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(portfolio.Positions) == 0 {
				fmt.Fprintln(out, "no active loans")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tCOLLATERAL\tBORROWED\tINTEREST (EST)\tTOTAL OWED (EST)\tSTARTED")
			for _, pos := range portfolio.Positions {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					pos.Loan.Index, pos.Collateral, pos.Borrowed, pos.Interest, pos.TotalOwed, pos.Started.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			s := portfolio.Summary
			fmt.Fprintf(out, "\n%d active, borrowed %s, interest %s, owed %s (%.2f%% APR)\n",
				s.Active, s.Borrowed, s.Interest, s.TotalOwed, float64(portfolio.Terms.RateBps)/100)
			return nil
		}),
	}
}

func newDepositsCmd(opts *rootOptions) *cobra.Command {
	var tokenFlag string
	cmd := &cobra.Command{
		Use:   "deposits [owner]",
		Short: "List deposited collateral with oracle prices, defaulting to the connected account",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			var owner common.Address
			var err error
			if len(args) == 1 {
				owner, err = parseAddressArg("owner", args[0])
			} else {
				owner, err = a.account(ctx)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var only common.Address
			if tokenFlag != "" {
				only, err = parseAddressArg("token", tokenFlag)
				if err != nil {
					return err
				}
				has, err := a.client.HasUserDepositedToken(ctx, owner, only)
				if err != nil {
					return err
				}
				if !has {
					fmt.Fprintf(out, "%s has no deposit of %s\n", owner.Hex(), only.Hex())
					return nil
				}
			}

			positions, err := a.client.UserDeposits(ctx, owner)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tAMOUNT\tPRICE (USD)\tVALUE (USD)\tDEPOSITED")
			for _, pos := range positions {
				if only != (common.Address{}) && pos.Token != only {
					continue
				}
				meta, err := a.tokens.Describe(ctx, pos.Token)
				if err != nil {
					return err
				}
				amount := tokens.Amount{Raw: pos.Amount, Decimals: meta.Decimals, Symbol: meta.Symbol}
				price, value := "n/a", "n/a"
				if pos.Price.Raw != nil {
					price = pos.Price.USD.StringFixed(2)
					value = amount.Decimal().Mul(pos.Price.USD).StringFixed(2)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", pos.Token.Hex(), amount, price, value,
					time.Unix(int64(pos.Timestamp), 0).UTC().Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if only != (common.Address{}) {
				return nil
			}
			count, err := a.client.WhitelistedTokenCount(ctx)
			if err != nil {
				return err
			}
			total, err := a.client.UserTotalValueUSD(ctx, owner, 0, count)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\ntotal collateral value: %s USD\n", total.StringFixed(2))
			return nil
		}),
	}
	cmd.Flags().StringVar(&tokenFlag, "token", "", "show only the deposit of this token")
	return cmd
}
