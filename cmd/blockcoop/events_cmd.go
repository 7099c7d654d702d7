package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blockcoop/contract"
	"blockcoop/events"
	"blockcoop/server"
)

const followLimit = 200

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "events <name>",
		Short: "Show contract events, most recent first",
		Long:  "events prints the history of a contract event. Supported events: " + strings.Join(events.Names(), ", ") + ".",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			name := args[0]
			if !events.Supported(name) {
				return fmt.Errorf("%w: %w: %s", contract.ErrInvalidArgument, events.ErrUnsupportedEvent, name)
			}
			out := cmd.OutOrStdout()
			if !follow {
				history, err := a.events.History(ctx, name)
				if err != nil {
					return err
				}
				for _, ev := range history {
					printEvent(out, ev)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			sub, err := a.events.Subscribe(ctx, name)
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			timeline := events.NewTimeline(sub.History(), followLimit)
			for _, ev := range timeline.Events() {
				printEvent(out, ev)
			}
			for {
				select {
				case ev, ok := <-sub.Live():
					if !ok {
						return sub.Err()
					}
					if timeline.Add(ev) {
						printEvent(out, ev)
					}
				case <-ctx.Done():
					return nil
				}
			}
		}),
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new events until interrupted")
	return cmd
}

func printEvent(out io.Writer, ev events.Event) {
	var subject string
	switch ev.Name {
	case events.FundManagerAdded, events.FundManagerRemoved:
		subject = ev.FundManager.Hex()
	case events.TokenWhitelisted:
		subject = fmt.Sprintf("%s feed %s", ev.Token.Hex(), ev.PriceFeed.Hex())
	}
	fmt.Fprintf(out, "#%d\t%s\t%s\t%s\n", ev.BlockNumber, ev.Name, subject, ev.TxHash.Hex())
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve session state, metrics and event streams over HTTP",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := a.cfg.Metrics.Listen
			if listen != "" {
				addr = listen
			}
			srv := server.New(server.Config{
				Sessions: a.sessions,
				Events:   a.events,
				Logger:   a.logger,
			})

			group, ctx := errgroup.WithContext(ctx)
			if a.provider != nil {
				if _, err := a.sessions.ReconnectSilently(ctx); err != nil {
					a.logger.Warn("silent reconnect failed", "error", err)
				}
				group.Go(func() error { return a.sessions.Watch(ctx) })
			}
			group.Go(func() error { return srv.ListenAndServe(ctx, addr) })
			fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", addr)
			return group.Wait()
		}),
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override the configured listen address")
	return cmd
}
