package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"artist_ipo/internal/app"
	"artist_ipo/internal/domain"
	"artist_ipo/internal/infra"
	"artist_ipo/internal/report"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "artist-ipo",
		Short: "Tokenized artist asset lifecycle simulator",
		Long: `artist-ipo deploys an artist token on an in-process development network and runs
its lifecycle: a capped primary sale sell-down, a vesting release past the cliff,
and a price-impact walk on a constant-product market.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "configs/config.yaml", "Path to the YAML configuration (empty for defaults)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newDriveCmd(),
		newAddressesCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return report.RenderJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "artist-ipo version %s\n", version)
			return err
		},
	}
}

// startup loads the configuration and brings up a deployed network.
func startup(ctx context.Context, cmd *cobra.Command) (*app.Bootstrap, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	b := app.NewBootstrap(cfgPath)
	b.Quiet = true
	if err := b.Initialize(); err != nil {
		return nil, err
	}
	if err := b.StartNetwork(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run sale, vesting and price impact on a fresh network",
		Long: `Deploy the contract set, sell the primary allocation down in capped installments,
advance past the vesting cliff and release, then buy into the constant-product market
in equal steps. Prints the report and exits non-zero if any phase fails.

Examples:
  artist-ipo run
  artist-ipo run --json
  artist-ipo run --strict --config configs/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			strict, _ := cmd.Flags().GetBool("strict")

			ctx, stop := signalContext(cmd)
			defer stop()

			b, err := startup(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			rc, err := b.RunnerConfig()
			if err != nil {
				return err
			}

			started := time.Now()
			rep, runErr := report.NewRunner(b.Collab, rc, b.Logger, b.Metrics).Run(ctx)
			rep.Network = b.Config.Network.Name
			if runErr == nil {
				rep.Verify()
			}
			if _, err := b.RecordRun(ctx, started, rep, runErr); err != nil {
				slog.Warn("Failed to record run", slog.Any("error", err))
			}

			b.Trades.Wait()
			if err := writeReport(cmd.OutOrStdout(), jsonOut, rep, b); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if failed := rep.Failed(); strict && len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed, first: %s (%s)", len(failed), len(rep.Checks), failed[0].Name, failed[0].Detail)
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "Exit non-zero when a verification check fails")
	return cmd
}

func writeReport(w io.Writer, jsonOut bool, rep *report.Report, b *app.Bootstrap) error {
	trades := b.Trades.GetAllData()
	if jsonOut {
		return report.RenderJSON(w, struct {
			*report.Report
			Markets []domain.MarketActivity `json:"markets"`
			Metrics infra.MetricsSnapshot   `json:"metrics"`
		}{rep, trades, b.Metrics.Snapshot()})
	}
	symbol := b.Config.Token.Symbol
	if err := report.Render(w, rep, symbol); err != nil {
		return err
	}
	if err := report.RenderTrades(w, trades, b.Book, symbol); err != nil {
		return err
	}
	return report.RenderMetrics(w, b.Metrics.Snapshot())
}

func newDriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Walk through the fixed-price secondary market",
		Long: `Deploy the contract set, buy from the primary sale, release vested tokens to the
artist, seed the fixed-price market, then buy from and sell to it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx, stop := signalContext(cmd)
			defer stop()

			b, err := startup(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			dc, err := b.DriveConfig()
			if err != nil {
				return err
			}

			started := time.Now()
			rep, runErr := report.RunDrive(ctx, b.Collab, dc, b.Logger, b.Metrics)
			if _, err := b.RecordDrive(ctx, started, runErr); err != nil {
				slog.Warn("Failed to record run", slog.Any("error", err))
			}

			b.Trades.Wait()
			if jsonOut {
				err = report.RenderJSON(cmd.OutOrStdout(), struct {
					*report.DriveReport
					Markets []domain.MarketActivity `json:"markets"`
				}{rep, b.Trades.GetAllData()})
			} else {
				err = report.RenderDrive(cmd.OutOrStdout(), rep, b.Config.Token.Symbol)
				if err == nil {
					err = report.RenderTrades(cmd.OutOrStdout(), b.Trades.GetAllData(), b.Book, b.Config.Token.Symbol)
				}
			}
			if err != nil {
				return err
			}
			return runErr
		},
	}
}

func newAddressesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Print the address book of the last deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfgPath, _ := cmd.Flags().GetString("config")

			b := app.NewBootstrap(cfgPath)
			b.Quiet = true
			if err := b.Initialize(); err != nil {
				return err
			}
			defer b.Close()

			book, err := b.Storage.LoadAddressBook(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load address book: %w", err)
			}
			if book.Len() == 0 {
				return fmt.Errorf("no deployment recorded; run 'artist-ipo run' first")
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return report.RenderJSON(w, book)
			}
			names := book.Names()
			sort.Strings(names)
			for _, name := range names {
				addr, _ := book.Get(name)
				if _, err := fmt.Fprintf(w, "%-14s %s\n", name, addr.Hex()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
