// pipelinectl is the operator CLI: run a pass, flip the kill switch and
// inspect or reset the coordination state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/app"
	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/logging"
	"regime-trading-bot/internal/pipeline"
)

const operatorName = "pipelinectl"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the regime trading pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", envOr("CONFIG_PATH", "config.yaml"), "Path to the config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level to stderr")

	root.AddCommand(
		c.tickCmd(),
		c.killSwitchCmd(),
		c.circuitsCmd(),
		c.locksCmd(),
		c.releaseLockCmd(),
		c.closeTradeCmd(),
		sampleConfigCmd(),
		hashPasswordCmd(),
	)
	return root
}

// withApp loads config, builds the app and hands it to fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	a, err := app.Build(cmd.Context(), cfg, c.logger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func (c *cli) logger(cfg *config.Config) zerolog.Logger {
	level := "WARN"
	if c.verbose {
		level = "DEBUG"
	}
	return logging.New(logging.Config{
		Level:      level,
		Output:     "stderr",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  operatorName,
	})
}

func (c *cli) tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one pipeline pass over every configured symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, err := a.Scheduler.RunNow(ctx, pipeline.TriggerCLI)
				if err != nil {
					return err
				}
				if summary.Skipped {
					fmt.Fprintln(cmd.ErrOrStderr(), "another pass holds the job lock, skipped")
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func (c *cli) killSwitchCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:       "killswitch on|off|status",
		Short:     "Engage, disengage or show the global kill switch",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				switch args[0] {
				case "on":
					if reason == "" {
						return fmt.Errorf("--reason is required to engage the kill switch")
					}
					if err := a.KillSwitch.Engage(ctx, reason, operatorName); err != nil {
						return err
					}
				case "off":
					if err := a.KillSwitch.Disengage(ctx, operatorName); err != nil {
						return err
					}
				}
				state, err := a.KillSwitch.State(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why trading is being halted")
	return cmd
}

func (c *cli) circuitsCmd() *cobra.Command {
	var reset string
	cmd := &cobra.Command{
		Use:   "circuits",
		Short: "List circuit breakers, optionally resetting one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if reset != "" {
					if err := a.Circuits.Reset(ctx, reset); err != nil {
						return err
					}
				}
				snaps, err := a.Circuits.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snaps)
			})
		},
	}
	cmd.Flags().StringVar(&reset, "reset", "", "Circuit name to reset to CLOSED")
	return cmd
}

func (c *cli) locksCmd() *cobra.Command {
	var release string
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List held locks, optionally force-releasing a symbol lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if release != "" {
					if err := a.Locks.ForceReleaseSymbol(ctx, strings.ToUpper(release)); err != nil {
						return err
					}
				}
				locks, err := a.Locks.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), locks)
			})
		},
	}
	cmd.Flags().StringVar(&release, "release", "", "Symbol whose lock to force-release")
	return cmd
}

func (c *cli) releaseLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-lock <symbol>",
		Short: "Force-release a symbol lock left by a crashed pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(args[0])
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Locks.ForceReleaseSymbol(ctx, symbol); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", symbol)
				return nil
			})
		},
	}
}

func (c *cli) closeTradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-trade <id> <exit-price>",
		Short: "Close an open trade at the given exit price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exit, err := strconv.ParseFloat(args[1], 64)
			if err != nil || exit <= 0 {
				return fmt.Errorf("invalid exit price %q", args[1])
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				closed, err := a.Ledger.CloseTrade(ctx, args[0], exit)
				if err != nil {
					return err
				}
				if !closed {
					fmt.Fprintf(cmd.ErrOrStderr(), "trade %s was already closed\n", args[0])
				}
				trade, err := a.Ledger.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), trade)
			})
		},
	}
}

func sampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config <path>",
		Short: "Write a config file populated with defaults (mock mode on)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.GenerateSampleConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for auth.operator_pass_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
