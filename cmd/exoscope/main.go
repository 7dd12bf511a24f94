package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rahul/exoscope/internal/agent"
	"github.com/rahul/exoscope/internal/gateway"
	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/pkg/config"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "exoscope",
		Short: "Conversational analytics over NASA exoplanet datasets",
		Long: `exoscope answers natural-language questions about the k2, toi and cum exoplanet
tables. Requests become guarded SQL queries, charts or glossary lookups, served over
HTTP and optionally Telegram and Discord.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file (JSON or YAML)")

	rootCmd.AddCommand(serveCmd(), askCmd(), dumpCmd(), columnsCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig falls back to environment-only settings when the config file is absent.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("%s not found, using environment settings", configPath)
		return config.Default()
	}
	return config.Load(configPath)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and any enabled chat gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			observability.PrintBanner(cfg.App.Listen)
			// Route all log output through the terminal mutex so it never
			// interrupts the status line.
			log.SetOutput(observability.NewTermWriter())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := agent.NewScheduler(a.orch, a.logger, agent.DefaultMaintenanceInterval)
			go scheduler.Start(ctx)

			if observability.IsTerminal() {
				go func() {
					ticker := time.NewTicker(1 * time.Second)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							observability.PrintLiveStatus()
						}
					}
				}()
			}

			gateways := []gateway.Gateway{gateway.NewHTTPGateway(cfg.App.Listen, a.orch)}

			if tgCfg, ok := cfg.GetTelegramConfig(); ok {
				tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.orch, gateway.NewChatSessions(tgCfg.Table))
				if err != nil {
					log.Printf("Warning: Telegram gateway disabled: %v", err)
				} else {
					gateways = append(gateways, tg)
				}
			}
			if dcCfg, ok := cfg.GetDiscordConfig(); ok {
				dc, err := gateway.NewDiscordGateway(dcCfg.Token, a.orch, gateway.NewChatSessions(dcCfg.Table))
				if err != nil {
					log.Printf("Warning: Discord gateway disabled: %v", err)
				} else {
					gateways = append(gateways, dc)
				}
			}

			for _, g := range gateways {
				go func(g gateway.Gateway) {
					if err := g.Start(); err != nil {
						log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
						stop()
					}
				}(g)
			}

			<-ctx.Done()

			for _, g := range gateways {
				if err := g.Stop(); err != nil {
					log.Printf("gateway stop: %v", err)
				}
			}
			// Give a short time for final logs
			time.Sleep(500 * time.Millisecond)
			log.Println("\033[95m[ EXIT ] exoscope stopped.\033[0m")
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the response envelope as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			env := a.orch.Handle(cmd.Context(), agent.Request{
				Message: strings.Join(args, " "),
				Table:   table,
				Session: "cli",
			})
			return printJSON(cmd, env)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "k2", "dataset to ask about")
	return cmd
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <table>",
		Short: "Print up to 1000 rows of a dataset as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orch.RunDirectQuery(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func columnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cols, err := a.orch.Columns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, c := range cols {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
