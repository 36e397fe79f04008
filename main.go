package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"competitive-insights/app"
	"competitive-insights/config"
	"competitive-insights/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "competitive-insights",
		Short:         "Competitive analysis and anomaly monitoring for Amazon listings",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), analyzeCmd(), detectCmd(), reportCmd(), alertsCmd())
	return root
}

// setup loads configuration and builds the logger shared by every command
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return cfg, log, nil
}

// withApp bootstraps the application for a one-shot command
func withApp(ctx context.Context, fn func(a *app.App, cfg *config.Config) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a := app.New(cfg, log)
	defer a.Close()
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	return fn(a, cfg)
}

func parseGroupID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid group id %q", arg)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor loop, snapshot listener and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.New(cfg, log).Start()
		},
	}
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <group-id>",
		Short: "Print the competitive analysis of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App, _ *config.Config) error {
				result, err := a.Service().Analyze(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func detectCmd() *cobra.Command {
	var groupID int64
	cmd := &cobra.Command{
		Use:   "detect [asin]",
		Short: "Detect anomalies for one ASIN or every product of a group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if groupID == 0 && len(args) == 0 {
				return fmt.Errorf("either an ASIN or --group is required")
			}
			return withApp(cmd.Context(), func(a *app.App, cfg *config.Config) error {
				if groupID > 0 {
					alerts, err := a.Service().DetectGroup(cmd.Context(), groupID)
					if err != nil {
						return err
					}
					return printJSON(cmd, alerts)
				}

				thresholds, err := config.LoadThresholds(cfg.ThresholdsFile)
				if err != nil {
					return err
				}
				alerts, err := a.Service().DetectAnomalies(cmd.Context(), args[0], thresholds)
				if err != nil {
					return err
				}
				return printJSON(cmd, alerts)
			})
		},
	}
	cmd.Flags().Int64Var(&groupID, "group", 0, "detect for every product of this group using its thresholds")
	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <group-id>",
		Short: "Assemble the competitive report of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App, _ *config.Config) error {
				rep, err := a.Service().AssembleReport(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
}

func alertsCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Summarize recent alerts by rule, severity and product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive, got %d", hours)
			}
			return withApp(cmd.Context(), func(a *app.App, _ *config.Config) error {
				summary, err := a.Service().AlertSummary(cmd.Context(), time.Duration(hours)*time.Hour)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "trailing window in hours")
	return cmd
}
