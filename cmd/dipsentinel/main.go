package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"DipSentinel/internal/backtest"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/monitor"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/scheduler"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "dipsentinel",
		Short:        "Monthly dip alerts for an ETF savings plan",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default configs/config.yaml or $CONFIG_PATH)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the scheduler, bot commands and metrics server until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runService(cfgPath)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Run today's check once and print the state",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCheck(cmd, cfgPath)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the persisted monthly state",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cfgPath)
				if err != nil {
					return err
				}
				defer a.Close()
				fmt.Fprintln(cmd.OutOrStdout(), a.monitor.StatusText())
				return nil
			},
		},
		newBacktestCmd(&cfgPath),
	)
	return root
}

func runCheck(cmd *cobra.Command, cfgPath string) error {
	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.monitor.RunDailyCheck(ctx)
	out := cmd.OutOrStdout()
	switch {
	case errors.Is(err, monitor.ErrNoDataForToday):
		fmt.Fprintln(out, "😴 今日暂无行情数据")
	case err != nil:
		return err
	case len(res.Events) > 0:
		fmt.Fprintf(out, "🔔 今日触发: %d 个提醒\n", len(res.Events))
	default:
		fmt.Fprintln(out, "😴 今日无触发条件")
	}
	fmt.Fprintln(out, a.monitor.StatusText())
	return nil
}

func newBacktestCmd(cfgPath *string) *cobra.Command {
	var (
		days   int
		outDir string
		notify bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay history through the trigger rules and export the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if days == 0 {
				days = a.cfg.Backtest.WindowDays
			}
			if outDir == "" {
				outDir = a.cfg.Backtest.OutputDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := a.backtest.Run(ctx, days)
			if err != nil {
				return err
			}
			if err := backtest.WriteReport(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			csvPath, jsonPath, err := backtest.Export(outDir, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n📁 回测结果已保存:\n   详细结果: %s\n   汇总统计: %s\n",
				filepath.ToSlash(csvPath), filepath.ToSlash(jsonPath))

			if notify {
				if err := a.notifier.Send(ctx, notifier.FormatBacktestSummary(&res.Summary)); err != nil {
					log.Error().Err(err).Msg("send backtest summary")
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "calendar days to replay (default backtest.window_days)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "export directory (default backtest.output_dir)")
	cmd.Flags().BoolVar(&notify, "notify", false, "also push the summary to the configured channels")
	return cmd
}

func runService(cfgPath string) error {
	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info().Str("symbol", a.cfg.DataSource.Symbol).Msg("DipSentinel starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, a.loc, a.monitor, a.backtest, a.notifier)
	sched.BacktestDays = a.cfg.Backtest.WindowDays
	sched.OutputDir = a.cfg.Backtest.OutputDir
	if err := sched.Register(a.cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn := a.telegram(); tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		srv := metrics.NewServer(addr, a.metrics, func() any { return a.monitor.State() })
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing daily check now")
		go sched.RunDailyNow()
	}

	log.Info().Msg("DipSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
	return nil
}
