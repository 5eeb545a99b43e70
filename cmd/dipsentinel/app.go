package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"DipSentinel/internal/backtest"
	"DipSentinel/internal/breadth"
	"DipSentinel/internal/collector"
	"DipSentinel/internal/config"
	"DipSentinel/internal/logging"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/monitor"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/state"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	metrics  *metrics.Metrics
	notifier notifier.Notifier
	recorder recorder.Recorder
	monitor  *monitor.Monitor
	backtest *backtest.Runner
	closers  []func() error
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, closers: []func() error{logCloser.Close}}

	a.loc, err = cfg.Location()
	if err != nil {
		return nil, err
	}
	rules, err := cfg.StrategyRules()
	if err != nil {
		return nil, err
	}
	a.metrics = metrics.NewMetrics("")

	fetcher := newFetcher(cfg, a.loc)
	log.Info().Str("source", fetcher.Name()).Str("symbol", cfg.DataSource.Symbol).Msg("data source selected")
	col := collector.NewCollector(fetcher, cfg.DataSource.Symbol, cfg.Backtest.BatchDays, cfg.Backtest.RequestInterval)

	a.notifier = newNotifier(cfg, a.metrics)
	a.recorder = newRecorder(cfg)
	a.closers = append(a.closers, a.recorder.Close)

	mon := monitor.New(cfg.DataSource.Symbol, col, newBreadth(cfg, a.metrics), state.NewFileStore(cfg.State.File), rules)
	mon.Lookback = cfg.DataSource.LookbackDays
	mon.Location = a.loc
	mon.Notifier = a.notifier
	mon.Recorder = a.recorder
	mon.Metrics = a.metrics
	a.monitor = mon

	bt := backtest.NewRunner(cfg.DataSource.Symbol, col, rules)
	bt.ExtraDays = *cfg.Backtest.ExtraDays
	bt.MinTradingDays = cfg.Backtest.MinTradingDays
	bt.Recorder = a.recorder
	bt.Metrics = a.metrics
	a.backtest = bt

	return a, nil
}

// Close releases the recorder and the log file, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
}

func newFetcher(cfg *config.Config, loc *time.Location) collector.Fetcher {
	switch {
	case cfg.DataSource.CSVPath != "":
		return collector.NewCSVFetcher(cfg.DataSource.CSVPath)
	case cfg.DataSource.BaseURL != "":
		return collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy, loc)
	default:
		return collector.NewYahooFetcher(cfg.Proxy, loc)
	}
}

func newBreadth(cfg *config.Config, m *metrics.Metrics) breadth.Provider {
	fallback := breadth.Fixed{Value: cfg.Breadth.DefaultValue}
	switch cfg.Breadth.Mode {
	case "simulated":
		return breadth.DailySimulated{}
	case "fixed":
		return fallback
	default:
		p := breadth.NewWebProvider(breadth.DefaultSources(), cfg.Proxy, cfg.Breadth.Timeout, cfg.Breadth.SourcePause, fallback)
		p.Metrics = m
		return p
	}
}

func newNotifier(cfg *config.Config, m *metrics.Metrics) notifier.Notifier {
	var channels []notifier.Notifier
	if cfg.Telegram.BotToken != "" {
		channels = append(channels, notifier.WithRetry(
			notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy), 3, time.Second))
	}
	if cfg.ServerChan.SendKey != "" {
		channels = append(channels, notifier.WithRetry(
			notifier.NewServerChanNotifier(cfg.ServerChan.SendKey, cfg.ServerChan.Title, cfg.Proxy), 3, time.Second))
	}
	if len(channels) == 0 {
		log.Warn().Msg("no notification channel configured, alerts will only be logged")
		return notifier.Noop{}
	}
	return &notifier.Multi{Channels: channels, Metrics: m}
}

func newRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// telegram returns the Telegram channel for command polling, if configured.
func (a *app) telegram() *notifier.TelegramNotifier {
	if a.cfg.Telegram.BotToken == "" {
		return nil
	}
	return notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy)
}
