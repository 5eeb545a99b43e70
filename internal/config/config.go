package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"DipSentinel/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
	} `yaml:"telegram"`
	ServerChan struct {
		SendKey string `yaml:"send_key"`
		Title   string `yaml:"title"`
	} `yaml:"serverchan"`
	DataSource struct {
		BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
		APIKey       string `yaml:"api_key"`
		CSVPath      string `yaml:"csv_path"`
		Symbol       string `yaml:"symbol" validate:"required"`
		Timezone     string `yaml:"timezone" validate:"required"`
		LookbackDays int    `yaml:"lookback_days" validate:"gte=10,lte=500"`
	} `yaml:"data_source"`
	Breadth struct {
		Mode         string        `yaml:"mode" validate:"oneof=web simulated fixed"`
		DefaultValue float64       `yaml:"default_value" validate:"gte=0,lte=100"`
		Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
		SourcePause  time.Duration `yaml:"source_pause" validate:"gte=0"`
	} `yaml:"breadth"`
	Rules struct {
		FirstDipReturn     float64 `yaml:"first_dip_return" validate:"gt=-1,lt=0"`
		SecondDipDecline   float64 `yaml:"second_dip_decline" validate:"gt=0,lt=1"`
		BreadthThreshold   float64 `yaml:"breadth_threshold" validate:"gt=0,lte=100"`
		DeadlineWeekday    string  `yaml:"deadline_weekday" validate:"oneof=monday tuesday wednesday thursday friday"`
		DeadlineOccurrence int     `yaml:"deadline_occurrence" validate:"gte=1,lte=5"`
	} `yaml:"rules"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron" validate:"required"`
	} `yaml:"schedule"`
	State struct {
		File string `yaml:"file" validate:"required"`
	} `yaml:"state"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Backtest struct {
		WindowDays      int           `yaml:"window_days" validate:"gte=30"`
		ExtraDays       *int          `yaml:"extra_days" validate:"omitempty,gte=0"` // nil means 30; 0 disables the lead days
		MinTradingDays  int           `yaml:"min_trading_days" validate:"gte=1,lte=23"`
		BatchDays       int           `yaml:"batch_days" validate:"gte=10"`
		RequestInterval time.Duration `yaml:"request_interval" validate:"gte=0"`
		OutputDir       string        `yaml:"output_dir" validate:"required"`
	} `yaml:"backtest"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Log struct {
		Level string `yaml:"level" validate:"oneof=debug info warn error"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error: defaults and environment are enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	set("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	set("SCKEY", &c.ServerChan.SendKey)
	set("DATA_BASE_URL", &c.DataSource.BaseURL)
	set("DATA_API_KEY", &c.DataSource.APIKey)
	set("MONITOR_SYMBOL", &c.DataSource.Symbol)
	set("HTTPS_PROXY", &c.Proxy)
	set("CRON_DAILY", &c.Schedule.DailyCron)
	set("SQLITE_PATH", &c.Database.SQLitePath)
	set("STATE_FILE", &c.State.File)
	set("BREADTH_MODE", &c.Breadth.Mode)
	set("LOG_LEVEL", &c.Log.Level)
	set("METRICS_ADDR", &c.Metrics.ListenAddr)

	if v := os.Getenv("BACKTEST_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backtest.WindowDays = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.Symbol == "" {
		c.DataSource.Symbol = "RSP"
	}
	if c.DataSource.Timezone == "" {
		c.DataSource.Timezone = "America/New_York"
	}
	if c.DataSource.LookbackDays == 0 {
		c.DataSource.LookbackDays = 60
	}
	if c.Breadth.Mode == "" {
		c.Breadth.Mode = "web"
	}
	if c.Breadth.DefaultValue == 0 {
		c.Breadth.DefaultValue = 20
	}
	if c.Breadth.Timeout == 0 {
		c.Breadth.Timeout = 15 * time.Second
	}
	if c.Breadth.SourcePause == 0 {
		c.Breadth.SourcePause = 2 * time.Second
	}

	def := strategy.DefaultRules()
	if c.Rules.FirstDipReturn == 0 {
		c.Rules.FirstDipReturn = def.FirstDipReturn
	}
	if c.Rules.SecondDipDecline == 0 {
		c.Rules.SecondDipDecline = def.SecondDipDecline
	}
	if c.Rules.BreadthThreshold == 0 {
		c.Rules.BreadthThreshold = def.BreadthThreshold
	}
	if c.Rules.DeadlineWeekday == "" {
		c.Rules.DeadlineWeekday = def.DeadlineWeekday.String()
	}
	c.Rules.DeadlineWeekday = strings.ToLower(c.Rules.DeadlineWeekday)
	if c.Rules.DeadlineOccurrence == 0 {
		c.Rules.DeadlineOccurrence = def.DeadlineOccurrence
	}

	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 0 21 * * 1-5"
	}
	if c.State.File == "" {
		c.State.File = "data/monitor_state.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/dip_sentinel.db"
	}

	if c.Backtest.WindowDays == 0 {
		c.Backtest.WindowDays = 365
	}
	if c.Backtest.ExtraDays == nil {
		extra := 30
		c.Backtest.ExtraDays = &extra
	}
	if c.Backtest.MinTradingDays == 0 {
		c.Backtest.MinTradingDays = 5
	}
	if c.Backtest.BatchDays == 0 {
		c.Backtest.BatchDays = 200
	}
	if c.Backtest.RequestInterval == 0 {
		c.Backtest.RequestInterval = 500 * time.Millisecond
	}
	if c.Backtest.OutputDir == "" {
		c.Backtest.OutputDir = "data/backtest"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
}

// Validate checks field ranges and the settings that need parsing.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.DailyCron); err != nil {
		return fmt.Errorf("schedule.daily_cron: %w", err)
	}
	if c.Breadth.DefaultValue < c.Rules.BreadthThreshold {
		return fmt.Errorf("breadth.default_value %.1f is below rules.breadth_threshold %.1f and would trigger on every fallback",
			c.Breadth.DefaultValue, c.Rules.BreadthThreshold)
	}
	return nil
}

// Location returns the exchange timezone that bar dates are expressed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DataSource.Timezone)
	if err != nil {
		return nil, fmt.Errorf("data_source.timezone: %w", err)
	}
	return loc, nil
}

// StrategyRules converts the rules section.
func (c *Config) StrategyRules() (strategy.Rules, error) {
	wd, ok := weekdays[strings.ToLower(c.Rules.DeadlineWeekday)]
	if !ok {
		return strategy.Rules{}, fmt.Errorf("rules.deadline_weekday: unknown weekday %q", c.Rules.DeadlineWeekday)
	}
	return strategy.Rules{
		FirstDipReturn:     c.Rules.FirstDipReturn,
		SecondDipDecline:   c.Rules.SecondDipDecline,
		BreadthThreshold:   c.Rules.BreadthThreshold,
		DeadlineWeekday:    wd,
		DeadlineOccurrence: c.Rules.DeadlineOccurrence,
	}, nil
}
