package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/strategy"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "SCKEY", "DATA_BASE_URL", "DATA_API_KEY",
		"MONITOR_SYMBOL", "HTTPS_PROXY", "CRON_DAILY", "SQLITE_PATH", "STATE_FILE",
		"BREADTH_MODE", "LOG_LEVEL", "METRICS_ADDR", "BACKTEST_DAYS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "RSP", cfg.DataSource.Symbol)
	assert.Equal(t, 60, cfg.DataSource.LookbackDays)
	assert.Equal(t, "0 0 21 * * 1-5", cfg.Schedule.DailyCron)
	assert.Equal(t, "web", cfg.Breadth.Mode)
	assert.Equal(t, 20.0, cfg.Breadth.DefaultValue)
	assert.Equal(t, 2*time.Second, cfg.Breadth.SourcePause)
	assert.Equal(t, "friday", cfg.Rules.DeadlineWeekday)
	assert.Equal(t, 365, cfg.Backtest.WindowDays)
	require.NotNil(t, cfg.Backtest.ExtraDays)
	assert.Equal(t, 30, *cfg.Backtest.ExtraDays)
	assert.Equal(t, "data/monitor_state.json", cfg.State.File)

	rules, err := cfg.StrategyRules()
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultRules(), rules)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_source:
  symbol: VOO
  timezone: UTC
breadth:
  mode: fixed
  timeout: 5s
rules:
  second_dip_decline: 0.08
  deadline_weekday: Wednesday
  deadline_occurrence: 2
backtest:
  request_interval: 250ms
`), 0o644))
	t.Setenv("MONITOR_SYMBOL", "RSP")
	t.Setenv("SCKEY", "SCT123")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "RSP", cfg.DataSource.Symbol)
	assert.Equal(t, "SCT123", cfg.ServerChan.SendKey)
	assert.Equal(t, 5*time.Second, cfg.Breadth.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Backtest.RequestInterval)

	rules, err := cfg.StrategyRules()
	require.NoError(t, err)
	assert.Equal(t, 0.08, rules.SecondDipDecline)
	assert.Equal(t, time.Wednesday, rules.DeadlineWeekday)
	assert.Equal(t, 2, rules.DeadlineOccurrence)
	assert.Equal(t, -0.01, rules.FirstDipReturn)
}

func TestLoadKeepsZeroExtraDays(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backtest:\n  extra_days: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Backtest.ExtraDays)
	assert.Equal(t, 0, *cfg.Backtest.ExtraDays)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"bad mode":            func(c *Config) { c.Breadth.Mode = "magic" },
		"positive first dip":  func(c *Config) { c.Rules.FirstDipReturn = 0.02 },
		"weekend deadline":    func(c *Config) { c.Rules.DeadlineWeekday = "sunday" },
		"unknown timezone":    func(c *Config) { c.DataSource.Timezone = "Mars/Olympus" },
		"bad cron":            func(c *Config) { c.Schedule.DailyCron = "every day" },
		"chat id missing":     func(c *Config) { c.Telegram.BotToken = "token" },
		"fallback would fire": func(c *Config) { c.Breadth.DefaultValue = 10 },
		"negative extra days": func(c *Config) { n := -1; c.Backtest.ExtraDays = &n },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
