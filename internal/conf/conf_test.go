package conf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

func validConfig() *Config {
	return &Config{
		Platform: PlatformQQ,
		QQ:       QQConfig{AppID: "app", AppSecret: "secret"},
		Gateway:  DefaultGatewayConfig(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing qq secret", func(c *Config) { c.QQ.AppSecret = "" }, "QQ_APP_ID/QQ_APP_SECRET"},
		{"feishu missing", func(c *Config) { c.Platform = PlatformFeishu }, "FEISHU_APP_ID/FEISHU_APP_SECRET"},
		{"unknown platform", func(c *Config) { c.Platform = "irc" }, "PLATFORM"},
		{"sweep too short", func(c *Config) { c.Gateway.Delivery.SweepIntervalSeconds = 59 }, "SWEEP_INTERVAL_SECONDS"},
		{"sweep too long", func(c *Config) { c.Gateway.Delivery.SweepIntervalSeconds = 181 }, "SWEEP_INTERVAL_SECONDS"},
		{"sweep lower bound", func(c *Config) { c.Gateway.Delivery.SweepIntervalSeconds = 60 }, ""},
		{"bad retention cron", func(c *Config) { c.Gateway.Retention.Schedule = "every day" }, "retention.schedule"},
		{"bad task kind", func(c *Config) {
			c.Gateway.Tasks = []TaskConfig{{Name: "t", Schedule: "* * * * *", Kind: "channel", Target: "g", Content: "x"}}
		}, "tasks.t"},
		{"bad task cron", func(c *Config) {
			c.Gateway.Tasks = []TaskConfig{{Name: "t", Schedule: "61 * * * *", Kind: "group", Target: "g", Content: "x"}}
		}, "tasks.t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestLoadGatewayConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
delivery:
  max_replies_per_token: 4
  sweep_interval_seconds: 90
chat:
  command_prefix: /ask
tasks:
  - name: morning
    schedule: "0 9 * * *"
    kind: group
    target: g1
    content: good morning
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Delivery.MaxRepliesPerToken != 4 || cfg.Delivery.SweepIntervalSeconds != 90 {
		t.Errorf("Expected file values, got %+v", cfg.Delivery)
	}
	if cfg.Delivery.MaxRetry != 3 || cfg.Delivery.TokenExpirySeconds != 300 {
		t.Errorf("Expected defaults for missing values, got %+v", cfg.Delivery)
	}
	if cfg.Chat.CommandPrefix != "/ask" || cfg.Chat.HistoryLimit != 10 {
		t.Errorf("Unexpected chat config: %+v", cfg.Chat)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Target != "g1" {
		t.Errorf("Unexpected tasks: %+v", cfg.Tasks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestLoadGatewayConfig_MissingExplicitPath(t *testing.T) {
	if _, err := LoadGatewayConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit path")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_PATH", "")
	t.Setenv("PLATFORM", "feishu")
	t.Setenv("MAX_REPLIES_PER_TOKEN", "2")
	t.Setenv("POLL_IDLE_DELAY_MS", "500")
	t.Setenv("MAX_RETRY", "not-a-number")
	t.Setenv("MESSAGE_DB_PATH", "/tmp/x.db")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Platform != PlatformFeishu || cfg.Store.DBPath != "/tmp/x.db" {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	dc := cfg.Gateway.Delivery.ToDispatchConfig()
	if dc.Token.MaxReplies != 2 {
		t.Errorf("Expected MaxReplies 2, got %d", dc.Token.MaxReplies)
	}
	if dc.IdleDelay != 500*time.Millisecond {
		t.Errorf("Expected idle delay 500ms, got %v", dc.IdleDelay)
	}
	if dc.MaxRetry != 3 {
		t.Errorf("Expected unparsable MAX_RETRY to keep default, got %d", dc.MaxRetry)
	}
	if dc.Token.Expiry != 300*time.Second || dc.SweepInterval != 120*time.Second {
		t.Errorf("Unexpected defaults: %+v", dc)
	}
}

func TestDefaultDeliveryMatchesDispatchDefaults(t *testing.T) {
	d := DefaultGatewayConfig().Delivery
	got := d.ToDispatchConfig()
	if got.Token != domain.DefaultTokenConfig() {
		t.Errorf("Expected default token config, got %+v", got.Token)
	}
	if got.InboxSize != 256 || got.SendTimeout != 10*time.Second || got.BusyDelay != 100*time.Millisecond {
		t.Errorf("Unexpected dispatch defaults: %+v", got)
	}
	if got.RecordTimeout != 5*time.Second {
		t.Errorf("Expected record timeout 5s, got %v", got.RecordTimeout)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"}, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "kind", "group_reply")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"kind":"group_reply"`) {
		t.Errorf("Unexpected log output: %s", out)
	}

	if _, err := NewLogger(&buf, LogConfig{Level: "loud"}, false); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := NewLogger(&buf, LogConfig{Format: "xml"}, false); err == nil {
		t.Error("Expected error for unknown format")
	}
}
