package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GatewayConfig is the optional YAML gateway file
type GatewayConfig struct {
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Chat      ChatConfig      `yaml:"chat"`
	Retention RetentionConfig `yaml:"retention"`
	Tasks     []TaskConfig    `yaml:"tasks"`
}

// DeliveryConfig tunes the dispatch loop
type DeliveryConfig struct {
	MaxRepliesPerToken   int `yaml:"max_replies_per_token"`
	TokenExpirySeconds   int `yaml:"token_expiry_seconds"`
	MaxRetry             int `yaml:"max_retry"`
	PollIdleDelayMs      int `yaml:"poll_idle_delay_ms"`
	PollBusyDelayMs      int `yaml:"poll_busy_delay_ms"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	SendTimeoutSeconds   int `yaml:"send_timeout_seconds"`
	RecordTimeoutSeconds int `yaml:"record_timeout_seconds"`
	InboxSize            int `yaml:"inbox_size"`
}

// ChatConfig configures the chat command handler
type ChatConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
	HistoryLimit  int    `yaml:"history_limit"`
	MaxReplyRunes int    `yaml:"max_reply_runes"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// RetentionConfig controls cleanup of stored messages
type RetentionConfig struct {
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"` // cron expression
}

// TaskConfig is a scheduled proactive send
type TaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression
	Kind     string `yaml:"kind"`     // direct_message, group_reply or user_reply
	Target   string `yaml:"target"`   // guild, group openid or user openid
	Content  string `yaml:"content"`
	Media    bool   `yaml:"media"`
}

// LoadGatewayConfig loads the gateway YAML file. An empty path searches the
// default locations; no file found means defaults.
func LoadGatewayConfig(configPath string) (*GatewayConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/gateway.yaml",
			"/etc/qq-bot-bridge/gateway.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "gateway.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if b, err := os.ReadFile(p); err == nil {
			data, loadedPath = b, p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("gateway config %s not found", configPath)
		}
		slog.Debug("no gateway.yaml found, using defaults")
		return DefaultGatewayConfig(), nil
	}

	slog.Info("loading gateway config", "path", loadedPath)

	var config GatewayConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.fillDefaults()
	return &config, nil
}

// DefaultGatewayConfig returns the built-in gateway configuration
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Delivery: DeliveryConfig{
			MaxRepliesPerToken:   5,
			TokenExpirySeconds:   300,
			MaxRetry:             3,
			PollIdleDelayMs:      1000,
			PollBusyDelayMs:      100,
			SweepIntervalSeconds: 120,
			SendTimeoutSeconds:   10,
			RecordTimeoutSeconds: 5,
			InboxSize:            256,
		},
		Chat: ChatConfig{
			CommandPrefix: "/gpt",
			HistoryLimit:  10,
			MaxReplyRunes: 1800,
		},
		Retention: RetentionConfig{
			Days:     30,
			Schedule: "0 4 * * *",
		},
	}
}

// fillDefaults fills in default values for zero fields
func (c *GatewayConfig) fillDefaults() {
	d := DefaultGatewayConfig()

	fill := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&c.Delivery.MaxRepliesPerToken, d.Delivery.MaxRepliesPerToken)
	fill(&c.Delivery.TokenExpirySeconds, d.Delivery.TokenExpirySeconds)
	fill(&c.Delivery.MaxRetry, d.Delivery.MaxRetry)
	fill(&c.Delivery.PollIdleDelayMs, d.Delivery.PollIdleDelayMs)
	fill(&c.Delivery.PollBusyDelayMs, d.Delivery.PollBusyDelayMs)
	fill(&c.Delivery.SweepIntervalSeconds, d.Delivery.SweepIntervalSeconds)
	fill(&c.Delivery.SendTimeoutSeconds, d.Delivery.SendTimeoutSeconds)
	fill(&c.Delivery.RecordTimeoutSeconds, d.Delivery.RecordTimeoutSeconds)
	fill(&c.Delivery.InboxSize, d.Delivery.InboxSize)

	if c.Chat.CommandPrefix == "" {
		c.Chat.CommandPrefix = d.Chat.CommandPrefix
	}
	fill(&c.Chat.HistoryLimit, d.Chat.HistoryLimit)
	fill(&c.Chat.MaxReplyRunes, d.Chat.MaxReplyRunes)

	fill(&c.Retention.Days, d.Retention.Days)
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = d.Retention.Schedule
	}
}
