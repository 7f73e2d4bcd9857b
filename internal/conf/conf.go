package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/usecase"
)

// Supported platforms
const (
	PlatformQQ     = "qq"
	PlatformFeishu = "feishu"
)

// Config represents application configuration
type Config struct {
	// Platform selects the messaging platform: qq or feishu
	Platform string

	QQ     QQConfig
	Feishu FeishuConfig

	// OpenAI compatible chat model (optional)
	OpenAI OpenAIConfig

	Store StoreConfig
	API   APIConfig
	Log   LogConfig

	// Gateway is the YAML config with env overrides applied
	Gateway *GatewayConfig

	// Debug mode
	Debug bool
}

// QQConfig contains QQ bot configuration
type QQConfig struct {
	AppID     string
	AppSecret string
	Sandbox   bool
	// WebhookAddr is where the webhook callback server listens
	WebhookAddr string
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// OpenAIConfig contains chat model configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StoreConfig contains message store configuration
type StoreConfig struct {
	DBPath string
}

// APIConfig contains producer HTTP API configuration
type APIConfig struct {
	Port      int
	RateLimit float64 // requests per second per client, 0 disables
	RateBurst int
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	dbPath := os.Getenv("MESSAGE_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".qq-bot-bridge", "messages.db")
	}

	gateway, err := LoadGatewayConfig(os.Getenv("GATEWAY_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	applyDeliveryEnv(&gateway.Delivery)
	if val := os.Getenv("CHAT_COMMAND_PREFIX"); val != "" {
		gateway.Chat.CommandPrefix = val
	}

	platform := os.Getenv("PLATFORM")
	if platform == "" {
		platform = PlatformQQ
	}

	webhookAddr := os.Getenv("QQ_WEBHOOK_ADDR")
	if webhookAddr == "" {
		webhookAddr = ":8443"
	}

	return &Config{
		Platform: platform,
		QQ: QQConfig{
			AppID:       os.Getenv("QQ_APP_ID"),
			AppSecret:   os.Getenv("QQ_APP_SECRET"),
			Sandbox:     os.Getenv("QQ_SANDBOX") == "true",
			WebhookAddr: webhookAddr,
		},
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		API: APIConfig{
			Port:      envInt("API_PORT", 9876),
			RateLimit: envFloat("API_RATE_LIMIT", 5),
			RateBurst: envInt("API_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
		Gateway: gateway,
		Debug:   os.Getenv("DEBUG") == "true",
	}, nil
}

// applyDeliveryEnv overrides YAML delivery values with env values
func applyDeliveryEnv(d *DeliveryConfig) {
	d.MaxRepliesPerToken = envInt("MAX_REPLIES_PER_TOKEN", d.MaxRepliesPerToken)
	d.TokenExpirySeconds = envInt("TOKEN_EXPIRY_SECONDS", d.TokenExpirySeconds)
	d.MaxRetry = envInt("MAX_RETRY", d.MaxRetry)
	d.PollIdleDelayMs = envInt("POLL_IDLE_DELAY_MS", d.PollIdleDelayMs)
	d.PollBusyDelayMs = envInt("POLL_BUSY_DELAY_MS", d.PollBusyDelayMs)
	d.SweepIntervalSeconds = envInt("SWEEP_INTERVAL_SECONDS", d.SweepIntervalSeconds)
	d.SendTimeoutSeconds = envInt("SEND_TIMEOUT_SECONDS", d.SendTimeoutSeconds)
	d.RecordTimeoutSeconds = envInt("RECORD_TIMEOUT_SECONDS", d.RecordTimeoutSeconds)
	d.InboxSize = envInt("INBOX_SIZE", d.InboxSize)
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// ToDispatchConfig converts to dispatch loop configuration
func (d *DeliveryConfig) ToDispatchConfig() usecase.DispatchConfig {
	return usecase.DispatchConfig{
		Token: domain.TokenConfig{
			MaxReplies: d.MaxRepliesPerToken,
			Expiry:     time.Duration(d.TokenExpirySeconds) * time.Second,
		},
		MaxRetry:      d.MaxRetry,
		IdleDelay:     time.Duration(d.PollIdleDelayMs) * time.Millisecond,
		BusyDelay:     time.Duration(d.PollBusyDelayMs) * time.Millisecond,
		SweepInterval: time.Duration(d.SweepIntervalSeconds) * time.Second,
		SendTimeout:   time.Duration(d.SendTimeoutSeconds) * time.Second,
		RecordTimeout: time.Duration(d.RecordTimeoutSeconds) * time.Second,
		InboxSize:     d.InboxSize,
	}
}

// ToChatConfig converts to chat usecase configuration
func (c *ChatConfig) ToChatConfig() usecase.ChatConfig {
	return usecase.ChatConfig{
		CommandPrefix: c.CommandPrefix,
		HistoryLimit:  c.HistoryLimit,
		MaxReplyRunes: c.MaxReplyRunes,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformQQ:
		if c.QQ.AppID == "" || c.QQ.AppSecret == "" {
			return &ConfigError{Field: "QQ_APP_ID/QQ_APP_SECRET", Message: "required"}
		}
	case PlatformFeishu:
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
		}
	default:
		return &ConfigError{Field: "PLATFORM", Message: "must be qq or feishu, got " + strconv.Quote(c.Platform)}
	}

	if c.Gateway == nil {
		return &ConfigError{Field: "gateway", Message: "not loaded"}
	}
	return c.Gateway.Validate()
}

// Validate validates the gateway file values
func (g *GatewayConfig) Validate() error {
	d := g.Delivery
	if d.SweepIntervalSeconds < 60 || d.SweepIntervalSeconds > 180 {
		return &ConfigError{Field: "SWEEP_INTERVAL_SECONDS", Message: "must be between 60 and 180"}
	}
	if d.MaxRepliesPerToken <= 0 {
		return &ConfigError{Field: "MAX_REPLIES_PER_TOKEN", Message: "must be positive"}
	}
	if d.TokenExpirySeconds <= 0 {
		return &ConfigError{Field: "TOKEN_EXPIRY_SECONDS", Message: "must be positive"}
	}
	if d.MaxRetry <= 0 {
		return &ConfigError{Field: "MAX_RETRY", Message: "must be positive"}
	}
	if d.PollIdleDelayMs <= 0 || d.PollBusyDelayMs <= 0 {
		return &ConfigError{Field: "POLL_IDLE_DELAY_MS/POLL_BUSY_DELAY_MS", Message: "must be positive"}
	}

	gron := gronx.New()
	if g.Retention.Schedule != "" && !gron.IsValid(g.Retention.Schedule) {
		return &ConfigError{Field: "retention.schedule", Message: "invalid cron expression"}
	}
	for _, task := range g.Tasks {
		field := "tasks." + task.Name
		if !gron.IsValid(task.Schedule) {
			return &ConfigError{Field: field, Message: "invalid cron expression " + strconv.Quote(task.Schedule)}
		}
		if _, err := domain.ParseSurfaceKind(task.Kind); err != nil {
			return &ConfigError{Field: field, Message: err.Error()}
		}
		if task.Target == "" || task.Content == "" {
			return &ConfigError{Field: field, Message: "target and content are required"}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
