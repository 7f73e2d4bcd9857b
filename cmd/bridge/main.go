package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wechatter/qq-bot-bridge/internal/api"
	"github.com/wechatter/qq-bot-bridge/internal/biz"
	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/conf"
	"github.com/wechatter/qq-bot-bridge/internal/data"
	"github.com/wechatter/qq-bot-bridge/internal/infra/feishu"
	"github.com/wechatter/qq-bot-bridge/internal/infra/openai"
	"github.com/wechatter/qq-bot-bridge/internal/infra/qq"
	"github.com/wechatter/qq-bot-bridge/internal/server"
	"github.com/wechatter/qq-bot-bridge/internal/service"
)

// inboundServer is the platform side that feeds inbound messages
type inboundServer interface {
	Start() error
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := conf.NewLogger(os.Stderr, cfg.Log, cfg.Debug)
	if err != nil {
		log.Fatalf("Invalid log config: %v", err)
	}
	slog.SetDefault(logger)
	logger = logger.With("component", "bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients
	clients := data.Clients{}
	var feishuClient *feishu.Client
	switch cfg.Platform {
	case conf.PlatformFeishu:
		feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		clients.Feishu = feishuClient
	default:
		clients.QQ = qq.NewClient(cfg.QQ.AppID, cfg.QQ.AppSecret, cfg.QQ.Sandbox)
	}
	if cfg.OpenAI.APIKey != "" {
		clients.Chat = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		if prompt := cfg.Gateway.Chat.SystemPrompt; prompt != "" {
			clients.Chat.SetSystemPrompt(prompt)
		}
		logger.Info("chat model enabled", "model", clients.Chat.Model())
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(clients, cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()
	logger.Info("message store opened", "path", cfg.Store.DBPath)

	identityCtx, identityCancel := context.WithTimeout(ctx, 10*time.Second)
	bot, err := repos.Platform.Identity(identityCtx)
	identityCancel()
	if err != nil {
		logger.Warn("failed to fetch bot identity, sent messages will carry no sender", "error", err)
	}

	// Initialize usecase layer
	ucs := biz.NewUsecases(
		repos.Platform,
		repos.Message,
		repos.Chat,
		bot,
		cfg.Gateway.Delivery.ToDispatchConfig(),
		cfg.Gateway.Chat.ToChatConfig(),
	)
	ucs.Dispatcher.Start(ctx)

	// Initialize service layer
	chatSvc := service.NewChatService(ucs.Conversation, ucs.Dispatcher, ucs.Recorder)

	sends, err := scheduledSends(cfg.Gateway.Tasks)
	if err != nil {
		log.Fatalf("Invalid tasks: %v", err)
	}
	cron, err := service.NewCronRunner(ucs.Dispatcher, repos.Message, sends, service.Retention{
		Schedule: cfg.Gateway.Retention.Schedule,
		Keep:     time.Duration(cfg.Gateway.Retention.Days) * 24 * time.Hour,
	})
	if err != nil {
		log.Fatalf("Failed to create cron runner: %v", err)
	}
	cron.Start(ctx)

	// Initialize HTTP API server
	apiServer := api.NewServer(ucs.Dispatcher, repos.Message, cfg.API.Port, cfg.API.RateLimit, cfg.API.RateBurst)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", "error", err)
		}
	}()

	// Initialize inbound server
	var srv inboundServer
	var stopInbound func()
	if feishuClient != nil {
		fs := server.NewFeishuServer(feishuClient, chatSvc)
		srv, stopInbound = fs, fs.Stop
	} else {
		qs, err := server.NewQQServer(cfg.QQ.AppSecret, cfg.QQ.WebhookAddr, chatSvc)
		if err != nil {
			log.Fatalf("Failed to create webhook server: %v", err)
		}
		srv, stopInbound = qs, func() {
			if err := qs.Stop(); err != nil {
				logger.Warn("webhook shutdown", "error", err)
			}
		}
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("bridge started", "platform", cfg.Platform, "bot", bot.Name)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("inbound server error", "error", err)
		}
	}

	stopInbound()
	cron.Stop()
	apiServer.Stop()
	ucs.Dispatcher.Stop()
	cancel()
}

// scheduledSends converts configured tasks to cron sends
func scheduledSends(tasks []conf.TaskConfig) ([]service.ScheduledSend, error) {
	sends := make([]service.ScheduledSend, 0, len(tasks))
	for _, task := range tasks {
		kind, err := domain.ParseSurfaceKind(task.Kind)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.Name, err)
		}

		var target domain.TargetRef
		switch kind {
		case domain.SurfaceGroupReply:
			target = domain.GroupTarget(task.Target, nil)
		case domain.SurfaceUserReply:
			target = domain.UserTarget(task.Target)
		default:
			target = domain.DirectTarget(task.Target)
		}

		sends = append(sends, service.ScheduledSend{
			Name:     task.Name,
			Schedule: task.Schedule,
			Target:   target,
			Content:  task.Content,
			IsMedia:  task.Media,
		})
	}
	return sends, nil
}
