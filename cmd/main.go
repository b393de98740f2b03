package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"holiday-policy-bot/handler"
	"holiday-policy-bot/internal/config"
	"holiday-policy-bot/internal/integrations/deepseek"
	"holiday-policy-bot/internal/integrations/paramstore"
	"holiday-policy-bot/internal/integrations/policysite"
	"holiday-policy-bot/internal/integrations/slackapp"
	"holiday-policy-bot/internal/policycache"
	"holiday-policy-bot/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env file", "err", err)
		os.Exit(1)
	}
	cfg := config.FromEnv(os.Getenv)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		if err := cfg.ResolveSecrets(ctx, ssmClient); err != nil {
			logger.Error("failed to resolve secrets", "err", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Policy source ----
	cache := policycache.New()
	fetcher := policysite.NewFetcher(cfg.PolicyURL, policysite.WithLogger(logger))
	refresher, err := policycache.NewRefresher(cache, fetcher, cfg.RefreshInterval, logger)
	if err != nil {
		logger.Error("failed to create policy refresher", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	completion, err := deepseek.NewClient(cfg.CompletionAPIKey,
		deepseek.WithBaseURL(cfg.CompletionBaseURL),
		deepseek.WithModel(cfg.CompletionModel),
		deepseek.WithMaxTokens(cfg.MaxTokens),
	)
	if err != nil {
		logger.Error("failed to create completion client", "err", err)
		os.Exit(1)
	}

	transport, err := slackapp.New(slackapp.Config{
		BotToken: cfg.SlackBotToken,
		AppToken: cfg.SlackAppToken,
		Debug:    cfg.SlackDebug,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create Slack transport", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	answers, err := usecase.NewAnswerService(cache, fetcher, completion, logger)
	if err != nil {
		logger.Error("failed to create answer service", "err", err)
		os.Exit(1)
	}

	gateway, err := handler.NewGateway(answers, transport, logger)
	if err != nil {
		logger.Error("failed to create gateway", "err", err)
		os.Exit(1)
	}

	// ---- Run ----
	if err := transport.Connect(ctx); err != nil {
		logger.Error("failed to start app", "err", err)
		os.Exit(1)
	}

	refresher.RefreshNow(ctx)
	refresher.Start()
	defer refresher.Stop()

	logger.Info("app is running")
	if err := transport.Run(ctx, gateway); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Slack connection lost", "err", err)
		refresher.Stop()
		os.Exit(1)
	}
	logger.Info("app stopped")
}
