package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"zava-chat/handler"
	"zava-chat/internal/config"
	"zava-chat/internal/integrations/azureopenai"
	"zava-chat/internal/integrations/identity"
	"zava-chat/internal/integrations/paramstore"
	"zava-chat/internal/relay"
	"zava-chat/internal/repository"
)

type app struct {
	cfg     config.Config
	relay   *relay.Relay
	handler *handler.Handler
}

func buildApp(ctx context.Context, envFile string) (*app, error) {
	// ---- Configuration (read only here) ----
	cfg := config.Load(envFile)

	// ---- AWS (only when a parameter prefix or exchange table is set) ----
	var recorder handler.ExchangeRecorder
	if cfg.ParamPrefix != "" || cfg.ExchangeTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		if cfg.ParamPrefix != "" {
			ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("create SSM client: %w", err)
			}
			if err := cfg.ResolvePhi4(ctx, ssmClient); err != nil {
				slog.Warn("failed to resolve phi4 settings from parameter store", "err", err)
			}
		}

		if cfg.ExchangeTable != "" {
			exchangeLog, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.ExchangeTable)
			if err != nil {
				return nil, fmt.Errorf("create exchange log: %w", err)
			}
			recorder = exchangeLog
		}
	}

	if !cfg.Phi4.Configured() {
		slog.Warn("phi4 endpoint is not configured; chat replies will report a configuration error")
	}

	// ---- Identity ----
	tokens, err := tokenProvider(cfg)
	if err != nil {
		return nil, err
	}

	// ---- Relay ----
	completer := azureopenai.NewClient(azureopenai.WithTimeout(cfg.Phi4.Timeout))
	rl, err := relay.New(cfg.Phi4, tokens, completer, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create relay: %w", err)
	}

	// ---- Handler ----
	opts := []handler.Option{handler.WithLogger(slog.Default())}
	if recorder != nil {
		opts = append(opts, handler.WithExchangeRecorder(recorder))
	}
	h, err := handler.NewHandler(rl, opts...)
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}

	return &app{cfg: cfg, relay: rl, handler: h}, nil
}

func tokenProvider(cfg config.Config) (identity.TokenProvider, error) {
	if cfg.BearerToken != "" {
		slog.Info("using static bearer token for phi4 requests")
		p, err := identity.NewStaticProvider(cfg.BearerToken)
		if err != nil {
			return nil, fmt.Errorf("create static token provider: %w", err)
		}
		return p, nil
	}
	p, err := identity.NewDefaultAzureProvider()
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	return p, nil
}
