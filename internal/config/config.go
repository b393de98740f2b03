// Package config reads the bot's settings from the process environment and,
// optionally, its secrets from AWS SSM Parameter Store.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"holiday-policy-bot/internal/integrations/deepseek"
	"holiday-policy-bot/internal/integrations/policysite"
	"holiday-policy-bot/internal/policycache"
)

const (
	EnvSlackBotToken     = "SLACK_BOT_TOKEN"
	EnvSlackAppToken     = "SLACK_APP_TOKEN"
	EnvCompletionAPIKey  = "DEEPSEEK_API_KEY"
	EnvParamPrefix       = "PARAM_PREFIX"
	EnvPolicyURL         = "POLICY_URL"
	EnvCompletionBaseURL = "COMPLETION_BASE_URL"
	EnvCompletionModel   = "COMPLETION_MODEL"
	EnvMaxTokens         = "COMPLETION_MAX_TOKENS"
	EnvRefreshInterval   = "POLICY_REFRESH_INTERVAL"
	EnvLogLevel          = "LOG_LEVEL"
	EnvSlackDebug        = "SLACK_DEBUG"
)

// Parameter names, relative to PARAM_PREFIX, holding {"token":"..."} values.
const (
	ParamSlackBotToken    = "/slack-bot-token"
	ParamSlackAppToken    = "/slack-app-token"
	ParamCompletionAPIKey = "/deepseek-token"
)

// SecretSource resolves a named token. *paramstore.Client satisfies it.
type SecretSource interface {
	GetToken(ctx context.Context, name string) (string, error)
}

type Config struct {
	SlackBotToken    string
	SlackAppToken    string
	CompletionAPIKey string
	ParamPrefix      string

	PolicyURL         string
	CompletionBaseURL string
	CompletionModel   string
	MaxTokens         int
	RefreshInterval   time.Duration

	LogLevel   slog.Level
	SlackDebug bool
}

// FromEnv builds a Config from getenv, applying defaults for unset or
// unparseable optional values. Secrets are not validated here.
func FromEnv(getenv func(string) string) Config {
	return Config{
		SlackBotToken:     envString(getenv, EnvSlackBotToken, ""),
		SlackAppToken:     envString(getenv, EnvSlackAppToken, ""),
		CompletionAPIKey:  envString(getenv, EnvCompletionAPIKey, ""),
		ParamPrefix:       strings.TrimRight(envString(getenv, EnvParamPrefix, ""), "/"),
		PolicyURL:         envString(getenv, EnvPolicyURL, policysite.DefaultURL),
		CompletionBaseURL: envString(getenv, EnvCompletionBaseURL, deepseek.DefaultBaseURL),
		CompletionModel:   envString(getenv, EnvCompletionModel, deepseek.DefaultModel),
		MaxTokens:         envInt(getenv, EnvMaxTokens, deepseek.DefaultMaxTokens),
		RefreshInterval:   envDuration(getenv, EnvRefreshInterval, policycache.DefaultInterval),
		LogLevel:          envLevel(getenv, EnvLogLevel, slog.LevelInfo),
		SlackDebug:        envBool(getenv, EnvSlackDebug, false),
	}
}

// ResolveSecrets fills any secret left empty by the environment from src,
// reading parameters under ParamPrefix. Values set in the environment win.
func (c *Config) ResolveSecrets(ctx context.Context, src SecretSource) error {
	if src == nil || c.ParamPrefix == "" {
		return nil
	}
	targets := []struct {
		dst  *string
		name string
	}{
		{&c.SlackBotToken, ParamSlackBotToken},
		{&c.SlackAppToken, ParamSlackAppToken},
		{&c.CompletionAPIKey, ParamCompletionAPIKey},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := src.GetToken(ctx, c.ParamPrefix+t.name)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", t.name, err)
		}
		*t.dst = v
	}
	return nil
}

// Validate reports every missing required secret at once.
func (c Config) Validate() error {
	var errs []error
	if c.SlackBotToken == "" {
		errs = append(errs, fmt.Errorf("config: %s is not set", EnvSlackBotToken))
	}
	if c.SlackAppToken == "" {
		errs = append(errs, fmt.Errorf("config: %s is not set", EnvSlackAppToken))
	}
	if c.CompletionAPIKey == "" {
		errs = append(errs, fmt.Errorf("config: %s is not set", EnvCompletionAPIKey))
	}
	return errors.Join(errs...)
}

func envString(getenv func(string) string, key, def string) string {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envLevel(getenv func(string) string, key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return level
}
