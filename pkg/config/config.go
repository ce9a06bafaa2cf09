// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the immutable service configuration.
//
// Configuration is read once at startup from the environment (viper with
// AutomaticEnv); the resulting Config struct is never mutated afterwards.
// The single process-wide mutable flag (maintenance mode) lives outside this
// package as an atomic boolean owned by the gateway.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthModeNone  = "none"
	AuthModeLocal = "local"
	AuthModeSSO   = "sso"
)

// Provider names accepted for LLM_PROVIDER.
const (
	ProviderOpenAI     = "openai"
	ProviderClaude     = "claude"
	ProviderGemini     = "gemini"
	ProviderDatabricks = "databricks"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// LLMConfig holds the settings for one provider backend.
type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// ObjectStoreConfig holds the S3-compatible endpoint settings.
type ObjectStoreConfig struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UseTLS        bool
	DefaultBucket string
}

// SSOConfig names the trusted gateway headers.
type SSOConfig struct {
	TokenHeader string
	NameHeader  string
	EmailHeader string
}

// UploadConfig bounds what the file catalog accepts.
type UploadConfig struct {
	MaxSizeBytes        int64
	AllowedExtensions   []string
	AllowedContentTypes []string
	PresignTTL          time.Duration
}

// Config is the complete, immutable configuration record.
type Config struct {
	ListenAddr string
	DataDir    string
	LogLevel   string
	LogDir     string

	AuthMode         string
	TokenSecret      string
	TokenExpiry      time.Duration
	SSO              SSOConfig
	RootUserEmail    string
	RootUserPassword string
	RootUserName     string

	LLM         LLMConfig
	ObjectStore ObjectStoreConfig
	Upload      UploadConfig

	MaintenanceMode    bool
	MaintenanceMessage string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("AUTH_MODE", AuthModeLocal)
	v.SetDefault("TOKEN_EXPIRY_HOURS", 12)
	v.SetDefault("SSO_TOKEN_HEADER", "X-Auth-Token")
	v.SetDefault("SSO_NAME_HEADER", "X-Auth-Name")
	v.SetDefault("SSO_EMAIL_HEADER", "X-Auth-Email")

	v.SetDefault("LLM_PROVIDER", ProviderOllama)
	v.SetDefault("LLM_MAX_TOKENS", 4096)
	v.SetDefault("LLM_TEMPERATURE", 0.2)

	v.SetDefault("OBJECT_STORE_REGION", "us-east-1")
	v.SetDefault("OBJECT_STORE_USE_TLS", true)
	v.SetDefault("OBJECT_STORE_DEFAULT_BUCKET", "anchorage")

	v.SetDefault("UPLOAD_MAX_SIZE_BYTES", int64(50*1024*1024))
	v.SetDefault("UPLOAD_ALLOWED_EXTENSIONS",
		".txt,.md,.pdf,.csv,.json,.doc,.docx,.xls,.xlsx,.ppt,.pptx")
	v.SetDefault("UPLOAD_ALLOWED_CONTENT_TYPES",
		"text/plain,text/markdown,text/csv,application/pdf,application/json,"+
			"application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,"+
			"application/vnd.ms-excel,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,"+
			"application/vnd.ms-powerpoint,application/vnd.openxmlformats-officedocument.presentationml.presentation")
	v.SetDefault("PRESIGN_TTL_HOURS", 24*7)

	v.SetDefault("MAINTENANCE_MODE", false)
	v.SetDefault("MAINTENANCE_MESSAGE", "Service is under maintenance. Please try again later.")
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	provider := strings.ToLower(v.GetString("LLM_PROVIDER"))

	timeoutSec := v.GetInt("LLM_TIMEOUT_SECONDS")
	if timeoutSec == 0 {
		// Local inference loads models on first use; give it more headroom.
		if provider == ProviderOllama {
			timeoutSec = 300
		} else {
			timeoutSec = 60
		}
	}

	cfg := &Config{
		ListenAddr: v.GetString("LISTEN_ADDR"),
		DataDir:    v.GetString("DATA_DIR"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		LogDir:     v.GetString("LOG_DIR"),

		AuthMode:    strings.ToLower(v.GetString("AUTH_MODE")),
		TokenSecret: v.GetString("TOKEN_SECRET"),
		TokenExpiry: time.Duration(v.GetInt("TOKEN_EXPIRY_HOURS")) * time.Hour,
		SSO: SSOConfig{
			TokenHeader: v.GetString("SSO_TOKEN_HEADER"),
			NameHeader:  v.GetString("SSO_NAME_HEADER"),
			EmailHeader: v.GetString("SSO_EMAIL_HEADER"),
		},
		RootUserEmail:    v.GetString("ROOT_USER_EMAIL"),
		RootUserPassword: v.GetString("ROOT_USER_PASSWORD"),
		RootUserName:     v.GetString("ROOT_USER_NAME"),

		LLM: LLMConfig{
			Provider:    provider,
			APIKey:      v.GetString("LLM_API_KEY"),
			BaseURL:     v.GetString("LLM_BASE_URL"),
			Model:       v.GetString("LLM_MODEL"),
			MaxTokens:   v.GetInt("LLM_MAX_TOKENS"),
			Temperature: float32(v.GetFloat64("LLM_TEMPERATURE")),
			Timeout:     time.Duration(timeoutSec) * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:      v.GetString("OBJECT_STORE_ENDPOINT"),
			Region:        v.GetString("OBJECT_STORE_REGION"),
			AccessKey:     v.GetString("OBJECT_STORE_ACCESS_KEY"),
			SecretKey:     v.GetString("OBJECT_STORE_SECRET_KEY"),
			UseTLS:        v.GetBool("OBJECT_STORE_USE_TLS"),
			DefaultBucket: v.GetString("OBJECT_STORE_DEFAULT_BUCKET"),
		},
		Upload: UploadConfig{
			MaxSizeBytes:        v.GetInt64("UPLOAD_MAX_SIZE_BYTES"),
			AllowedExtensions:   splitList(v.GetString("UPLOAD_ALLOWED_EXTENSIONS")),
			AllowedContentTypes: splitList(v.GetString("UPLOAD_ALLOWED_CONTENT_TYPES")),
			PresignTTL:          time.Duration(v.GetInt("PRESIGN_TTL_HOURS")) * time.Hour,
		},

		MaintenanceMode:    v.GetBool("MAINTENANCE_MODE"),
		MaintenanceMessage: v.GetString("MAINTENANCE_MESSAGE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AuthMode {
	case AuthModeNone, AuthModeLocal, AuthModeSSO:
	default:
		return fmt.Errorf("invalid AUTH_MODE %q: must be one of none, local, sso", c.AuthMode)
	}
	if c.AuthMode == AuthModeLocal && c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required in local auth mode")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderDatabricks,
		ProviderOpenRouter, ProviderOllama:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q", c.LLM.Provider)
	}

	// Cloud providers must be given credentials explicitly. There are no
	// embedded defaults: a missing key is a configuration error, not a
	// fallback.
	if c.LLM.Provider != ProviderOllama && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required for provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == ProviderDatabricks && c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required for provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
