// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Drafter providers selectable with DRAFTER_PROVIDER.
const (
	DrafterProviderAnthropic = "anthropic"
	DrafterProviderOpenAI    = "openai"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AuthConfig provides settings for the operator login.
type AuthConfig interface {
	JWTConfig
	GetDashboardUsername() string
	GetDashboardPasswordHash() string
	GetSessionTTL() time.Duration
}

// CronConfig provides the shared secret for the external daily trigger.
type CronConfig interface {
	GetCronSecret() string
}

// CRMConfig provides settings for the CRM API client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMPipelineID() string
	GetCRMLocationID() string
	GetCRMPITToken() string
	GetCRMClientID() string
	GetCRMClientSecret() string
	GetCRMRefreshToken() string
	GetCRMEmailFrom() string
	GetCRMMaxConcurrent() int
	GetCRMRetryDelay() time.Duration
	GetCRMRetries() int
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketPipeline() string
	IsMinIOEnabled() bool
}

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StoreConfig selects and configures the checkpoint document store.
type StoreConfig interface {
	MinIOConfig
	DatabaseConfig
	GetDocumentStore() string
	GetDocumentKeyPrefix() string
	GetRedisURL() string
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetPipelineDailyCron() string
	GetPipelineChainEnabled() bool
}

// DrafterConfig provides settings for the recommendation drafting model.
type DrafterConfig interface {
	GetDrafterProvider() string
	GetAnthropicAPIKey() string
	GetAnthropicBaseURL() string
	GetOpenAIAPIKey() string
	GetOpenAIBaseURL() string
	GetDrafterModel() string
	GetDrafterMaxTokens() int
	IsDrafterEnabled() bool
}

// PipelineConfig provides tuning for the triage pipeline.
type PipelineConfig interface {
	GetBusinessTimezone() string
	GetTriageRulesFile() string
	GetConversationBatchSize() int
	GetRecommendBatchSize() int
	GetPipelineLockTTL() time.Duration
}

// SMTPConfig provides settings for operator alert emails.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFrom() string
	GetAlertEmailTo() string
	IsSMTPEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	JWTAccessSecret       string
	DashboardUsername     string
	DashboardPasswordHash string
	SessionTTL            time.Duration
	CronSecret            string
	CRMBaseURL            string
	CRMPipelineID         string
	CRMLocationID         string
	CRMPITToken           string
	CRMClientID           string
	CRMClientSecret       string
	CRMRefreshToken       string
	CRMEmailFrom          string
	CRMMaxConcurrent      int
	CRMRetryDelay         time.Duration
	CRMRetries            int
	DocumentStore         string
	DocumentKeyPrefix     string
	MinIOEndpoint         string
	MinIOAccessKey        string
	MinIOSecretKey        string
	MinIOUseSSL           bool
	MinioBucketPipeline   string
	DatabaseURL           string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	PipelineDailyCron     string
	PipelineChainEnabled  bool
	DrafterProvider       string
	AnthropicAPIKey       string
	AnthropicBaseURL      string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	DrafterModel          string
	DrafterMaxTokens      int
	BusinessTimezone      string
	TriageRulesFile       string
	ConversationBatchSize int
	RecommendBatchSize    int
	PipelineLockTTL       time.Duration
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	SMTPFrom              string
	AlertEmailTo          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AuthConfig implementation
func (c *Config) GetJWTAccessSecret() string       { return c.JWTAccessSecret }
func (c *Config) GetDashboardUsername() string     { return c.DashboardUsername }
func (c *Config) GetDashboardPasswordHash() string { return c.DashboardPasswordHash }
func (c *Config) GetSessionTTL() time.Duration     { return c.SessionTTL }

// CronConfig implementation
func (c *Config) GetCronSecret() string { return c.CronSecret }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string           { return c.CRMBaseURL }
func (c *Config) GetCRMPipelineID() string        { return c.CRMPipelineID }
func (c *Config) GetCRMLocationID() string        { return c.CRMLocationID }
func (c *Config) GetCRMPITToken() string          { return c.CRMPITToken }
func (c *Config) GetCRMClientID() string          { return c.CRMClientID }
func (c *Config) GetCRMClientSecret() string      { return c.CRMClientSecret }
func (c *Config) GetCRMRefreshToken() string      { return c.CRMRefreshToken }
func (c *Config) GetCRMEmailFrom() string         { return c.CRMEmailFrom }
func (c *Config) GetCRMMaxConcurrent() int        { return c.CRMMaxConcurrent }
func (c *Config) GetCRMRetryDelay() time.Duration { return c.CRMRetryDelay }
func (c *Config) GetCRMRetries() int              { return c.CRMRetries }

// StoreConfig implementation
func (c *Config) GetDocumentStore() string       { return c.DocumentStore }
func (c *Config) GetDocumentKeyPrefix() string   { return c.DocumentKeyPrefix }
func (c *Config) GetMinIOEndpoint() string       { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string      { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string      { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool           { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketPipeline() string { return c.MinioBucketPipeline }
func (c *Config) IsMinIOEnabled() bool           { return c.MinIOEndpoint != "" }
func (c *Config) GetDatabaseURL() string         { return c.DatabaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string           { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool     { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string     { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int      { return c.AsynqConcurrency }
func (c *Config) GetPipelineDailyCron() string  { return c.PipelineDailyCron }
func (c *Config) GetPipelineChainEnabled() bool { return c.PipelineChainEnabled && c.RedisURL != "" }

// DrafterConfig implementation
func (c *Config) GetDrafterProvider() string  { return c.DrafterProvider }
func (c *Config) GetAnthropicAPIKey() string  { return c.AnthropicAPIKey }
func (c *Config) GetAnthropicBaseURL() string { return c.AnthropicBaseURL }
func (c *Config) GetOpenAIAPIKey() string     { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIBaseURL() string    { return c.OpenAIBaseURL }
func (c *Config) GetDrafterModel() string     { return c.DrafterModel }
func (c *Config) GetDrafterMaxTokens() int    { return c.DrafterMaxTokens }

// IsDrafterEnabled reports whether the selected provider has an API key.
func (c *Config) IsDrafterEnabled() bool {
	if c.DrafterProvider == DrafterProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.AnthropicAPIKey != ""
}

// PipelineConfig implementation
func (c *Config) GetBusinessTimezone() string       { return c.BusinessTimezone }
func (c *Config) GetTriageRulesFile() string        { return c.TriageRulesFile }
func (c *Config) GetConversationBatchSize() int     { return c.ConversationBatchSize }
func (c *Config) GetRecommendBatchSize() int        { return c.RecommendBatchSize }
func (c *Config) GetPipelineLockTTL() time.Duration { return c.PipelineLockTTL }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetSMTPFrom() string     { return c.SMTPFrom }
func (c *Config) GetAlertEmailTo() string { return c.AlertEmailTo }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.AlertEmailTo != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		DashboardUsername:     getEnv("DASHBOARD_USERNAME", ""),
		DashboardPasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),
		SessionTTL:            mustDuration(getEnv("SESSION_TTL", "168h")),
		CronSecret:            getEnv("CRON_SECRET", ""),
		CRMBaseURL:            getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"),
		CRMPipelineID:         getEnv("CRM_PIPELINE_ID", "GeLwykvW1Fup6Z5oiKir"),
		CRMLocationID:         getEnv("CRM_LOCATION_ID", "iCyLg9rh8NtPpTfFCcGk"),
		CRMPITToken:           getEnv("CRM_PIT_TOKEN", ""),
		CRMClientID:           getEnv("CRM_CLIENT_ID", ""),
		CRMClientSecret:       getEnv("CRM_CLIENT_SECRET", ""),
		CRMRefreshToken:       getEnv("CRM_REFRESH_TOKEN", ""),
		CRMEmailFrom:          getEnv("CRM_EMAIL_FROM", "sales@ftlprints.com"),
		CRMMaxConcurrent:      mustInt(getEnv("CRM_MAX_CONCURRENT", "3")),
		CRMRetryDelay:         mustDuration(getEnv("CRM_RETRY_DELAY", "2s")),
		CRMRetries:            mustInt(getEnv("CRM_RETRIES", "1")),
		DocumentStore:         strings.ToLower(getEnv("DOCUMENT_STORE", "memory")),
		DocumentKeyPrefix:     getEnv("DOCUMENT_KEY_PREFIX", ""),
		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketPipeline:   getEnv("MINIO_BUCKET_PIPELINE", "lead-triage"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "pipeline"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		PipelineDailyCron:     getEnv("PIPELINE_DAILY_CRON", "0 13 * * 1-5"),
		PipelineChainEnabled:  strings.EqualFold(getEnv("PIPELINE_CHAIN", "true"), "true"),
		DrafterProvider:       strings.ToLower(getEnv("DRAFTER_PROVIDER", DrafterProviderAnthropic)),
		AnthropicAPIKey:       getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:      getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DrafterModel:          getEnv("DRAFTER_MODEL", ""),
		DrafterMaxTokens:      mustInt(getEnv("DRAFTER_MAX_TOKENS", "16384")),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "America/New_York"),
		TriageRulesFile:       getEnv("TRIAGE_RULES_FILE", ""),
		ConversationBatchSize: mustInt(getEnv("CONVERSATION_BATCH_SIZE", "5")),
		RecommendBatchSize:    mustInt(getEnv("RECOMMEND_BATCH_SIZE", "8")),
		PipelineLockTTL:       mustDuration(getEnv("PIPELINE_LOCK_TTL", "5m")),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		AlertEmailTo:          getEnv("ALERT_EMAIL_TO", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CRMPITToken == "" && (c.CRMClientID == "" || c.CRMClientSecret == "") {
		return fmt.Errorf("either CRM_PIT_TOKEN or CRM_CLIENT_ID and CRM_CLIENT_SECRET are required")
	}
	if c.CRMMaxConcurrent < 1 {
		return fmt.Errorf("CRM_MAX_CONCURRENT must be at least 1")
	}
	if c.CRMRetries < 0 {
		return fmt.Errorf("CRM_RETRIES cannot be negative")
	}
	if c.ConversationBatchSize < 1 || c.RecommendBatchSize < 1 {
		return fmt.Errorf("CONVERSATION_BATCH_SIZE and RECOMMEND_BATCH_SIZE must be at least 1")
	}
	if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q is invalid: %w", c.BusinessTimezone, err)
	}
	switch c.DocumentStore {
	case "memory":
	case "minio":
		if !c.IsMinIOEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is required when DOCUMENT_STORE is minio")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DOCUMENT_STORE is redis")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DOCUMENT_STORE is postgres")
		}
	default:
		return fmt.Errorf("DOCUMENT_STORE %q is not one of memory, minio, redis, postgres", c.DocumentStore)
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.DrafterProvider != DrafterProviderAnthropic && c.DrafterProvider != DrafterProviderOpenAI {
		return fmt.Errorf("DRAFTER_PROVIDER %q is not one of anthropic, openai", c.DrafterProvider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
