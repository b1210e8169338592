package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the Craft Mini App backend.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	AI        AIConfig        `mapstructure:"ai" validate:"required"`
	Spam      SpamConfig      `mapstructure:"spam" validate:"required"`
	Referral  ReferralConfig  `mapstructure:"referral" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Admin     AdminConfig     `mapstructure:"admin"`
	News      NewsConfig      `mapstructure:"news"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            string        `mapstructure:"port" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)
}

// RedisConfig configures the optional shared Redis instance.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// BotConfig configures the Telegram bot and the chats it reports to.
type BotConfig struct {
	Token              string        `mapstructure:"token"`
	Username           string        `mapstructure:"username"`
	AppURL             string        `mapstructure:"app_url"`
	WebhookURL         string        `mapstructure:"webhook_url"`
	BlockVideoFileID   string        `mapstructure:"block_video_file_id"`
	AdminChatApplyID   int64         `mapstructure:"admin_chat_applications"`
	AdminChatSOSID     int64         `mapstructure:"admin_chat_sos"`
	AdminChatSupportID int64         `mapstructure:"admin_chat_support"`
	RequiredChannelID  int64         `mapstructure:"required_channel_id"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	InitDataMaxAge     time.Duration `mapstructure:"init_data_max_age"`
	BroadcastPacing    time.Duration `mapstructure:"broadcast_pacing"`
}

// AIConfig configures the assistant and its LLM provider.
type AIConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model" validate:"required"`
	CostPer1KTokens  string        `mapstructure:"cost_per_1k_tokens" validate:"required"`
	CapsPerRequest   int64         `mapstructure:"caps_per_request" validate:"gte=0"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float32       `mapstructure:"temperature"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HistoryTurns     int           `mapstructure:"history_turns"`
	KnowledgeEntries int           `mapstructure:"knowledge_entries"`
	LearnedFacts     int           `mapstructure:"learned_facts"`
	TurnChars        int           `mapstructure:"turn_chars"`
	MessageChars     int           `mapstructure:"message_chars"`
	LeadPromptEvery  int           `mapstructure:"lead_prompt_every"`
}

// SpamConfig configures the rapid-fire chat policy.
type SpamConfig struct {
	RapidThreshold   time.Duration `mapstructure:"rapid_threshold" validate:"required"`
	MaxRapidMessages int           `mapstructure:"max_rapid_messages" validate:"required,gt=0"`
	BlockDuration    time.Duration `mapstructure:"block_duration" validate:"required"`
}

// ReferralConfig configures signup bonuses and purchase commissions.
type ReferralConfig struct {
	BaseBalance       int64  `mapstructure:"base_balance"`
	BoostedBalance    int64  `mapstructure:"boosted_balance"`
	Level1Bonus       int64  `mapstructure:"level1_bonus"`
	Level2Bonus       int64  `mapstructure:"level2_bonus"`
	Level1Percent     string `mapstructure:"level1_percent" validate:"required"`
	Level2Percent     string `mapstructure:"level2_percent" validate:"required"`
	StartingSystemUID int64  `mapstructure:"starting_system_uid"`
	MaxSystemUID      int64  `mapstructure:"max_system_uid"`
}

// RateLimitRule describes a limit within a window, e.g. limit=60 window="1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures request limits.
type RateLimitConfig struct {
	UseRedis  bool          `mapstructure:"use_redis"`
	Global    RateLimitRule `mapstructure:"global"`
	Forms     RateLimitRule `mapstructure:"forms"`
	AI        RateLimitRule `mapstructure:"ai"`
	Whitelist []string      `mapstructure:"whitelist"`
}

// AdminConfig configures admin endpoint authentication. Either Secret or
// SecretHash (argon2id, see internal/httpapi) must be set for admin routes to work.
type AdminConfig struct {
	Secret     string `mapstructure:"secret"`
	SecretHash string `mapstructure:"secret_hash"`
}

// NewsConfig configures paid news subscriptions.
type NewsConfig struct {
	DailyCost int64 `mapstructure:"daily_cost"`
}
