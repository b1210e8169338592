// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional outside local development
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-reads the config file on change and hands the new logger level to onLevel.
// Only the log level is hot-reloadable; everything else requires a restart.
func Watch(v *viper.Viper, log *slog.Logger, onLevel func(level string)) {
	if v == nil || onLevel == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		level := v.GetString("logger.level")
		log.Info("config file changed", slog.String("file", e.Name), slog.String("logger_level", level))
		onLevel(level)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("bot.request_timeout", 10*time.Second)
	v.SetDefault("bot.init_data_max_age", 4*time.Hour)
	v.SetDefault("bot.broadcast_pacing", 100*time.Millisecond)

	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.cost_per_1k_tokens", "0.00015")
	v.SetDefault("ai.caps_per_request", 5)
	v.SetDefault("ai.max_tokens", 500)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.history_turns", 10)
	v.SetDefault("ai.knowledge_entries", 30)
	v.SetDefault("ai.learned_facts", 20)
	v.SetDefault("ai.turn_chars", 300)
	v.SetDefault("ai.message_chars", 500)
	v.SetDefault("ai.lead_prompt_every", 5)

	v.SetDefault("spam.rapid_threshold", 2*time.Second)
	v.SetDefault("spam.max_rapid_messages", 6)
	v.SetDefault("spam.block_duration", 30*time.Minute)

	v.SetDefault("referral.base_balance", 100)
	v.SetDefault("referral.boosted_balance", 150)
	v.SetDefault("referral.level1_bonus", 30)
	v.SetDefault("referral.level2_bonus", 15)
	v.SetDefault("referral.level1_percent", "0.05")
	v.SetDefault("referral.level2_percent", "0.02")
	v.SetDefault("referral.starting_system_uid", 666)
	v.SetDefault("referral.max_system_uid", 99999)

	v.SetDefault("ratelimit.global.limit", 60)
	v.SetDefault("ratelimit.global.window", "1m")
	v.SetDefault("ratelimit.forms.limit", 5)
	v.SetDefault("ratelimit.forms.window", "1m")
	v.SetDefault("ratelimit.ai.limit", 10)
	v.SetDefault("ratelimit.ai.window", "1m")

	v.SetDefault("news.daily_cost", 10)
}
