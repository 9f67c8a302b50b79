package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "ANNOUNCE_RELAY_CONFIG"
	portEnv          = "PORT"
	logLevelEnv      = "LOG_LEVEL"
	webhookTokenEnv  = "WEBHOOK_AUTH_TOKEN"
	aiAPIKeyEnv      = "AI_API_KEY"
	aiAPIURLEnv      = "AI_API_URL"
	aiModelEnv       = "AI_MODEL"
	defaultStyleEnv  = "DEFAULT_STYLE"
	discordTokenEnv  = "DISCORD_BOT_TOKEN"
	discordGuildEnv  = "GUILD_ID"
	queryChannelEnv  = "QUERY_CHANNEL_ID"
	announceChanEnv  = "ANNOUNCE_CHANNEL_IDS"
	adminIDsEnv      = "ADMIN_USER_IDS"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	databaseDSNEnv   = "DATABASE_DSN"
	adminTokenEnv    = "ADMIN_AUTH_TOKEN"

	// FallbackStyle is used when neither config nor the style store provide a directive.
	FallbackStyle = "Professional, confident, concise crypto-native tone."
)

// Config holds high-level settings required across the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Autopilot  AutopilotConfig  `yaml:"autopilot"`
	Generation GenerationConfig `yaml:"generation"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Discord    DiscordConfig    `yaml:"discord"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Operators  OperatorConfig   `yaml:"operators"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	// AdminToken guards /admin routes; empty falls back to the webhook token.
	AdminToken string `yaml:"adminToken"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// WebhookConfig describes the inbound endpoint and its content gate.
type WebhookConfig struct {
	AuthToken     string `yaml:"authToken"`
	MinTextLength int    `yaml:"minTextLength" validate:"gte=1"`
	RequireLink   bool   `yaml:"requireLink"`
	LinkPattern   string `yaml:"linkPattern"`
	Shadow        bool   `yaml:"shadow"`
	MaxBodyBytes  int64  `yaml:"maxBodyBytes" validate:"gt=0"`
}

// AdmissionConfig sets the throttle and duplicate windows.
type AdmissionConfig struct {
	Cooldown     time.Duration `yaml:"cooldown" validate:"gt=0"`
	DedupeWindow time.Duration `yaml:"dedupeWindow" validate:"gt=0"`
}

// ApprovalConfig controls review mode and pending entry expiry.
type ApprovalConfig struct {
	ReviewRequired bool `yaml:"reviewRequired"`
	// PendingTTL of zero keeps unresolved entries forever.
	PendingTTL time.Duration `yaml:"pendingTTL" validate:"gte=0"`
}

// AutopilotConfig defines autonomous origination.
type AutopilotConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TickInterval time.Duration `yaml:"tickInterval" validate:"gt=0"`
	Cooldown     time.Duration `yaml:"cooldown" validate:"gt=0"`
	Topics       []string      `yaml:"topics" validate:"dive,required"`
}

// GenerationConfig defines how to contact the text-generation API.
type GenerationConfig struct {
	Endpoint     string        `yaml:"endpoint" validate:"required,url"`
	Model        string        `yaml:"model" validate:"required"`
	APIKey       string        `yaml:"apiKey"`
	MaxTokens    int           `yaml:"maxTokens" validate:"gt=0"`
	Temperature  float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	DefaultStyle string        `yaml:"defaultStyle"`
}

// DispatchConfig lists destinations as platform:id pairs; bare ids default to discord.
type DispatchConfig struct {
	Destinations []string       `yaml:"destinations" validate:"dive,required"`
	Humanize     HumanizeConfig `yaml:"humanize"`
}

// HumanizeConfig shapes how announcements look when they land in a channel.
type HumanizeConfig struct {
	MinDelay    time.Duration `yaml:"minDelay" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"maxDelay" validate:"gtefield=MinDelay"`
	EmojiChance float64       `yaml:"emojiChance" validate:"gte=0,lte=1"`
	EmojiSet    []string      `yaml:"emojiSet"`
}

// DiscordConfig wires the bot session and the operator command channel.
type DiscordConfig struct {
	BotToken       string   `yaml:"botToken"`
	GuildIDs       []string `yaml:"guildIds"`
	QueryChannelID string   `yaml:"queryChannelId"`
	MaxInputLength int      `yaml:"maxInputLength" validate:"gt=0"`
}

// TelegramConfig wires the Telegram bot used for telegram:<chat> destinations.
type TelegramConfig struct {
	BotToken          string        `yaml:"botToken"`
	APIBase           string        `yaml:"apiBase" validate:"required,url"`
	MessagesPerSecond float64       `yaml:"messagesPerSecond" validate:"gt=0"`
	SendTimeout       time.Duration `yaml:"sendTimeout" validate:"gt=0"`
}

// DatabaseConfig describes Postgres connection details; empty DSN keeps state in memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// OperatorConfig is the fixed allow-list of operator identities.
type OperatorConfig struct {
	IDs []string `yaml:"ids"`
}

// Load reads YAML configuration (if present), applies environment overrides and validates the result.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg = mergeConfig(cfg, fileCfg, raw)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Webhook.LinkPattern != "" {
		if _, err := regexp.Compile(c.Webhook.LinkPattern); err != nil {
			return fmt.Errorf("invalid config: webhook.linkPattern: %w", err)
		}
	}
	if c.Webhook.RequireLink && c.Webhook.LinkPattern == "" {
		return fmt.Errorf("invalid config: webhook.requireLink needs webhook.linkPattern")
	}
	return nil
}

// LinkRegexp compiles the qualifying link pattern, nil when none is configured.
func (w WebhookConfig) LinkRegexp() *regexp.Regexp {
	if w.LinkPattern == "" {
		return nil
	}
	return regexp.MustCompile(w.LinkPattern)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(webhookTokenEnv); v != "" {
		c.Webhook.AuthToken = v
	}
	if v := os.Getenv(aiAPIKeyEnv); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv(aiAPIURLEnv); v != "" {
		c.Generation.Endpoint = v
	}
	if v := os.Getenv(aiModelEnv); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv(defaultStyleEnv); v != "" {
		c.Generation.DefaultStyle = v
	}
	if v := os.Getenv(discordTokenEnv); v != "" {
		c.Discord.BotToken = v
	}
	if v := os.Getenv(discordGuildEnv); v != "" {
		c.Discord.GuildIDs = SplitCSV(v)
	}
	if v := os.Getenv(queryChannelEnv); v != "" {
		c.Discord.QueryChannelID = strings.TrimSpace(v)
	}
	if v := os.Getenv(announceChanEnv); v != "" {
		c.Dispatch.Destinations = SplitCSV(v)
	}
	if v := os.Getenv(adminIDsEnv); v != "" {
		c.Operators.IDs = SplitCSV(v)
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(adminTokenEnv); v != "" {
		c.Server.AdminToken = v
	}
}

// mergeConfig overlays non-zero file values; booleans are taken from the file only when their key is present.
func mergeConfig(base, override Config, raw []byte) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.ShutdownTimeout != 0 {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}
	if override.Server.AdminToken != "" {
		base.Server.AdminToken = override.Server.AdminToken
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Webhook.AuthToken != "" {
		base.Webhook.AuthToken = override.Webhook.AuthToken
	}
	if override.Webhook.MinTextLength != 0 {
		base.Webhook.MinTextLength = override.Webhook.MinTextLength
	}
	if override.Webhook.LinkPattern != "" {
		base.Webhook.LinkPattern = override.Webhook.LinkPattern
	}
	if override.Webhook.MaxBodyBytes != 0 {
		base.Webhook.MaxBodyBytes = override.Webhook.MaxBodyBytes
	}

	if override.Admission.Cooldown != 0 {
		base.Admission.Cooldown = override.Admission.Cooldown
	}
	if override.Admission.DedupeWindow != 0 {
		base.Admission.DedupeWindow = override.Admission.DedupeWindow
	}

	if override.Approval.PendingTTL != 0 {
		base.Approval.PendingTTL = override.Approval.PendingTTL
	}

	if override.Autopilot.TickInterval != 0 {
		base.Autopilot.TickInterval = override.Autopilot.TickInterval
	}
	if override.Autopilot.Cooldown != 0 {
		base.Autopilot.Cooldown = override.Autopilot.Cooldown
	}
	if len(override.Autopilot.Topics) > 0 {
		base.Autopilot.Topics = override.Autopilot.Topics
	}

	if override.Generation.Endpoint != "" {
		base.Generation.Endpoint = override.Generation.Endpoint
	}
	if override.Generation.Model != "" {
		base.Generation.Model = override.Generation.Model
	}
	if override.Generation.APIKey != "" {
		base.Generation.APIKey = override.Generation.APIKey
	}
	if override.Generation.MaxTokens != 0 {
		base.Generation.MaxTokens = override.Generation.MaxTokens
	}
	if override.Generation.Temperature != 0 {
		base.Generation.Temperature = override.Generation.Temperature
	}
	if override.Generation.Timeout != 0 {
		base.Generation.Timeout = override.Generation.Timeout
	}
	if override.Generation.DefaultStyle != "" {
		base.Generation.DefaultStyle = override.Generation.DefaultStyle
	}

	if len(override.Dispatch.Destinations) > 0 {
		base.Dispatch.Destinations = override.Dispatch.Destinations
	}
	if override.Dispatch.Humanize.MinDelay != 0 {
		base.Dispatch.Humanize.MinDelay = override.Dispatch.Humanize.MinDelay
	}
	if override.Dispatch.Humanize.MaxDelay != 0 {
		base.Dispatch.Humanize.MaxDelay = override.Dispatch.Humanize.MaxDelay
	}
	if override.Dispatch.Humanize.EmojiChance != 0 {
		base.Dispatch.Humanize.EmojiChance = override.Dispatch.Humanize.EmojiChance
	}
	if len(override.Dispatch.Humanize.EmojiSet) > 0 {
		base.Dispatch.Humanize.EmojiSet = override.Dispatch.Humanize.EmojiSet
	}

	if override.Discord.BotToken != "" {
		base.Discord.BotToken = override.Discord.BotToken
	}
	if len(override.Discord.GuildIDs) > 0 {
		base.Discord.GuildIDs = override.Discord.GuildIDs
	}
	if override.Discord.QueryChannelID != "" {
		base.Discord.QueryChannelID = override.Discord.QueryChannelID
	}
	if override.Discord.MaxInputLength != 0 {
		base.Discord.MaxInputLength = override.Discord.MaxInputLength
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.APIBase != "" {
		base.Telegram.APIBase = override.Telegram.APIBase
	}
	if override.Telegram.MessagesPerSecond != 0 {
		base.Telegram.MessagesPerSecond = override.Telegram.MessagesPerSecond
	}
	if override.Telegram.SendTimeout != 0 {
		base.Telegram.SendTimeout = override.Telegram.SendTimeout
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if len(override.Operators.IDs) > 0 {
		base.Operators = override.Operators
	}

	flags := presentFlags(raw)
	if flags.shadow != nil {
		base.Webhook.Shadow = *flags.shadow
	}
	if flags.requireLink != nil {
		base.Webhook.RequireLink = *flags.requireLink
	}
	if flags.reviewRequired != nil {
		base.Approval.ReviewRequired = *flags.reviewRequired
	}
	if flags.autopilot != nil {
		base.Autopilot.Enabled = *flags.autopilot
	}

	return base
}

type boolFlags struct {
	shadow         *bool
	requireLink    *bool
	reviewRequired *bool
	autopilot      *bool
}

// presentFlags decodes booleans as pointers so an explicit false in the file wins over a true default.
func presentFlags(raw []byte) boolFlags {
	var doc struct {
		Webhook struct {
			Shadow      *bool `yaml:"shadow"`
			RequireLink *bool `yaml:"requireLink"`
		} `yaml:"webhook"`
		Approval struct {
			ReviewRequired *bool `yaml:"reviewRequired"`
		} `yaml:"approval"`
		Autopilot struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"autopilot"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return boolFlags{}
	}
	return boolFlags{
		shadow:         doc.Webhook.Shadow,
		requireLink:    doc.Webhook.RequireLink,
		reviewRequired: doc.Approval.ReviewRequired,
		autopilot:      doc.Autopilot.Enabled,
	}
}

// Redacted masks tokens, keys and the database DSN for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	mask(&c.Server.AdminToken)
	mask(&c.Webhook.AuthToken)
	mask(&c.Generation.APIKey)
	mask(&c.Discord.BotToken)
	mask(&c.Telegram.BotToken)
	mask(&c.Database.DSN)
	return c
}

// SplitCSV splits a comma separated list and drops blanks.
func SplitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Server:  ServerConfig{Addr: ":3000", ShutdownTimeout: 10 * time.Second},
		Logging: LoggingConfig{Level: "info"},
		Webhook: WebhookConfig{
			MinTextLength: 20,
			MaxBodyBytes:  1 << 20,
		},
		Admission: AdmissionConfig{
			Cooldown:     30 * time.Second,
			DedupeWindow: 180 * time.Second,
		},
		Approval: ApprovalConfig{ReviewRequired: true},
		Autopilot: AutopilotConfig{
			TickInterval: 30 * time.Second,
			Cooldown:     time.Hour,
		},
		Generation: GenerationConfig{
			Endpoint:     "https://api.anthropic.com/v1/messages",
			Model:        "claude-haiku-4-5-20251001",
			MaxTokens:    200,
			Temperature:  0.7,
			Timeout:      10 * time.Second,
			DefaultStyle: FallbackStyle,
		},
		Dispatch: DispatchConfig{
			Humanize: HumanizeConfig{
				MinDelay:    1500 * time.Millisecond,
				MaxDelay:    5 * time.Second,
				EmojiChance: 0.4,
				EmojiSet:    []string{"🚀", "🔥", "⚡", "🧠", "📈", "✨"},
			},
		},
		Discord:  DiscordConfig{MaxInputLength: 1500},
		Telegram: TelegramConfig{APIBase: "https://api.telegram.org", MessagesPerSecond: 1, SendTimeout: 10 * time.Second},
	}
}
