package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App       AppConfig
	Gateway   GatewayConfig
	Tickets   TicketConfig
	Rules     RulesConfig
	Telegram  TelegramConfig
	OpenAI    OpenAIConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Dashboard DashboardConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// GatewayConfig holds connection parameters for the chat platform gateway.
type GatewayConfig struct {
	Token              string
	AuthMode           string // "bot" or "user"
	URL                string
	APIBaseURL         string
	Intents            int
	AlternateAuthRetry bool
	ResumeDelaySeconds int
	FreshDelaySeconds  int
	SlowDelaySeconds   int
}

// TicketConfig scopes which channels count as tickets and who counts as staff.
type TicketConfig struct {
	GuildID               string
	CategoryID            string
	NamePrefixes          []string
	StaffRoleIDs          []string
	ClosingPhrase         string
	Paused                bool
	RegularTimeoutMinutes int
	ClosingTimeoutMinutes int
}

// RulesConfig points at the auto-reply rule file.
type RulesConfig struct {
	Path string
}

// TelegramConfig holds the notification mirror credentials.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// OpenAIConfig configures the AI-assisted reply path.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Enabled bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines dashboard authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	AdminUsername         string
	AdminPasswordHash     string
}

// DashboardConfig controls the live push channel.
type DashboardConfig struct {
	Addr             string
	ThrottleWindowMs int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	authMode := strings.ToLower(getEnv("GATEWAY_AUTH_MODE", "bot"))
	if authMode != "bot" && authMode != "user" {
		return nil, fmt.Errorf("invalid GATEWAY_AUTH_MODE: %q", authMode)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-gateway"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Gateway: GatewayConfig{
			Token:              os.Getenv("GATEWAY_TOKEN"),
			AuthMode:           authMode,
			URL:                getEnv("GATEWAY_URL", "wss://gateway.discord.gg/?v=9&encoding=json"),
			APIBaseURL:         getEnv("GATEWAY_API_BASE_URL", "https://discord.com/api/v9"),
			Intents:            getEnvAsInt("GATEWAY_INTENTS", 33283),
			AlternateAuthRetry: getEnvAsBool("GATEWAY_ALTERNATE_AUTH_RETRY", false),
			ResumeDelaySeconds: getEnvAsInt("GATEWAY_RESUME_DELAY_SECONDS", 2),
			FreshDelaySeconds:  getEnvAsInt("GATEWAY_FRESH_DELAY_SECONDS", 5),
			SlowDelaySeconds:   getEnvAsInt("GATEWAY_SLOW_DELAY_SECONDS", 60),
		},
		Tickets: TicketConfig{
			GuildID:               os.Getenv("TICKET_GUILD_ID"),
			CategoryID:            os.Getenv("TICKET_CATEGORY_ID"),
			NamePrefixes:          splitList(getEnv("TICKET_NAME_PREFIXES", "ticket-,тикет-")),
			StaffRoleIDs:          splitList(os.Getenv("TICKET_STAFF_ROLE_IDS")),
			ClosingPhrase:         getEnv("TICKET_CLOSING_PHRASE", "тикет будет закрыт"),
			Paused:                getEnvAsBool("TICKET_PAUSED", false),
			RegularTimeoutMinutes: getEnvAsInt("TICKET_REGULAR_TIMEOUT_MINUTES", 60),
			ClosingTimeoutMinutes: getEnvAsInt("TICKET_CLOSING_TIMEOUT_MINUTES", 10),
		},
		Rules: RulesConfig{
			Path: getEnv("RULES_PATH", "rules.json"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Enabled: getEnvAsBool("OPENAI_ENABLED", false),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			AdminUsername:         getEnv("AUTH_ADMIN_USERNAME", "admin"),
			AdminPasswordHash:     os.Getenv("AUTH_ADMIN_PASSWORD_HASH"),
		},
		Dashboard: DashboardConfig{
			Addr:             getEnv("DASHBOARD_ADDR", "0.0.0.0:8081"),
			ThrottleWindowMs: getEnvAsInt("DASHBOARD_THROTTLE_WINDOW_MS", 1500),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ResumeDelay is the reconnect delay after a resumable close.
func (g GatewayConfig) ResumeDelay() time.Duration {
	return time.Duration(g.ResumeDelaySeconds) * time.Second
}

// FreshDelay is the reconnect delay after a non-resumable close.
func (g GatewayConfig) FreshDelay() time.Duration {
	return time.Duration(g.FreshDelaySeconds) * time.Second
}

// SlowDelay is the retry delay after an auth rejection.
func (g GatewayConfig) SlowDelay() time.Duration {
	return time.Duration(g.SlowDelaySeconds) * time.Second
}

// RegularTimeout is the inactivity window before a reminder fires.
func (t TicketConfig) RegularTimeout() time.Duration {
	return time.Duration(t.RegularTimeoutMinutes) * time.Minute
}

// ClosingTimeout is the pending-closure window after a closing phrase.
func (t TicketConfig) ClosingTimeout() time.Duration {
	return time.Duration(t.ClosingTimeoutMinutes) * time.Minute
}

// ThrottleWindow returns the dashboard emit coalescing window.
func (d DashboardConfig) ThrottleWindow() time.Duration {
	if d.ThrottleWindowMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(d.ThrottleWindowMs) * time.Millisecond
}

func splitList(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
