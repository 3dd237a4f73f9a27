// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, storage,
// realtime, game, media and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the GORM dialect and its connection target.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// RealtimeConfig tunes the websocket push channel.
type RealtimeConfig struct {
	EventRPS       float64       // per-connection ingress events per second
	EventBurst     int           // per-connection burst
	SendBuffer     int           // outbound frames queued per connection
	MaxFrameBytes  int64         // largest inbound frame accepted
	OfflineGrace   time.Duration // presence offline transition delay
	AllowedOrigins []string      // websocket Origin allow-list; empty allows all
}

// ChatConfig holds chat pipeline limits.
type ChatConfig struct {
	MaxTextRunes   int
	EditWindow     time.Duration
	TypingAutoStop time.Duration
}

// GameConfig holds engine-wide timings. Per-family values live in the
// family descriptors and the optional FamiliesFile overlay.
type GameConfig struct {
	Countdown      time.Duration
	RevealDelay    time.Duration
	ReconnectGrace time.Duration
	FamiliesFile   string
}

// MediaConfig selects and configures the blob store.
type MediaConfig struct {
	Backend         string // s3|local
	LocalDir        string
	PublicBaseURL   string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	MaxPhotoBytes   int64
	MaxVoiceSeconds float64
}

// LLMConfig configures the OpenAI-compatible client used for insights and
// speech-to-text. An empty APIKey disables both and forces fallbacks.
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	TranscribeEnabled bool
	Timeout           time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DatabaseConfig
	RedisURL string // empty runs cache and queue in-process

	// Rate limiting (HTTP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a correlation id stays bound to its result

	Realtime RealtimeConfig
	Chat     ChatConfig
	Game     GameConfig
	Media    MediaConfig
	LLM      LLMConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		RedisURL: getenv("REDIS_URL", ""),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Realtime: RealtimeConfig{
			EventRPS:       getfloat("WS_EVENT_RPS", 20),
			EventBurst:     getint("WS_EVENT_BURST", 40),
			SendBuffer:     getint("WS_SEND_BUFFER", 128),
			MaxFrameBytes:  int64(getint("WS_MAX_FRAME_BYTES", 64<<10)),
			OfflineGrace:   getdur("PRESENCE_OFFLINE_GRACE", 30*time.Second),
			AllowedOrigins: splitCSV(getenv("WS_ALLOWED_ORIGINS", "")),
		},
		Chat: ChatConfig{
			MaxTextRunes:   getint("CHAT_MAX_TEXT_RUNES", 1000),
			EditWindow:     getdur("CHAT_EDIT_WINDOW", 5*time.Minute),
			TypingAutoStop: getdur("CHAT_TYPING_AUTO_STOP", 5*time.Second),
		},
		Game: GameConfig{
			Countdown:      getdur("GAME_COUNTDOWN", 3*time.Second),
			RevealDelay:    getdur("GAME_REVEAL_DELAY", 4*time.Second),
			ReconnectGrace: getdur("GAME_RECONNECT_GRACE", 60*time.Second),
			FamiliesFile:   getenv("GAME_FAMILIES_FILE", ""),
		},
		Media: MediaConfig{
			Backend:         strings.ToLower(getenv("MEDIA_BACKEND", "local")),
			LocalDir:        getenv("MEDIA_LOCAL_DIR", "media"),
			PublicBaseURL:   strings.TrimRight(getenv("MEDIA_PUBLIC_BASE_URL", "http://localhost:8080/media"), "/"),
			S3Bucket:        getenv("S3_BUCKET", ""),
			S3Region:        getenv("S3_REGION", "us-east-1"),
			S3Endpoint:      getenv("S3_ENDPOINT", ""),
			MaxPhotoBytes:   int64(getint("MEDIA_MAX_PHOTO_BYTES", 5<<20)),
			MaxVoiceSeconds: getfloat("MEDIA_MAX_VOICE_SECONDS", 60),
		},
		LLM: LLMConfig{
			APIKey:            getenv("OPENAI_API_KEY", ""),
			BaseURL:           getenv("OPENAI_BASE_URL", ""),
			Model:             getenv("OPENAI_MODEL", "gpt-4o-mini"),
			TranscribeEnabled: getbool("TRANSCRIBE_ENABLED", false),
			Timeout:           getdur("LLM_TIMEOUT", 20*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-dating-realtime"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Realtime.EventRPS <= 0 || cfg.Realtime.EventBurst < 1 {
		return cfg, errors.New("WS_EVENT_RPS must be > 0 and WS_EVENT_BURST >= 1")
	}
	if cfg.Realtime.SendBuffer < 1 {
		return cfg, errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if cfg.Realtime.OfflineGrace < 0 {
		return cfg, errors.New("PRESENCE_OFFLINE_GRACE must be >= 0")
	}
	if cfg.Chat.MaxTextRunes < 1 {
		return cfg, errors.New("CHAT_MAX_TEXT_RUNES must be >= 1")
	}
	if cfg.Chat.EditWindow <= 0 || cfg.Chat.TypingAutoStop <= 0 {
		return cfg, errors.New("chat windows must be positive durations")
	}
	if cfg.Game.Countdown < 0 || cfg.Game.RevealDelay < 0 || cfg.Game.ReconnectGrace <= 0 {
		return cfg, errors.New("game timings must be non-negative and GAME_RECONNECT_GRACE > 0")
	}
	switch cfg.Media.Backend {
	case "local":
		if strings.TrimSpace(cfg.Media.LocalDir) == "" {
			return cfg, errors.New("MEDIA_LOCAL_DIR must not be empty")
		}
	case "s3":
		if strings.TrimSpace(cfg.Media.S3Bucket) == "" {
			return cfg, errors.New("S3_BUCKET must be set when MEDIA_BACKEND=s3")
		}
	default:
		return cfg, errors.New("MEDIA_BACKEND must be one of: local, s3")
	}
	if cfg.Media.MaxPhotoBytes <= 0 || cfg.Media.MaxVoiceSeconds <= 0 {
		return cfg, errors.New("media limits must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
