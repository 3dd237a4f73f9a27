package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "app.db" || cfg.RedisURL != "" {
		t.Fatalf("storage defaults unexpected: %+v %q", cfg.DB, cfg.RedisURL)
	}
	if cfg.Realtime.EventRPS != 20 || cfg.Realtime.EventBurst != 40 || cfg.Realtime.OfflineGrace != 30*time.Second {
		t.Fatalf("realtime defaults unexpected: %+v", cfg.Realtime)
	}
	if cfg.Chat.MaxTextRunes != 1000 || cfg.Chat.EditWindow != 5*time.Minute || cfg.Chat.TypingAutoStop != 5*time.Second {
		t.Fatalf("chat defaults unexpected: %+v", cfg.Chat)
	}
	if cfg.Game.Countdown != 3*time.Second || cfg.Game.ReconnectGrace != time.Minute || cfg.Game.FamiliesFile != "" {
		t.Fatalf("game defaults unexpected: %+v", cfg.Game)
	}
	if cfg.Media.Backend != "local" || cfg.Media.MaxPhotoBytes != 5<<20 || cfg.Media.PublicBaseURL != "http://localhost:8080/media" {
		t.Fatalf("media defaults unexpected: %+v", cfg.Media)
	}
	if cfg.LLM.APIKey != "" || cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.TranscribeEnabled {
		t.Fatalf("llm defaults unexpected: %+v", cfg.LLM)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "go-dating-realtime" || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")

	t.Setenv("DB_DRIVER", "PG")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/app")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")

	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("WS_EVENT_RPS", "5")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example")
	t.Setenv("CHAT_EDIT_WINDOW", "10m")
	t.Setenv("GAME_FAMILIES_FILE", "families.yaml")

	t.Setenv("MEDIA_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "blobs")
	t.Setenv("MEDIA_PUBLIC_BASE_URL", "https://cdn.example/")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TRANSCRIBE_ENABLED", "1")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.URL != "postgres://u:p@db/app" || cfg.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("storage unexpected: %+v", cfg.DB)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting should fall back to defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.Realtime.EventRPS != 5 || !reflect.DeepEqual(cfg.Realtime.AllowedOrigins, []string{"https://app.example"}) {
		t.Fatalf("realtime unexpected: %+v", cfg.Realtime)
	}
	if cfg.Chat.EditWindow != 10*time.Minute || cfg.Game.FamiliesFile != "families.yaml" {
		t.Fatalf("chat/game unexpected: %+v %+v", cfg.Chat, cfg.Game)
	}
	if cfg.Media.Backend != "s3" || cfg.Media.S3Bucket != "blobs" || cfg.Media.PublicBaseURL != "https://cdn.example" {
		t.Fatalf("media unexpected: %+v", cfg.Media)
	}
	if cfg.LLM.APIKey != "sk-test" || !cfg.LLM.TranscribeEnabled {
		t.Fatalf("llm unexpected: %+v", cfg.LLM)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// Each case triggers exactly one validation error.
func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"sqlite path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"ws rate", map[string]string{"WS_EVENT_RPS": "0"}, "WS_EVENT_RPS"},
		{"ws buffer", map[string]string{"WS_SEND_BUFFER": "0"}, "WS_SEND_BUFFER"},
		{"offline grace", map[string]string{"PRESENCE_OFFLINE_GRACE": "-1s"}, "PRESENCE_OFFLINE_GRACE"},
		{"text runes", map[string]string{"CHAT_MAX_TEXT_RUNES": "0"}, "CHAT_MAX_TEXT_RUNES"},
		{"chat windows", map[string]string{"CHAT_EDIT_WINDOW": "0s"}, "chat windows"},
		{"game timings", map[string]string{"GAME_RECONNECT_GRACE": "0s"}, "GAME_RECONNECT_GRACE"},
		{"local dir", map[string]string{"MEDIA_LOCAL_DIR": " "}, "MEDIA_LOCAL_DIR"},
		{"s3 bucket", map[string]string{"MEDIA_BACKEND": "s3"}, "S3_BUCKET"},
		{"media backend", map[string]string{"MEDIA_BACKEND": "ftp"}, "MEDIA_BACKEND"},
		{"media limits", map[string]string{"MEDIA_MAX_VOICE_SECONDS": "0"}, "media limits"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got: %v", tc.want, err)
			}
		})
	}
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	t.Setenv("F_BAD", "nope")
	if getfloat("F_VALID", 0) != 3.14 || getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat unexpected")
	}
	t.Setenv("I_VALID", "42")
	t.Setenv("I_BAD", "x")
	if getint("I_VALID", 0) != 42 || getint("I_BAD", 7) != 7 {
		t.Fatalf("getint unexpected")
	}
	t.Setenv("D_VALID", "150ms")
	t.Setenv("D_BAD", "zzz")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond || getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur unexpected")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", " no ", "N", "off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_ODD", "maybe")
	if !getbool("B_ODD", true) || getbool("B_ODD", false) {
		t.Fatalf("unrecognized values should use the default")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLoadFamilyOverrides(t *testing.T) {
	got, err := LoadFamilyOverrides("  ")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty path: %v %v", got, err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "families.yaml")
	body := "families:\n  nhie:\n    rounds: 20\n    round_time: 12s\n  scenario:\n    invite_ttl: 48h\n  wyr:\n    disabled: true\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = LoadFamilyOverrides(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["nhie"].Rounds != 20 || got["nhie"].RoundTime != 12*time.Second {
		t.Fatalf("nhie override: %+v", got["nhie"])
	}
	if got["scenario"].InviteTTL != 48*time.Hour || !got["wyr"].Disabled {
		t.Fatalf("overrides: %+v", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("families:\n  nhie:\n    rounds: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFamilyOverrides(bad); err == nil || !strings.Contains(err.Error(), "nhie") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := LoadFamilyOverrides(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "REDIS_URL", "MEDIA_BACKEND", "OPENAI_API_KEY", "OTEL_ENABLED"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}
