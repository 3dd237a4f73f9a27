// Command server runs the realtime dating backend: REST API, websocket
// gateway, game timers and background workers in one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/cache"
	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/compat"
	"github.com/tbourn/go-dating-realtime/internal/config"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/gateway"
	httpapi "github.com/tbourn/go-dating-realtime/internal/http"
	"github.com/tbourn/go-dating-realtime/internal/http/handlers"
	"github.com/tbourn/go-dating-realtime/internal/http/middleware"
	"github.com/tbourn/go-dating-realtime/internal/insights"
	"github.com/tbourn/go-dating-realtime/internal/lockmap"
	"github.com/tbourn/go-dating-realtime/internal/media"
	"github.com/tbourn/go-dating-realtime/internal/moderation"
	"github.com/tbourn/go-dating-realtime/internal/observability"
	"github.com/tbourn/go-dating-realtime/internal/presence"
	"github.com/tbourn/go-dating-realtime/internal/queue"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/services"
	"github.com/tbourn/go-dating-realtime/internal/sysutil"
)

// version is stamped with -ldflags "-X main.version=...".
var version = "dev"

const (
	sweepInterval = time.Minute
	purgeInterval = time.Hour
	drainTimeout  = 15 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

// infra holds the swappable adapters picked from configuration.
type infra struct {
	cache  cache.Cache
	client queue.Client
	server queue.Server
}

// newInfra selects Redis-backed adapters when REDIS_URL is set and
// in-process ones otherwise.
func newInfra(ctx context.Context, cfg config.Config, log zerolog.Logger) (*infra, error) {
	if cfg.RedisURL == "" {
		q := queue.NewInline(log)
		return &infra{cache: cache.NewMemory(), client: q, server: q}, nil
	}
	c, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	qc, err := queue.NewAsynqClient(cfg.RedisURL)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	qs, err := queue.NewAsynqServer(cfg.RedisURL, 10, log)
	if err != nil {
		_ = qc.Close()
		_ = c.Close()
		return nil, err
	}
	return &infra{cache: c, client: qc, server: qs}, nil
}

func newMediaService(ctx context.Context, cfg config.Config, log zerolog.Logger) (*media.Service, error) {
	var (
		store media.Store
		err   error
	)
	switch cfg.Media.Backend {
	case "s3":
		store, err = media.NewS3Store(ctx, cfg.Media.S3Bucket, cfg.Media.S3Region, cfg.Media.S3Endpoint, cfg.Media.PublicBaseURL)
	default:
		store, err = media.NewLocalStore(cfg.Media.LocalDir, cfg.Media.PublicBaseURL)
	}
	if err != nil {
		return nil, err
	}
	svc := &media.Service{
		Store:           store,
		MaxPhotoBytes:   cfg.Media.MaxPhotoBytes,
		MaxVoiceSeconds: cfg.Media.MaxVoiceSeconds,
		Log:             log.With().Str("component", "media").Logger(),
	}
	if cfg.LLM.APIKey != "" && cfg.LLM.TranscribeEnabled {
		svc.Transcriber = media.NewOpenAITranscriber(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	}
	return svc, nil
}

func loadFamilies(cfg config.GameConfig) (game.Families, error) {
	families := game.DefaultFamilies()
	if cfg.FamiliesFile == "" {
		return families, nil
	}
	over, err := config.LoadFamilyOverrides(cfg.FamiliesFile)
	if err != nil {
		return nil, err
	}
	families.ApplyOverrides(over)
	return families, nil
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	inf, err := newInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = inf.client.Close()
		_ = inf.cache.Close()
	}()

	mediaSvc, err := newMediaService(ctx, cfg, log)
	if err != nil {
		return err
	}
	families, err := loadFamilies(cfg.Game)
	if err != nil {
		return err
	}

	clk := clock.Real{}
	router := realtime.NewRouter(log.With().Str("component", "realtime").Logger())
	defer router.Close()

	reg := presence.New(db, clk, router, inf.cache, cfg.Realtime.OfflineGrace, log.With().Str("component", "presence").Logger())
	defer reg.Shutdown()

	pusher := &services.Pusher{Queue: inf.client, Log: log}
	blocks := &services.BlockService{DB: db, Clock: clk}
	convs := &services.ConversationService{DB: db, Clock: clk, Blocks: blocks, Locks: lockmap.New()}
	msgs := &services.MessageService{
		DB:           db,
		Clock:        clk,
		Fanout:       router,
		Blocks:       blocks,
		Moderation:   moderation.NewGate(moderation.DefaultRules()...),
		Images:       moderation.AllowAll{},
		Media:        mediaSvc,
		Push:         pusher,
		Locks:        lockmap.New(),
		Log:          log.With().Str("component", "chat").Logger(),
		MaxTextRunes: cfg.Chat.MaxTextRunes,
		EditWindow:   cfg.Chat.EditWindow,
	}
	reports := &services.ReportService{DB: db, Clock: clk}
	typing := services.NewTypingService(router, clk, cfg.Chat.TypingAutoStop)
	defer typing.Shutdown()

	enricher := &insights.Enricher{
		DB:       db,
		Queue:    inf.client,
		Families: families,
		Fanout:   router,
		Log:      log.With().Str("component", "insights").Logger(),
	}
	if cfg.LLM.APIKey != "" {
		enricher.Generator = insights.NewOpenAIGenerator(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
	}

	engine := game.NewEngine(db, clk, router, families, log.With().Str("component", "game").Logger())
	engine.Blocks = blocks
	engine.Enricher = enricher
	engine.Push = pusher
	engine.Countdown = cfg.Game.Countdown
	engine.RevealDelay = cfg.Game.RevealDelay
	engine.ReconnectGrace = cfg.Game.ReconnectGrace
	engine.IdempotencyTTL = cfg.IdempotencyTTL
	defer engine.Shutdown()
	if err := engine.Restore(ctx); err != nil {
		return err
	}

	inf.server.Register(services.TaskPushNotify, services.PushLogHandler(log.With().Str("component", "push").Logger()))
	inf.server.Register(insights.TaskEnrich, enricher.Handler())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := inf.server.Run(ctx); err != nil {
			log.Error().Err(err).Msg("queue workers")
		}
	}()

	go sysutil.Every(ctx, sweepInterval, func(ctx context.Context) {
		if _, err := engine.Sweep(ctx); err != nil {
			log.Warn().Err(err).Msg("session sweep")
		}
	})
	go sysutil.Every(ctx, purgeInterval, func(ctx context.Context) {
		n, err := repo.PurgeIdempotency(ctx, db, clk.Now())
		if err != nil {
			log.Warn().Err(err).Msg("purge correlation records")
			return
		}
		if n > 0 {
			log.Debug().Int64("records", n).Msg("purged correlation records")
		}
	})

	gw := &gateway.Gateway{
		Router:        router,
		Presence:      reg,
		Conversations: convs,
		Messages:      msgs,
		Typing:        typing,
		Games:         engine,
		Families:      families,
		Log:           log.With().Str("component", "gateway").Logger(),
		EventRPS:      cfg.Realtime.EventRPS,
		EventBurst:    cfg.Realtime.EventBurst,
		SendBuffer:    cfg.Realtime.SendBuffer,
		MaxFrameBytes: cfg.Realtime.MaxFrameBytes,
		CheckOrigin:   gateway.OriginChecker(cfg.Realtime.AllowedOrigins),
	}

	h := handlers.New(handlers.Deps{
		Conversations: convs,
		Messages:      msgs,
		Reports:       reports,
		Blocks:        blocks,
		Games:         engine,
		Families:      families,
		Media:         mediaSvc,
		Compat:        &compat.Aggregator{DB: db, Families: families},
		MaxUpload:     httpapi.MaxUploadBytes(cfg),
	})

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:       db,
		Auth:     middleware.DevAuthenticator{DB: db},
		Handlers: h,
		WS:       gw.ServeWS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Hijacked websockets are not tracked by Shutdown.
	router.Close()
	select {
	case <-workersDone:
	case <-sctx.Done():
		log.Warn().Msg("queue workers did not drain in time")
	}
	return nil
}

func closeDB(db *gorm.DB, log zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}
