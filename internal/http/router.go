// Package httpapi wires the HTTP transport (Gin) to the handlers, the
// websocket gateway and the cross-cutting middleware: tracing, correlation
// ids, scrubbed access logs, panic recovery, metrics, compression, CORS,
// security headers, authentication, idempotency and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/config"
	_ "github.com/tbourn/go-dating-realtime/internal/http/docs"
	"github.com/tbourn/go-dating-realtime/internal/http/handlers"
	"github.com/tbourn/go-dating-realtime/internal/http/middleware"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

const (
	jsonBodyLimit   = 1 << 20
	minUploadBytes  = 10 << 20
	multipartMargin = 1 << 20
)

// Deps are the collaborators the router mounts.
type Deps struct {
	DB       *gorm.DB
	Auth     middleware.Authenticator
	Handlers *handlers.Handlers
	// WS upgrades /ws; it runs behind Authenticate.
	WS gin.HandlerFunc
}

// MaxUploadBytes is the largest photo or voice file accepted.
func MaxUploadBytes(cfg config.Config) int64 {
	return max(cfg.Media.MaxPhotoBytes, minUploadBytes)
}

// RegisterRoutes installs middleware and mounts every endpoint on r.
//
// Global order: otelgin, RequestID, Logger, Recovery, Metrics, gzip, CORS,
// SecurityHeaders. The API group then runs Authenticate, NoStore,
// IdempotencyValidator and the rate limiter, in that order, so replays
// are recognized before they are throttled.
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mediaPath := localMediaPath(cfg)
	excluded := []string{"/ws", "/metrics"}
	if mediaPath != "" {
		excluded = append(excluded, mediaPath)
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(excluded)))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if mediaPath != "" {
		r.Static(mediaPath, cfg.Media.LocalDir)
	}

	auth := middleware.Authenticate(d.Auth)
	r.GET("/ws", auth, d.WS)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		auth,
		middleware.NoStore(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, replayLookup(d.DB)),
		rl.Handler(),
	)

	h := d.Handlers
	js := api.Group("", limitBody(jsonBodyLimit))
	{
		js.POST("/conversations", h.StartConversation)
		js.GET("/conversations", h.ListConversations)
		js.DELETE("/conversations/:id", h.DeleteConversation)
		js.PUT("/conversations/:id/mute", h.MuteConversation)
		js.GET("/conversations/:id/messages", h.ListMessages)

		js.POST("/messages/:id/save", h.SaveMessage)
		js.POST("/messages/:id/report", h.ReportMessage)

		js.GET("/blocks", h.ListBlocks)
		js.POST("/blocks", h.Block)
		js.DELETE("/blocks/:userId", h.Unblock)

		js.GET("/games", h.ListFamilies)
		js.GET("/sessions/:id", h.GetSession)
		js.GET("/sessions/:id/voice-notes", h.ListVoiceNotes)
		js.GET("/compatibility/:partnerId", h.Compatibility)
	}

	up := api.Group("", limitBody(MaxUploadBytes(cfg)+multipartMargin))
	{
		up.POST("/conversations/:id/photos", h.SendPhoto)
		up.POST("/conversations/:id/voice", h.SendVoice)
		up.POST("/sessions/:id/voice-notes", h.UploadVoiceNote)
		up.POST("/sessions/:id/responses/:index", h.SubmitResponse)
	}
}

// replayLookup treats an Idempotency-Key as a client message id on the
// conversation named by the :id path parameter.
func replayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, resourceID, key string, _ time.Time) (bool, error) {
		if db == nil || resourceID == "" {
			return false, nil
		}
		_, err := repo.FindMessageByClientID(ctx, db, resourceID, userID, key)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// corsMiddleware allows every origin without credentials when the list is
// empty, otherwise only the listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Also set ACAO on requests without an Origin header, which
			// gin-contrib/cors skips.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(base)}
}

// localMediaPath is the URL path local media is served under, or "" when
// blobs live in S3 or the public base URL points elsewhere.
func localMediaPath(cfg config.Config) string {
	if cfg.Media.Backend != "local" {
		return ""
	}
	u, err := url.Parse(cfg.Media.PublicBaseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.Path
}

// limitBody caps request bodies with http.MaxBytesReader; reads past the
// cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
