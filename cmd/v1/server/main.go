// Command server runs the SpeakUp push-to-talk backend: room management API,
// WebSocket transport, and recording downloads.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/config"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/health"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/httpapi"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/middleware"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/ratelimit"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/registry"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/session"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/storage"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/tracing"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/transport"
)

const shutdownTimeout = 10 * time.Second

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		// Logger is not up yet.
		panic(err)
	}

	if err := logging.Initialize(logging.Options{
		Development: cfg.DevelopmentMode,
		LogFile:     cfg.LogFile,
	}); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "speakup-server", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Fatal(ctx, "failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logging.Warn(shutdownCtx, "tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logging.Warn(ctx, "redis unreachable at startup; continuing",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}

	limiter, err := ratelimit.New(ratelimit.Limits{
		APIGlobal: cfg.RateLimitAPIGlobal,
		APIRooms:  cfg.RateLimitAPIRooms,
		WsPerIP:   cfg.RateLimitWsIP,
	}, rdb)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	regOpts := registry.Options{
		TTL:      cfg.RoomTTL,
		Cooldown: cfg.DownloadCooldown,
	}
	if rdb != nil {
		regOpts.Reserver = registry.NewRedisCodeReserver(rdb, cfg.RoomTTL+cfg.DownloadCooldown)
	}
	if cfg.RecordingUploadURL != "" {
		var uploader session.Sink = storage.NewCloudUploader(cfg.RecordingUploadURL)
		regOpts.UploadSink = uploader
	}
	reg := registry.New(regOpts)

	router := buildRouter(cfg, reg, limiter, rdb)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Rooms first: stop frames and socket closes go out before the listener
	// stops accepting, since Shutdown does not wait on hijacked connections.
	reg.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(shutdownCtx, "http server shutdown failed", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logging.Info(context.Background(), "server stopped")
	os.Exit(0)
}

func buildRouter(cfg *config.Config, reg *registry.Registry, limiter *ratelimit.RateLimiter, rdb *redis.Client) *gin.Engine {
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("speakup-server"))
	}

	origins := cfg.AllowedOriginList(defaultOrigins)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.HeaderXCorrelationID},
		ExposeHeaders:    []string{"Content-Disposition", middleware.HeaderXCorrelationID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	health.NewHandler(rdb).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("")
	api.Use(limiter.GlobalMiddleware())
	httpapi.NewHandler(reg).Register(api, limiter)

	hub := transport.NewHub(reg, origins, limiter)
	router.GET("/:code", hub.ServeWs)

	return router
}
