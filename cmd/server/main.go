package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeline-engine/internal/media"
	"timeline-engine/internal/platform/config"
	"timeline-engine/internal/platform/logger"
	"timeline-engine/internal/platform/metrics"
	"timeline-engine/internal/sprite"
	"timeline-engine/internal/timeline"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	redisAddr := config.GetEnv("REDIS_ADDR", "")
	storeKind := config.GetEnv("SPRITE_STORE", "redis")
	maxAge := config.GetEnvDuration("SPRITE_MAX_AGE", sprite.DefaultMaxAge)

	log := logger.New(logLevel, logFormat)

	var opener sprite.StoreOpener
	switch {
	case storeKind == "redis" && redisAddr != "":
		opener = sprite.RedisOpener(redisAddr)
	case storeKind == "memory":
		log.Warn("using in-memory sprite store, sprites will not survive restarts")
		opener = sprite.NewMemoryStore().Opener()
	default:
		log.Warn("no sprite store configured, sprites will not survive restarts",
			"sprite_store", storeKind)
		opener = sprite.NewMemoryStore().Opener()
	}

	met := metrics.New()
	cache := sprite.NewCache(opener, media.NewFFmpegDecoder(), log, met, maxAge)
	defaults := sprite.CreateDefaults{
		IntervalSec: config.GetEnvFloat("SPRITE_INTERVAL_SEC", sprite.DefaultIntervalSec),
		TileHeight:  config.GetEnvInt("SPRITE_TILE_HEIGHT", sprite.DefaultTileHeight),
	}
	spriteHandler := sprite.NewHandler(cache, log, defaults)
	timelineHandler := timeline.NewHandler(log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler())
	r.Route("/v1/timeline", func(r chi.Router) {
		r.Post("/plan", timelineHandler.Plan)
		r.Post("/locate", timelineHandler.Locate)
	})
	r.Route("/v1/sprites", func(r chi.Router) {
		r.Post("/", spriteHandler.Create)
		r.Post("/prune", spriteHandler.Prune)
		r.Route("/{key}", func(r chi.Router) {
			r.Delete("/", spriteHandler.Delete)
			r.Get("/image", spriteHandler.GetImage)
			r.Get("/meta", spriteHandler.GetMeta)
			r.Get("/rect", spriteHandler.GetRect)
		})
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"sprite_store", storeKind,
		"sprite_max_age", maxAge.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
