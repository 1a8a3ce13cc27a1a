package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dashrelay "github.com/rld-labs/dashrelay"
	"github.com/rld-labs/dashrelay/internal/logging"
	"github.com/rld-labs/dashrelay/internal/requestlog"
	"github.com/rld-labs/dashrelay/internal/version"
	"github.com/rld-labs/dashrelay/web"
)

func main() {
	// Resolve the deployment profile once; everything downstream sees
	// only the resulting Config.
	profile := dashrelay.Profile(os.Getenv("RELAY_PROFILE"))
	if profile == "" {
		profile = dashrelay.ProfileProduction
	}
	cfg := dashrelay.DefaultConfig(profile)

	if cfgPath := os.Getenv("RELAY_CONFIG"); cfgPath != "" {
		loaded, err := dashrelay.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
		log.Printf("Config loaded from %s (profile=%s)", cfgPath, cfg.Profile)
	}
	if err := dashrelay.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Missing credentials are fatal: the relay must not start half-wired.
	creds := dashrelay.Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AirtableAPIKey:  os.Getenv("AIRTABLE_API_KEY"),
	}
	relay, err := dashrelay.New(cfg, creds)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	switch cfg.RequestLog.Driver {
	case "sqlite":
		w, err := requestlog.NewSQLiteWriter(cfg.RequestLog.DSN)
		if err != nil {
			log.Fatalf("Request log: %v", err)
		}
		defer func() { _ = w.Close() }()
		relay.SetRequestLog(w)
		log.Println("Request log: sqlite")
	case "postgres":
		w, err := requestlog.NewPostgresWriter(cfg.RequestLog.DSN)
		if err != nil {
			log.Fatalf("Request log: %v", err)
		}
		defer func() { _ = w.Close() }()
		relay.SetRequestLog(w)
		log.Println("Request log: postgres")
	}

	r := newRouter(relay, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("dashrelay %s listening on %s (profile=%s, tables=%d)",
		version.Short(), srv.Addr, cfg.Profile, len(relay.Catalog()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// newRouter builds the HTTP router.
func newRouter(relay *dashrelay.Relay, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	h := &handlers{relay: relay}

	r.Get("/health", h.health)
	r.Post("/api/chat", h.chat)
	r.Get("/api/airtable/records", h.records)
	r.Get("/api/cache", h.cacheStats)
	r.Delete("/api/cache", h.cacheClear)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/", http.FileServer(http.FS(web.Assets)))

	return r
}
