package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/studybuddyhq/studybuddy/internal/auth"
	"github.com/studybuddyhq/studybuddy/internal/config"
	"github.com/studybuddyhq/studybuddy/internal/genai"
	"github.com/studybuddyhq/studybuddy/internal/httpapi"
	"github.com/studybuddyhq/studybuddy/internal/live"
	"github.com/studybuddyhq/studybuddy/internal/observability"
	"github.com/studybuddyhq/studybuddy/internal/profile"
	"github.com/studybuddyhq/studybuddy/internal/session"
	"github.com/studybuddyhq/studybuddy/internal/store"
	"github.com/studybuddyhq/studybuddy/internal/study"
	"github.com/studybuddyhq/studybuddy/internal/support"
	"github.com/studybuddyhq/studybuddy/internal/views"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	kv, err := store.NewKV(ctx, cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer kv.Close()

	genaiCfg := genai.Config{
		Mode:    cfg.GenAIMode,
		APIKey:  cfg.GenAIAPIKey,
		BaseURL: cfg.GenAIBaseURL,
		LiveURL: cfg.GenAILiveURL,
	}
	client, err := genai.NewClient(genaiCfg)
	if err != nil {
		log.Fatalf("genai client init failed: %v", err)
	}
	liveProvider, err := genai.NewLiveProvider(genaiCfg)
	if err != nil {
		log.Fatalf("genai live provider init failed: %v", err)
	}
	if _, mock := client.(*genai.MockClient); mock {
		log.Printf("genai provider: mock (no API key configured)")
	} else {
		log.Printf("genai provider: http (%s)", cfg.GenAIBaseURL)
	}

	profiles := profile.NewService(kv)
	supportSvc := support.NewService(kv)
	viewRouter := views.NewRouter()
	studySvc := study.NewService(client, cfg.GenAITextModel, cfg.GenAIMathModel)
	challenge := study.NewChallenge()
	admin := auth.NewAdmin(cfg.AdminIdentifier, cfg.AdminPhone, cfg.AdminPassword, cfg.AdminTokenSecret, cfg.AdminTokenTTL)
	if admin.Enabled() {
		log.Printf("admin panel: enabled")
	} else {
		log.Printf("admin panel: disabled (no credentials configured)")
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := live.NewOrchestrator(
		sessions,
		liveProvider,
		client,
		metrics,
		cfg.GenAILiveModel,
		cfg.GenAITextModel,
		cfg.RecordingsDir,
		cfg.FirstAudioSLO,
	)

	api := httpapi.New(cfg, sessions, orchestrator, metrics, profiles, supportSvc, viewRouter, studySvc, challenge, admin)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
