// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adreel/internal/auth"
	"adreel/internal/captions"
	"adreel/internal/clients/deapi"
	"adreel/internal/clients/elevenlabs"
	"adreel/internal/clients/gemini"
	"adreel/internal/common/config"
	"adreel/internal/common/database"
	commonhttp "adreel/internal/common/http"
	"adreel/internal/common/logger"
	"adreel/internal/common/observability"
	"adreel/internal/media"
	"adreel/internal/pipeline"
	"adreel/internal/server"
	"adreel/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting ad video server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("adreel")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Schema and scratch directories ---
	users := store.NewUserRepository(pg.DB, log)
	if err := users.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}

	for _, dir := range []string{cfg.Storage.StaticDir, cfg.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			zapLog.Fatal("scratch directory setup failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	// --- External API clients ---
	httpClient := commonhttp.NewClient()

	promptClient := gemini.NewClient(&gemini.Config{
		BaseURL:    cfg.APIs.Gemini.BaseURL,
		APIKey:     cfg.APIs.Gemini.APIKey,
		Model:      cfg.APIs.Gemini.Model,
		Timeout:    config.GetDuration(cfg.APIs.Gemini.Timeout),
		MaxRetries: 3,
	}, httpClient, log)

	renderClient := deapi.NewClient(&deapi.Config{
		BaseURL:      cfg.APIs.Render.BaseURL,
		Model:        cfg.APIs.Render.Model,
		Motion:       cfg.APIs.Render.Motion,
		Width:        cfg.Media.Width,
		Height:       cfg.Media.Height,
		FPS:          cfg.Media.FPS,
		Frames:       cfg.Media.Frames,
		Steps:        cfg.Media.Steps,
		Guidance:     cfg.Media.Guidance,
		Timeout:      config.GetDuration(cfg.APIs.Render.Timeout),
		PollInterval: config.GetDuration(cfg.APIs.Render.PollInterval),
	}, deapi.NewKeyRing(cfg.APIs.Render.APIKeys), httpClient, log)

	speechClient := elevenlabs.NewClient(&elevenlabs.Config{
		BaseURL:         cfg.APIs.ElevenLabs.BaseURL,
		APIKey:          cfg.APIs.ElevenLabs.APIKey,
		VoiceID:         cfg.APIs.ElevenLabs.VoiceID,
		ModelID:         cfg.APIs.ElevenLabs.ModelID,
		Stability:       cfg.APIs.ElevenLabs.Stability,
		SimilarityBoost: cfg.APIs.ElevenLabs.SimilarityBoost,
		Timeout:         config.GetDuration(cfg.APIs.ElevenLabs.Timeout),
		MaxRetries:      2,
	}, httpClient, log)

	// --- Media tools ---
	mediaRunner := media.NewRunner(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, log)
	transcriber := captions.NewTranscriber(cfg.Media.WhisperPath, cfg.Media.WhisperModel, media.DefaultCommandRunner, log)

	// --- Services ---
	authService := auth.NewService(&auth.Config{
		SessionTTL: config.GetDuration(cfg.Auth.SessionTTL),
		BcryptCost: cfg.Auth.BcryptCost,
	}, users, redisClient.Client, log)

	workspaces := pipeline.NewWorkspaces(cfg.Storage.TempDir)
	pipelineService := pipeline.NewService(&pipeline.Config{
		Width:          cfg.Media.Width,
		Height:         cfg.Media.Height,
		FPS:            cfg.Media.FPS,
		MaxRetries:     3,
		RetryDelay:     config.GetDuration(cfg.APIs.Render.RetryDelay),
		SceneDelay:     config.GetDuration(cfg.Media.SceneDelay),
		MaxConcurrent:  cfg.Server.MaxConcurrentJobs,
		MaxWordsPerCue: cfg.Captions.MaxWordsPerCue,
		CaptionStyle: media.CaptionStyle{
			FontName:     cfg.Captions.FontName,
			FontSize:     cfg.Captions.FontSize,
			FontColor:    cfg.Captions.FontColor,
			OutlineColor: cfg.Captions.OutlineColor,
			OutlineWidth: cfg.Captions.OutlineWidth,
			MarginV:      cfg.Captions.MarginV,
		},
	}, workspaces, promptClient, renderClient, speechClient, transcriber, mediaRunner, obs, log)

	// --- HTTP server ---
	apiServer := server.New(cfg, authService, users, pipelineService, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Handler(),
		// Render routes block for minutes; write timeout must outlast the
		// request timeout.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.GetDuration(cfg.Server.RequestTimeout) + 10*time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Server stopped")
}
