package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/api/generate"
	"github.com/Conversly/minivault/internal/config"
	"github.com/Conversly/minivault/internal/controllers"
	"github.com/Conversly/minivault/internal/core"
	"github.com/Conversly/minivault/internal/gateway"
	"github.com/Conversly/minivault/internal/llm"
	"github.com/Conversly/minivault/internal/loaders"
	"github.com/Conversly/minivault/internal/routes"
	"github.com/Conversly/minivault/internal/utils"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Warning: Error loading .env file", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cleanup := utils.InitLogger(cfg)
	defer cleanup()

	utils.Zlog.Info("Starting application",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.ServerPort),
		zap.String("model_backend", cfg.ModelBackend))

	sink, db, closeSink, err := newInteractionSink(cfg)
	if err != nil {
		utils.Zlog.Error("Failed to open interaction log", zap.Error(err))
		os.Exit(1)
	}
	defer closeSink()

	// gw stays nil when no backend is configured; every request is then served by the stub.
	var (
		gw     *gateway.Gateway
		gen    generate.Generator
		model  controllers.ModelStatus
		pinger controllers.DBPinger
	)
	if db != nil {
		pinger = db
	}
	if provider := newProvider(cfg); provider != nil {
		store := gateway.NewConfigStore(gateway.FromDefaults(cfg.Generation))
		gw = gateway.New(provider, store,
			gateway.WithWorkers(cfg.ModelWorkers),
			gateway.WithLoadTimeout(cfg.ModelLoadTimeout),
			gateway.WithMaxPromptChars(cfg.ModelMaxPromptChars),
			gateway.WithSystemPrompt(cfg.ModelSystemPrompt))
		gen, model = gw, gw
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	routes.SetupRoutes(router, cfg, model, pinger, generate.NewService(gen, sink))

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// generation on CPU can take minutes
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.Zlog.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Zlog.Error("Failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		utils.Zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	if gw != nil {
		if err := gw.Close(ctx); err != nil {
			utils.Zlog.Error("Error closing model gateway", zap.Error(err))
		}
	}

	utils.Zlog.Info("Server exited")
}

func newProvider(cfg *config.Config) llm.Provider {
	switch cfg.ModelBackend {
	case config.BackendOpenAI:
		return llm.NewCompletionsProvider(llm.CompletionsConfig{
			BaseURL:    cfg.ModelBaseURL,
			APIKey:     cfg.ModelAPIKey,
			Model:      cfg.ModelName,
			PadTokenID: cfg.ModelPadTokenID,
			EOSTokenID: cfg.ModelEOSTokenID,
		})
	case config.BackendGemini:
		return llm.NewGeminiProvider(cfg.GeminiAPIKeys, cfg.ModelName)
	}
	utils.Zlog.Warn("No model backend configured, serving stubbed responses")
	return nil
}

// newInteractionSink opens the JSONL log and, when DATABASE_URL is set, mirrors it to Postgres.
// db is nil when the mirror is off.
func newInteractionSink(cfg *config.Config) (core.InteractionSink, *loaders.PostgresClient, func(), error) {
	jsonl, err := core.NewJSONLSink(cfg.LogDir)
	if err != nil {
		return nil, nil, nil, err
	}
	utils.Zlog.Info("Interaction log ready", zap.String("path", jsonl.Path()))

	if cfg.DatabaseURL == "" {
		return jsonl, nil, func() { closeAndLog(jsonl, "interaction log") }, nil
	}

	db, err := loaders.NewPostgresClient(cfg.DatabaseURL, cfg.WorkerCount)
	if err != nil {
		// the JSONL log is authoritative; the mirror is optional
		utils.Zlog.Error("Failed to create database client, interaction mirror disabled", zap.Error(err))
		return jsonl, nil, func() { closeAndLog(jsonl, "interaction log") }, nil
	}

	saver := core.NewInteractionSaver(db, core.WithBatchSize(cfg.BatchSize))
	tee := core.NewTee(jsonl, saver)
	return tee, db, func() {
		closeAndLog(tee, "interaction sinks")
		if err := db.Close(); err != nil {
			utils.Zlog.Error("Error closing database connection", zap.Error(err))
		}
	}, nil
}

func closeAndLog(s core.InteractionSink, what string) {
	if err := s.Close(); err != nil {
		utils.Zlog.Error("Error closing "+what, zap.Error(err))
	}
}
