// Command memoryd is the memory core's composition root: it loads
// configuration, opens the store, wires the embedding backend, model
// router, memory service, context assembler, and HTTP surface, then serves
// until an interrupt or terminate signal arrives. Grounded on the teacher's
// cmd/ai/main.go top-level wiring shape and on the graceful-shutdown
// signal.Notify pattern used across the example pack's server commands.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/contextasm"
	"github.com/osaurus/memory-core/internal/embedding"
	"github.com/osaurus/memory-core/internal/httpapi"
	"github.com/osaurus/memory-core/internal/maintenance"
	"github.com/osaurus/memory-core/internal/memorysvc"
	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/search"
	"github.com/osaurus/memory-core/internal/store"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	configPath := envOr("MEMORY_CONFIG_PATH", "memory/memory-config.json")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("failed to load config, continuing with resolved defaults")
	}

	dbPath := envOr("MEMORY_DB_PATH", "memory/memory.db")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, dbPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open store")
	}
	defer func() { _ = st.Close(context.Background()) }()

	embedder := buildEmbedder(cfg)

	searchSvc, err := search.New(ctx, st, embedder, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init search service")
	}

	local, remote := buildModelServices(cfg)
	memory := memorysvc.New(st, searchSvc, local, remote, cfg, log)

	if err := memory.RecoverOrphanedSignals(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to recover orphaned signals at startup")
	}

	assembler := contextasm.New(st, searchSvc, cfg, log)

	sched := maintenance.New(st, cfg, log)
	if err := sched.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to start maintenance scheduler")
	}
	defer sched.Stop()

	srv := httpapi.New(st, memory, assembler, nil, cfg, log)
	httpSrv := &http.Server{
		Addr:              envOr("MEMORY_LISTEN_ADDR", ":8765"),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutdown signal received")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown error")
		}
	}()

	log.Info().Str("addr", httpSrv.Addr).Msg("memory core listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server exited")
	}
}

func buildEmbedder(cfg config.Resolved) *embedding.Provider {
	switch cfg.EmbeddingBackend {
	case "openai":
		p, err := embedding.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), envOr("OPENAI_BASE_URL", ""), cfg.EmbeddingModel)
		if err != nil {
			return embedding.NewNoneProvider()
		}
		return p
	case "gemini":
		p, err := embedding.NewGeminiProvider(context.Background(), os.Getenv("GEMINI_API_KEY"), cfg.EmbeddingModel)
		if err != nil {
			return embedding.NewNoneProvider()
		}
		return p
	case "mlx":
		return embedding.NewLocalProvider(envOr("MLX_EMBEDDING_URL", "http://127.0.0.1:10240/v1"), cfg.EmbeddingModel)
	default:
		return embedding.NewNoneProvider()
	}
}

func buildModelServices(cfg config.Resolved) (local, remote []modelservice.Service) {
	var all []modelservice.Service
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		all = append(all, modelservice.NewAnthropicService(key, envOr("ANTHROPIC_BASE_URL", ""), cfg.CoreModelName))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		all = append(all, modelservice.NewOpenAIService(key, envOr("OPENAI_BASE_URL", ""), cfg.CoreModelName))
	}
	return all, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
