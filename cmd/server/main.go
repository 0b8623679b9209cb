package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/answer"
	"github.com/agrilink/farmchat/internal/chat"
	"github.com/agrilink/farmchat/internal/config"
	"github.com/agrilink/farmchat/internal/db"
	"github.com/agrilink/farmchat/internal/httpapi"
	"github.com/agrilink/farmchat/internal/httpapi/handlers"
	"github.com/agrilink/farmchat/internal/intent"
	"github.com/agrilink/farmchat/internal/knowledge"
	"github.com/agrilink/farmchat/internal/memory"
	"github.com/agrilink/farmchat/internal/store/rabbitmq"
	"github.com/agrilink/farmchat/internal/store/redisstore"
	"github.com/agrilink/farmchat/internal/store/vec"
	"github.com/agrilink/farmchat/internal/trace"
	"github.com/agrilink/farmchat/internal/user"
)

func listenAddr() string {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func buildProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) ai.Provider {
	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.GeminiModel
		}
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model), nil
	})

	provider, err := reg.Get(ctx, strings.ToLower(cfg.AIProvider), "")
	if err != nil {
		logger.Warn("generation service unavailable, answers will degrade",
			zap.String("provider", cfg.AIProvider), zap.Error(err))
		return nil
	}
	return provider
}

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(&user.User{}, &chat.Conversation{}, &chat.Message{}); err != nil {
		logger.Fatal("automigrate failed", zap.Error(err))
	}

	// Vector index is optional infrastructure; the bot runs without it.
	vdb, err := vec.Open(cfg.VecDBPath)
	if err != nil {
		logger.Warn("vector store unavailable, memories and knowledge base disabled", zap.Error(err))
		vdb = nil
	} else {
		defer func() { _ = vdb.Close() }()
	}

	var embedder ai.Embedder
	if cfg.GeminiAPIKey != "" {
		e, err := ai.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
		if err != nil {
			logger.Warn("embedder unavailable, semantic search disabled", zap.Error(err))
		} else {
			embedder = e
		}
	}

	provider := buildProvider(ctx, cfg, logger)

	memories := memory.NewStore(vdb, embedder, logger)
	kb := knowledge.NewBase(vdb, embedder, logger)

	var cache trace.Cache
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TraceCacheTTL, logger)
		defer func() { _ = rds.Close() }()
		cache = rds
	}
	traceClient := trace.NewClient(cfg.TraceBaseURL, cfg.TraceTimeout, cfg.TraceMaxAttempts, cache, logger)

	classifier := intent.NewClassifier(provider, logger)
	dispatcher := answer.NewDispatcher(traceClient, kb, provider, logger)

	convos := chat.NewConversationRepo(gdb)
	msgs := chat.NewMessageRepo(gdb)
	chatSvc := chat.NewService(convos, msgs, memories, classifier, dispatcher, cfg.MemoryRecallLimit, logger)

	var pub *rabbitmq.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		logger.Warn("rabbit publisher unavailable, knowledge ingest disabled", zap.Error(err))
	} else {
		pub = p
		defer pub.Close()
	}

	users := user.NewRepo(gdb)
	h := handlers.NewHandler(cfg, chatSvc, convos, msgs, users, kb, pub, logger)
	router := httpapi.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:    listenAddr(),
		Handler: router,
	}

	go func() {
		logger.Info("server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
