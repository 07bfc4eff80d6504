package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/streamchat/internal/ai"
	"github.com/suPer8Hu/streamchat/internal/chat"
	"github.com/suPer8Hu/streamchat/internal/config"
	"github.com/suPer8Hu/streamchat/internal/db"
	"github.com/suPer8Hu/streamchat/internal/httpapi"
	"github.com/suPer8Hu/streamchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/streamchat/internal/logging"
	"github.com/suPer8Hu/streamchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/streamchat/internal/store/redisstore"
)

func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if m := strings.TrimSpace(model); m != "" {
			return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, model, cfg.OpenAIBaseURL)
	})
	return reg
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.Setup(os.Stdout, cfg.LogLevel)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	if err := chat.AutoMigrate(gdb); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	reg := newRegistry(cfg)
	provider, err := reg.Get(context.Background(), cfg.AIProvider, "")
	if err != nil {
		log.Error("ai provider", "err", err, "available", reg.Names())
		os.Exit(1)
	}

	var cancels handlers.CancelBus = redisstore.NewLocalCancelBus()
	if cfg.RedisAddr != "" {
		rds, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Error("redis connect", "err", err)
			os.Exit(1)
		}
		defer rds.Close()
		cancels = rds
	}

	var retry chat.RetrySink
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Error("rabbit connect", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		retry = pub
	}

	sessions := chat.NewSessionManager(gdb, cfg.VerifySessionOwner)
	history := chat.NewHistory(gdb)
	pipeline := chat.NewPipeline(sessions, history, provider, chat.PipelineConfig{
		SystemPrompt: cfg.SystemPrompt,
		Generation:   ai.GenerationConfig{Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxOutputTokens},
		Timeout:      cfg.RequestTimeout,
		Policy:       chat.PolicyFor(cfg.PersistPartial),
		Retry:        retry,
	}, log)

	h := &handlers.Handler{
		DB:        gdb,
		Pipeline:  pipeline,
		History:   history,
		Sessions:  sessions,
		Cancels:   cancels,
		Heartbeat: cfg.HeartbeatInterval,
		Log:       log,
	}

	if strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr, "provider", cfg.AIProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
