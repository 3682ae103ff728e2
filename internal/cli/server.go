package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/auth"
	"exam-quiz-service/internal/config"
	transport "exam-quiz-service/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Store.Driver == "memory" {
		categories, err := seedCategories(cfg.Seed.File)
		if err != nil {
			return err
		}
		if err := app.SeedCategories(ctx, b.docs, categories); err != nil {
			return err
		}
		log.Printf("seeded %d categories into memory store", len(categories))
	}

	logger := log.New(os.Stderr, "[exam] ", log.LstdFlags)
	categoryTTL := config.TTLDuration(cfg.Category.TTL, 10*time.Minute)
	attemptGrace := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	service := app.NewExamService(b.docs, b.categoryRepository(categoryTTL), b.attemptStore(attemptGrace), app.Options{
		TimeLimit:      config.TTLDuration(cfg.Exam.Duration, app.DefaultTimeLimit),
		TickInterval:   config.TTLDuration(cfg.Exam.Tick, time.Second),
		Retention:      config.TTLDuration(cfg.Exam.Retention, app.DefaultRetention),
		ClampThreshold: cfg.Exam.ClampThreshold,
		Logger:         logger,
	})
	tokens := auth.NewTokens(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 2*time.Hour))
	if !tokens.Enabled() {
		log.Printf("auth secret not configured, attempt routes are open")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if b.redis != nil {
			if err := b.redis.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	transport.NewAPIHandler(service, tokens, logger).Register(mux)
	mux.HandleFunc("GET /ws", transport.NewWSHandler(service, tokens, logger).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.LoggingMiddleware(logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
