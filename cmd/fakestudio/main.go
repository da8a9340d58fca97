// Command fakestudio serves an in-memory studio for local development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/reelwatch/internal/studiotest"
	"github.com/rpggio/reelwatch/internal/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	addr := envOr("FAKESTUDIO_ADDR", "127.0.0.1:8000")
	advance, err := time.ParseDuration(envOr("FAKESTUDIO_ADVANCE", "5s"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAKESTUDIO_ADVANCE: %v\n", err)
		os.Exit(1)
	}
	frames, err := strconv.Atoi(envOr("FAKESTUDIO_FRAMES", "4"))
	if err != nil || frames < 0 {
		fmt.Fprintf(os.Stderr, "FAKESTUDIO_FRAMES must be a non-negative integer\n")
		os.Exit(1)
	}

	studio := studiotest.NewStudio("http://" + addr + "/assets")
	seeded := studio.AddProject("demo", frames)
	logger.Info("seeded project", "project_id", seeded, "frames", frames)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(transport.RequestLogger(logger))
	r.Post("/seed", func(w http.ResponseWriter, req *http.Request) {
		n := frames
		if v := req.URL.Query().Get("frames"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
				n = parsed
			}
		}
		id := studio.AddProject(req.URL.Query().Get("name"), n)
		logger.Info("seeded project", "project_id", id, "frames", n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, "{\"id\":%q}\n", id)
	})
	r.Mount("/", studio)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go autoAdvance(ctx, logger, studio, advance)

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("fake studio listening", "addr", addr, "advance", advance)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// autoAdvance completes generating frames and pending combines every tick.
func autoAdvance(ctx context.Context, logger *slog.Logger, studio *studiotest.Studio, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			studio.Advance()
			logger.Debug("studio advanced")
		}
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
