package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vistag"
)

var (
	serveAddr        string
	serveAPIKey      string
	serveCORSOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP tagging service",
	Long: `Serves the tagging engine over HTTP.

Endpoints:
  POST /process_image   {"image_info": "<url, data URL or local path>"}
  GET  /runs            recent runs (audit store required)
  GET  /runs/{id}       one run with its branch calls
  GET  /taxonomy        every valid tag
  GET  /health

Bearer authentication is enabled when --api-key or VISTAG_SERVER_API_KEY is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Bearer token required by clients")
	serveCmd.Flags().StringVar(&serveCORSOrigins, "cors-origins", "", "Allowed CORS origins")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAPIKey == "" {
		serveAPIKey = os.Getenv("VISTAG_SERVER_API_KEY")
	}
	if serveCORSOrigins == "" {
		serveCORSOrigins = os.Getenv("VISTAG_CORS_ORIGINS")
	}

	tagger, err := vistag.New(cfg)
	if err != nil {
		return err
	}
	defer tagger.Close()

	srv := &http.Server{
		Addr:        serveAddr,
		Handler:     newRouter(newHandler(tagger), serveAPIKey, serveCORSOrigins),
		ReadTimeout: 30 * time.Second,
		// Gated branches start after subject detection: two call timeouts end to end.
		WriteTimeout: 2*cfg.CallTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", serveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// newRouter wires routes and the middleware chain:
// recovery -> cors -> auth -> logging -> mux
func newRouter(h *handler, apiKey, corsOrigins string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process_image", h.handleProcessImage)
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /taxonomy", h.handleTaxonomy)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
