// Package api Record Vault REST API
//
// @title           Record Vault REST API
// @version         1.0.0
// @description     Resizable record store with policy-checked growth.
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

// statsInterval is how often store gauges are refreshed
const statsInterval = 15 * time.Second

// NewRouter builds the HTTP routes. Metrics are served from gatherer.
func (s *Server) NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	m := s.metrics
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/stats", m.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
		r.Get("/schemas", m.InstrumentHandler("GET", "/api/v1/schemas", s.handleListSchemas))
		r.Post("/keys/derive", m.InstrumentHandler("POST", "/api/v1/keys/derive", s.handleDeriveKey))

		// Records
		r.Get("/records", m.InstrumentHandler("GET", "/api/v1/records", s.handleListRecords))
		r.Post("/records/{key}", m.InstrumentHandler("POST", "/api/v1/records/{key}", s.handleInitialize))
		r.Get("/records/{key}", m.InstrumentHandler("GET", "/api/v1/records/{key}", s.handleRead))
		r.Patch("/records/{key}", m.InstrumentHandler("PATCH", "/api/v1/records/{key}", s.handleUpdate))
		r.Post("/records/{key}/append", m.InstrumentHandler("POST", "/api/v1/records/{key}/append", s.handleAppend))
		r.Get("/records/{key}/stat", m.InstrumentHandler("GET", "/api/v1/records/{key}/stat", s.handleStat))
		r.Get("/records/{key}/fields/{field}", m.InstrumentHandler("GET", "/api/v1/records/{key}/fields/{field}", s.handleFieldEquals))

		r.Get("/receipts/{id}", m.InstrumentHandler("GET", "/api/v1/receipts/{id}", s.handleReceipt))
	})

	// Swagger documentation (unprotected)
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
		if err != nil {
			s.logger.Error("failed to generate swagger doc", zap.Error(err))
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	})

	return r
}

// updateStats refreshes store gauges until ctx is done
func (s *Server) updateStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		s.metrics.UpdateStoreStats(s.records.Count(), s.records.AllocatedBytes())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartServer serves the API until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, records RecordService, config ServerConfig, logger *zap.Logger) error {
	if config.APIKey == "" || config.APIKey == "auto" {
		return fmt.Errorf("an API key is required; run 'vault config init' to generate one")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	SwaggerInfo.Host = fmt.Sprintf("localhost:%d", config.Port)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	server := NewServer(records, config, metrics, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Bind, config.Port),
		Handler:           server.NewRouter(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.updateStats(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting record vault API", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	logger.Info("shutting down record vault API")
	return httpServer.Shutdown(shutdownCtx)
}
