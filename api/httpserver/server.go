// Package httpserver exposes the waiter board over JSON/HTTP and streams
// board events over a websocket.
package httpserver

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"waiterboard/infra/metrics"
	"waiterboard/service"
)

type Server struct {
	svc     *service.WaiterService
	hub     *Hub
	log     *zap.Logger
	metrics *metrics.Metrics
	handler http.Handler
}

type Config struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

func New(svc *service.WaiterService, hub *Hub, log *zap.Logger, cfg Config) *Server {
	s := &Server{
		svc:     svc,
		hub:     hub,
		log:     log.Named("http"),
		metrics: cfg.Metrics,
	}
	if s.metrics == nil {
		s.metrics = metrics.NopMetrics()
	}

	mux := http.NewServeMux()
	s.routes(mux)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.instrument(mux))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/records", s.listRecords)
	mux.HandleFunc("POST /api/records", s.createRecord)
	mux.HandleFunc("GET /api/records/{id}", s.getRecord)
	mux.HandleFunc("PUT /api/records/{id}", s.updateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", s.deleteRecord)
	mux.HandleFunc("GET /api/records/{id}/audit", s.recordAudit)

	mux.HandleFunc("GET /api/board/patient", s.patientBoard)
	mux.HandleFunc("GET /api/board/production", s.productionBoard)

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.updateSettings)
	mux.HandleFunc("GET /api/settings/export", s.exportSettings)
	mux.HandleFunc("POST /api/settings/import", s.importSettings)

	mux.HandleFunc("GET /api/audit", s.auditLog)

	mux.HandleFunc("GET /api/patients", s.listPatients)
	mux.HandleFunc("POST /api/patients", s.createPatient)
	mux.HandleFunc("GET /api/patients/search", s.searchPatient)

	if s.hub != nil {
		mux.Handle("GET /api/ws", s.hub)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	return h.Hijack()
}

func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestSeconds.
			With("route", route, "code", strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
