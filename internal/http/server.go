// Package http exposes the JSON API: transaction listing and
// categorization, spending aggregates, account management, and the
// sync/demo triggers.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// SyncEnqueuer hands a statement pull to the background worker. Nil
// when AMQP is not configured; the server then syncs inline.
type SyncEnqueuer interface {
	PublishAccountSync(ctx context.Context, accountID int64) error
}

// SpendingExporter pushes a month's spending report to an external
// sheet. Nil when no spreadsheet is configured.
type SpendingExporter interface {
	ExportMonthlySummary(ctx context.Context, summary core.SpendingSummary) error
}

type Server struct {
	http.Server

	storage  *storage.SQLiteRepository
	syncSvc  *services.SyncService
	demoSvc  *services.DemoService
	enqueuer SyncEnqueuer
	exporter SpendingExporter

	rateLimiter *rateLimiter

	// Spending aggregates are cached per month/account pair. cacheGen
	// is part of every key; bumping it on any write invalidates the
	// whole cache and stale entries age out through the LRU.
	summaryCache *cache.LRUCache[core.SpendingSummary]
	cacheGen     atomic.Uint64

	metrics serverMetrics

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

func NewServer(addr string, repo *storage.SQLiteRepository, syncSvc *services.SyncService, demoSvc *services.DemoService, enqueuer SyncEnqueuer, exporter SpendingExporter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		storage:          repo,
		syncSvc:          syncSvc,
		demoSvc:          demoSvc,
		enqueuer:         enqueuer,
		exporter:         exporter,
		rateLimiter:      newRateLimiter(60),
		summaryCache:     cache.NewLRUCache[core.SpendingSummary](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/transactions", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions/{id}/categorize", s.withMiddleware(s.handleCategorize))
	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))
	mux.HandleFunc("GET /api/spending-by-category", s.withMiddleware(s.handleSpendingByCategory))
	mux.HandleFunc("GET /api/months", s.withMiddleware(s.handleListMonths))

	mux.HandleFunc("GET /api/accounts", s.withMiddleware(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts", s.withMiddleware(s.handleLinkAccount))
	mux.HandleFunc("POST /api/accounts/{id}/delete", s.withMiddleware(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/accounts/{id}/rename", s.withMiddleware(s.handleRenameAccount))
	mux.HandleFunc("POST /api/accounts/{id}/toggle", s.withMiddleware(s.handleToggleAccount))

	mux.HandleFunc("POST /api/bank/sync", s.withMiddleware(s.handleBankSync))
	mux.HandleFunc("POST /api/demo/generate-data", s.withMiddleware(s.handleGenerateDemoData))
	mux.HandleFunc("POST /api/export/spending", s.withMiddleware(s.handleExportSpending))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.summaryCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateSummaries drops every cached aggregate. Called after any
// write that can move a spending total.
func (s *Server) invalidateSummaries() {
	s.cacheGen.Add(1)
}

func (s *Server) summaryCacheKey(month core.MonthKey, accountID *int64) string {
	account := "all"
	if accountID != nil {
		account = fmt.Sprintf("%d", *accountID)
	}
	return fmt.Sprintf("g%d|%s|%s", s.cacheGen.Load(), month, account)
}

// Shutdown stops the cleanup goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds request IDs, security headers, rate limiting on
// writes, and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()
		s.metrics.requestsTotal.Add(1)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldComponent, log.ComponentHTTP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.metrics.rateLimitedTotal.Add(1)
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		if rw.statusCode >= http.StatusInternalServerError {
			s.metrics.requestErrorsTotal.Add(1)
		}
		slog.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.ListCategories(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
