package main

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapmatch/snapmatch-go/internal/cache"
	"github.com/snapmatch/snapmatch-go/internal/compare"
	"github.com/snapmatch/snapmatch-go/internal/decode"
	"github.com/snapmatch/snapmatch-go/internal/events"
	"github.com/snapmatch/snapmatch-go/internal/phash"
	"github.com/snapmatch/snapmatch-go/internal/service"
	"github.com/snapmatch/snapmatch-go/internal/ws"
	"github.com/snapmatch/snapmatch-go/pkg/config"
	apperrors "github.com/snapmatch/snapmatch-go/pkg/errors"
	"github.com/snapmatch/snapmatch-go/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync() //nolint:errcheck

	var fpCache *cache.FingerprintCache
	if cfg.RedisURL != "" {
		fpCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		defer fpCache.Close()
	}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, log)
		if err != nil {
			log.Fatal("connect nats", zap.Error(err))
		}
		defer publisher.Close()
	}

	svc, err := service.New(log, phash.NewEngine(), fpCache, service.Limits{
		MaxBatchFiles: cfg.MaxBatchFiles,
		MaxCandidates: cfg.MaxCandidates,
		Workers:       cfg.HashWorkers,
	})
	if err != nil {
		log.Fatal("init service", zap.Error(err))
	}

	hub := ws.NewHub(log)
	defer hub.Shutdown()

	server := NewServer(cfg, log, svc, publisher, hub)
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server exited with error", zap.Error(err))
	}
}

var errImageTooLarge = errors.New("image exceeds the configured size limit")

// Server wires dependencies together and exposes HTTP routes.
type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	service *service.Service
	events  *events.Publisher
	hub     *ws.Hub
}

// NewServer returns a configured Server instance. publisher may be nil when
// event publishing is not configured.
func NewServer(
	cfg config.Config,
	logger *zap.Logger,
	svc *service.Service,
	publisher *events.Publisher,
	hub *ws.Hub,
) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		service: svc,
		events:  publisher,
		hub:     hub,
	}
}

// Start launches the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(s.cfg.RequestTimeout),
		s.logRequests(),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", s.handleHealth)
	router.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/hash", s.handleHash)
		r.Post("/hash/batch", s.handleBatchHash)
		r.Post("/compare", s.handleCompare)
		r.Post("/compare/batch", s.handleCompareBatch)
		r.Get("/ws", ws.Handler(s.hub))
	})

	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("snapmatch API listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type hashResponse struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Hash      string `json:"hash"`
	Checksum  string `json:"checksum"`
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, apperrors.BadRequest("multipart parse failed", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, apperrors.BadRequest("missing image field", err))
		return
	}
	defer file.Close()

	data, err := s.readLimited(file)
	if err != nil {
		if errors.Is(err, errImageTooLarge) {
			s.respondError(w, apperrors.PayloadTooLarge("image too large", err))
		} else {
			s.respondError(w, apperrors.Internal("read upload failed", err))
		}
		return
	}

	out, err := s.service.ComputeHash(r.Context(), data)
	if err != nil {
		s.respondError(w, mapServiceError("hash failed", err))
		return
	}

	requestID := uuid.NewString()
	s.announceHash(r.Context(), requestID, header.Filename, int64(len(data)), out)
	writeJSON(w, http.StatusOK, hashResponse{
		RequestID: requestID,
		Success:   true,
		Hash:      out.Hash,
		Checksum:  out.Checksum,
	})
}

type batchHashResponse struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	service.BatchHashResult
}

func (s *Server) handleBatchHash(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		s.respondError(w, apperrors.BadRequest("multipart parse failed", err))
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["images"]) == 0 {
		s.respondError(w, apperrors.BadRequest("missing images field", nil))
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) > s.cfg.MaxBatchFiles {
		s.respondError(w, apperrors.BadRequest(
			fmt.Sprintf("batch exceeds the maximum of %d files", s.cfg.MaxBatchFiles), nil))
		return
	}

	items := make([]service.NamedImage, 0, len(headers))
	for _, fh := range headers {
		item := service.NamedImage{Filename: fh.Filename}
		f, err := fh.Open()
		if err != nil {
			item.Err = err
		} else {
			item.Data, item.Err = s.readLimited(f)
			f.Close()
		}
		items = append(items, item)
	}

	result, err := s.service.ComputeBatchHash(r.Context(), items)
	if err != nil {
		s.respondError(w, mapServiceError("batch hash failed", err))
		return
	}

	requestID := uuid.NewString()
	for i, item := range result.Results {
		if item.Success {
			s.announceHash(r.Context(), requestID, item.Filename, int64(len(items[i].Data)),
				service.HashOutput{Hash: item.Hash, Checksum: item.Checksum})
		}
	}
	writeJSON(w, http.StatusOK, batchHashResponse{
		RequestID:       requestID,
		Success:         true,
		BatchHashResult: result,
	})
}

type compareResponse struct {
	Success bool `json:"success"`
	compare.Result
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req service.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperrors.BadRequest("invalid JSON body", err))
		return
	}
	res, err := s.service.Compare(req)
	if err != nil {
		s.respondError(w, mapServiceError("compare failed", err))
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{Success: true, Result: res})
}

type compareBatchResponse struct {
	Success bool `json:"success"`
	service.CompareBatchResult
}

func (s *Server) handleCompareBatch(w http.ResponseWriter, r *http.Request) {
	var req service.CompareBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperrors.BadRequest("invalid JSON body", err))
		return
	}
	res, err := s.service.CompareBatch(req)
	if err != nil {
		s.respondError(w, mapServiceError("compare batch failed", err))
		return
	}
	writeJSON(w, http.StatusOK, compareBatchResponse{Success: true, CompareBatchResult: res})
}

// readLimited consumes the upload while enforcing the configured size cap.
func (s *Server) readLimited(reader io.Reader) ([]byte, error) {
	maxBytes := s.cfg.MaxImageMB * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	var buf bytes.Buffer
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	if _, err := io.Copy(&buf, limited); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if limited.N <= 0 {
		return nil, errImageTooLarge
	}
	return buf.Bytes(), nil
}

type activityMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Filename  string `json:"filename,omitempty"`
	Hash      string `json:"hash"`
}

// announceHash mirrors a computed fingerprint to websocket observers and, when
// configured, to the NATS event stream. Both paths are best-effort.
func (s *Server) announceHash(ctx context.Context, requestID, filename string, size int64, out service.HashOutput) {
	s.hub.Broadcast(activityMessage{
		Type:      "hash.computed",
		RequestID: requestID,
		Filename:  filename,
		Hash:      out.Hash,
	})
	if s.events == nil {
		return
	}
	ev := events.HashEvent{
		RequestID:   requestID,
		Filename:    filename,
		Checksum:    out.Checksum,
		Fingerprint: out.Hash,
		SizeBytes:   size,
		ComputedAt:  time.Now().UTC(),
	}
	if err := s.events.PublishHash(ctx, ev); err != nil {
		s.logger.Warn("hash event publish failed", zap.Error(err))
	}
}

// requireAPIKey rejects requests without the configured X-API-Key header.
// When no key is configured the check is a no-op.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
				s.respondError(w, apperrors.Unauthorized("invalid or missing API key"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}

// mapServiceError translates service failures into HTTP-shaped errors:
// validation problems and undecodable images are the client's fault,
// everything else is internal.
func mapServiceError(message string, err error) apperrors.APIError {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		return apperrors.BadRequest(vErr.Reason, nil)
	}
	if errors.Is(err, decode.ErrInvalidImage) {
		return apperrors.BadRequest("invalid image", err)
	}
	return apperrors.Internal(message, err)
}

func (s *Server) respondError(w http.ResponseWriter, apiErr apperrors.APIError) {
	if apiErr.Code == 0 {
		apiErr.Code = http.StatusInternalServerError
	}
	writeJSON(w, apiErr.Code, map[string]interface{}{"success": false, "error": apiErr.Message})
	s.logger.Warn("api error", zap.String("message", apiErr.Message), zap.Error(apiErr.Err))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
