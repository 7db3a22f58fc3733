// Package api exposes the query pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"tabrag/internal/domain"
	"tabrag/internal/port"
)

// Answerer is the query entry point served by the API.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*domain.Answer, error)
}

type Server struct {
	answerer  Answerer
	readiness port.Readiness
	logger    zerolog.Logger
}

func NewServer(answerer Answerer, readiness port.Readiness, logger zerolog.Logger) *Server {
	return &Server{answerer: answerer, readiness: readiness, logger: logger}
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rag_query", s.queryHandler)
	mux.HandleFunc("GET /health", s.healthHandler)

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(s.logger)(h)
	return h
}

type queryRequest struct {
	Query   string `json:"query"`
	Message string `json:"message"`
	K       int    `json:"k"`
}

type source struct {
	ID    string  `json:"id"`
	Path  string  `json:"path"`
	Sheet string  `json:"sheet,omitempty"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type queryResponse struct {
	Answer    string   `json:"answer"`
	Query     string   `json:"query"`
	Timestamp float64  `json:"timestamp"`
	Grounded  bool     `json:"grounded"`
	Sources   []source `json:"sources"`
}

// POST /rag_query  {"query": "..."} or form field query / message
func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := req.Query
	if strings.TrimSpace(query) == "" {
		query = req.Message
	}
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ans, err := s.answerer.Answer(r.Context(), query, req.K)
	if err != nil {
		status := statusFor(err)
		ev := hlog.FromRequest(r).Warn()
		if status == http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Error()
		}
		ev.Err(err).Msg("query failed")
		writeError(w, status, err.Error())
		return
	}

	resp := queryResponse{
		Answer:    ans.Text,
		Query:     ans.Query,
		Timestamp: float64(ans.Timestamp.UnixNano()) / float64(time.Second),
		Grounded:  ans.Grounded,
		Sources:   make([]source, 0, len(ans.Sources)),
	}
	for _, sc := range ans.Sources {
		resp.Sources = append(resp.Sources, source{
			ID:    sc.Chunk.ID,
			Path:  sc.Chunk.SourcePath,
			Sheet: sc.Chunk.Sheet,
			Score: sc.Score,
			Text:  sc.Chunk.Text,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !s.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, error) {
	var req queryRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req.Query = r.FormValue("query")
		req.Message = r.FormValue("message")
		return req, nil
	default:
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
		return req, err
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexNotReady),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
