// Package server exposes the pipeline over a small message endpoint.
// Every request is a typed message posted to /message; every reply is a
// success/failure envelope, so callers never have to map transport errors
// onto pipeline errors.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codeberg.org/snonux/lexigap/internal/cache"
	"codeberg.org/snonux/lexigap/internal/coordinator"
	"codeberg.org/snonux/lexigap/internal/translate"
	"codeberg.org/snonux/lexigap/internal/vocab"
	"codeberg.org/snonux/lexigap/internal/wordlist"
)

// Message is the request envelope. Payload shape depends on Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope is the reply. Exactly one of Data and Error is populated.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Options configure a Server. Coordinator may be nil when no provider is
// configured; translateBatch then reports a configuration failure.
type Options struct {
	Coordinator *coordinator.Coordinator
	Cache       *cache.Cache
	Estimator   *vocab.Estimator
	Classifier  *wordlist.Classifier
	Logger      *slog.Logger
}

// Server routes messages to the pipeline components.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/message", s.handleMessage)
	s.router = r
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.opts.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: fmt.Sprintf("malformed message: %v", err)})
		return
	}

	data, err := s.dispatch(r.Context(), msg)
	if err != nil {
		s.opts.Logger.Warn("message failed", "type", msg.Type, "error", err)
		writeJSON(w, http.StatusOK, Envelope{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func (s *Server) dispatch(ctx context.Context, msg Message) (any, error) {
	switch msg.Type {
	case "translateBatch":
		return s.translateBatch(ctx, msg.Payload)
	case "markWord":
		return s.markWord(ctx, msg.Payload)
	case "quizStart":
		return s.quizStart()
	case "quizResult":
		return s.quizResult(ctx, msg.Payload)
	case "getProfile":
		return s.getProfile()
	case "cacheStats":
		return s.cacheStats()
	case "clearCache":
		return s.clearCache()
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (s *Server) translateBatch(ctx context.Context, payload json.RawMessage) (any, error) {
	if s.opts.Coordinator == nil {
		return nil, &translate.ConfigError{Reason: "no translation provider configured"}
	}
	var req coordinator.BatchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("bad translateBatch payload: %w", err)
	}
	resp, err := s.opts.Coordinator.TranslateBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type markWordPayload struct {
	Word       string `json:"word"`
	Difficulty int    `json:"difficulty"`
	Known      bool   `json:"known"`
}

func (s *Server) markWord(ctx context.Context, payload json.RawMessage) (any, error) {
	if s.opts.Estimator == nil {
		return nil, errors.New("vocabulary estimator unavailable")
	}
	var p markWordPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("bad markWord payload: %w", err)
	}
	if p.Word == "" {
		return nil, errors.New("markWord requires a word")
	}
	if p.Known {
		s.opts.Estimator.MarkKnown(ctx, p.Word, p.Difficulty)
	} else {
		s.opts.Estimator.MarkUnknown(ctx, p.Word, p.Difficulty)
	}
	return s.opts.Estimator.Profile(), nil
}

func (s *Server) quizStart() (any, error) {
	if s.opts.Classifier == nil {
		return nil, errors.New("word classifier unavailable")
	}
	return map[string]any{"questions": vocab.BuildQuiz(s.opts.Classifier)}, nil
}

type quizResultPayload struct {
	Answers []vocab.QuizAnswer `json:"answers"`
}

func (s *Server) quizResult(ctx context.Context, payload json.RawMessage) (any, error) {
	if s.opts.Estimator == nil {
		return nil, errors.New("vocabulary estimator unavailable")
	}
	var p quizResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("bad quizResult payload: %w", err)
	}
	if len(p.Answers) == 0 {
		return nil, errors.New("quizResult requires answers")
	}
	size := s.opts.Estimator.ApplyQuizResult(ctx, p.Answers, time.Now())
	return map[string]int{"estimatedVocabularySize": size}, nil
}

func (s *Server) getProfile() (any, error) {
	if s.opts.Estimator == nil {
		return nil, errors.New("vocabulary estimator unavailable")
	}
	profile := s.opts.Estimator.Profile()
	return map[string]any{
		"profile":           profile,
		"needsReassessment": s.opts.Estimator.NeedsReassessment(time.Now()),
	}, nil
}

func (s *Server) cacheStats() (any, error) {
	if s.opts.Cache == nil {
		return nil, errors.New("cache unavailable")
	}
	return s.opts.Cache.Stats(), nil
}

func (s *Server) clearCache() (any, error) {
	if s.opts.Cache == nil {
		return nil, errors.New("cache unavailable")
	}
	s.opts.Cache.ClearAll()
	return map[string]bool{"cleared": true}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
