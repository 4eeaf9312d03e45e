package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server is the REST facade off-chain observers use: subscription management,
// the locally mirrored event journal, and order lookups proxied to the node.
type Server struct {
	apiKey string
	node   NodeClient
	store  *SQLiteStore
	logger *slog.Logger
	router chi.Router
}

func NewServer(apiKey string, node NodeClient, store *SQLiteStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{apiKey: apiKey, node: node, store: store, logger: logger}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/subscriptions", s.handleCreateSubscription)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Delete("/subscriptions/{id}", s.handleDeleteSubscription)
		r.Get("/events", s.handleListEvents)
		r.Get("/orders/{ref}", s.handleGetOrder)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimSpace(r.Header.Get("X-Api-Key"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type createSubscriptionRequest struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret"`
	EventTypes []string `json:"eventTypes"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	parsed, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeJSONError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	if strings.TrimSpace(req.Secret) == "" {
		writeJSONError(w, http.StatusBadRequest, "secret is required")
		return
	}
	sub := WebhookSubscription{
		ID:         uuid.NewString(),
		URL:        parsed.String(),
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.store.CreateSubscription(r.Context(), sub); err != nil {
		s.logger.Error("create subscription", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to persist subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context())
	if err != nil {
		s.logger.Error("list subscriptions", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []WebhookSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			writeJSONError(w, http.StatusNotFound, "subscription not found")
			return
		}
		s.logger.Error("delete subscription", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	after := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = parsed
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}
	entries, err := s.store.EventsAfter(r.Context(), after, limit)
	if err != nil {
		s.logger.Error("list events", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	order, err := s.node.GetOrder(r.Context(), ref)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}
