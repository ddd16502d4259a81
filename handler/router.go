package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type correlationKey struct{}

// Routes exposes the same endpoints as Handle on a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(correlate)

	r.Get("/", h.servePage)
	r.Get("/chat", h.servePage)
	r.Post("/chat/send", h.serveSend)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// RoutesWithTimeout wraps Routes with chi's request timeout, which bounds the
// whole relay call including token acquisition.
func (h *Handler) RoutesWithTimeout(d time.Duration) http.Handler {
	if d <= 0 {
		return h.Routes()
	}
	return middleware.Timeout(d)(h.Routes())
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("loading chat page", "correlation_id", correlationID(r.Context()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, pageHTML)
}

func (h *Handler) serveSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalidBodyError})
		return
	}
	status, payload := h.send(r.Context(), body, correlationID(r.Context()))
	writeJSON(w, status, payload)
}

func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
