package handler

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"zava-chat/internal/domain"
	"zava-chat/internal/relay"
)

const (
	correlationHeader = "X-Correlation-Id"
	emptyMessageError = "Message cannot be empty"
	invalidBodyError  = "Invalid request body"
	recordTimeout     = 5 * time.Second
)

//go:embed page.html
var pageHTML string

// Sender is satisfied by *relay.Relay.
type Sender interface {
	Send(ctx context.Context, message string) relay.Result
}

// ExchangeRecorder is satisfied by *repository.ExchangeLog.
type ExchangeRecorder interface {
	Record(ctx context.Context, ex domain.Exchange) error
}

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the chat page and the send endpoint, either behind API
// Gateway (Handle) or as a plain HTTP server (Routes).
type Handler struct {
	relay    Sender
	recorder ExchangeRecorder
	logger   *slog.Logger
}

type Option func(*Handler)

// WithExchangeRecorder audits every relay call. Recording errors are logged
// and never change the response.
func WithExchangeRecorder(r ExchangeRecorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(s Sender, opts ...Option) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	h := &Handler{relay: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle routes an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFromHeaders(event.Headers)

	switch route := normalizePath(event.Path); {
	case route == "/chat/send" && event.HTTPMethod == http.MethodPost:
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: invalidBodyError}), nil
			}
			body = decoded
		}
		status, payload := h.send(ctx, body, correlationID)
		return jsonResponse(status, correlationID, payload), nil

	case (route == "/" || route == "/chat") && event.HTTPMethod == http.MethodGet:
		h.logger.Info("loading chat page", "correlation_id", correlationID)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":    "text/html; charset=utf-8",
				correlationHeader: correlationID,
			},
			Body: pageHTML,
		}, nil

	case route == "/health" && event.HTTPMethod == http.MethodGet:
		return jsonResponse(http.StatusOK, correlationID, map[string]string{"status": "ok"}), nil

	case route == "/chat/send" || route == "/" || route == "/chat" || route == "/health":
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "Method not allowed"}), nil
	}
	return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: "Not found"}), nil
}

// send validates the request body, relays the message and always answers 200
// once validation passes.
func (h *Handler) send(ctx context.Context, body []byte, correlationID string) (int, any) {
	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: invalidBodyError}
	}
	if strings.TrimSpace(req.Message) == "" {
		return http.StatusBadRequest, errorResponse{Error: emptyMessageError}
	}

	h.logger.Info("processing chat message", "correlation_id", correlationID)

	res := h.relay.Send(ctx, req.Message)
	reply := res.Message()
	h.record(ctx, domain.Exchange{
		CorrelationID: correlationID,
		Message:       req.Message,
		Reply:         reply,
		Outcome:       string(res.Kind),
		StatusCode:    res.StatusCode,
	})
	return http.StatusOK, sendResponse{Response: reply}
}

func (h *Handler) record(ctx context.Context, ex domain.Exchange) {
	if h.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := h.recorder.Record(ctx, ex); err != nil {
		h.logger.Warn("failed to record exchange", "correlation_id", ex.CorrelationID, "err", err)
	}
}

func jsonResponse(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func normalizePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return strings.ToLower(p)
}

func correlationIDFromHeaders(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}
