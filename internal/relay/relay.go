package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"zava-chat/internal/config"
	"zava-chat/internal/integrations/azureopenai"
	"zava-chat/internal/integrations/identity"
)

// Completer sends one chat completion request. *azureopenai.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, url, token string, in azureopenai.Request) (string, error)
}

// Relay forwards a single user message to the Phi-4 deployment and turns
// whatever happens into a Result. It holds no per-call state, so one Relay is
// shared by all concurrent requests.
type Relay struct {
	settings  config.Phi4
	tokens    identity.TokenProvider
	completer Completer
	logger    *slog.Logger
}

func New(settings config.Phi4, tokens identity.TokenProvider, completer Completer, logger *slog.Logger) (*Relay, error) {
	if tokens == nil {
		return nil, errors.New("relay: token provider must not be nil")
	}
	if completer == nil {
		return nil, errors.New("relay: completer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		settings:  settings,
		tokens:    tokens,
		completer: completer,
		logger:    logger,
	}, nil
}

// Reply relays userMessage and returns the model's answer or a readable error
// sentence. It never fails.
func (r *Relay) Reply(ctx context.Context, userMessage string) string {
	return r.Send(ctx, userMessage).Message()
}

// Send relays userMessage with a single attempt and classifies the outcome.
func (r *Relay) Send(ctx context.Context, userMessage string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = r.fail(ctx, fmt.Errorf("relay: panic: %v", p))
		}
	}()

	endpoint := strings.TrimSpace(r.settings.Endpoint)
	deployment := strings.TrimSpace(r.settings.DeploymentName)
	if endpoint == "" || deployment == "" {
		r.logger.Error("phi4 endpoint configuration is missing",
			"endpoint_set", endpoint != "",
			"deployment_set", deployment != "")
		return Result{Kind: KindConfigurationMissing}
	}

	url := azureopenai.CompletionURL(endpoint, deployment)

	token, err := r.tokens.Token(ctx, identity.CognitiveServicesAudience)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.logger.Info("sending message to phi4 endpoint", "endpoint", url)

	content, err := r.completer.Complete(ctx, url, token, buildRequest(userMessage))
	if err == nil {
		return Result{Kind: KindReply, Reply: content}
	}
	if errors.Is(err, azureopenai.ErrNoContent) {
		return Result{Kind: KindNoContent}
	}

	var statusErr *azureopenai.HTTPStatusError
	if errors.As(err, &statusErr) {
		r.logger.Error("phi4 request failed",
			"status", statusErr.StatusCode,
			"body", statusErr.Body)
		return Result{Kind: KindUpstreamRejected, StatusCode: statusErr.StatusCode, Err: err}
	}
	return r.fail(ctx, err)
}

func (r *Relay) fail(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		r.logger.Warn("phi4 request canceled", "err", err)
		return Result{Kind: KindCanceled, Err: err}
	}
	r.logger.Error("error calling phi4 endpoint", "err", err)
	return Result{Kind: KindFailure, Err: err}
}
