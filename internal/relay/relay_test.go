package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zava-chat/internal/config"
	"zava-chat/internal/integrations/azureopenai"
	"zava-chat/internal/integrations/identity"
)

type fakeTokens struct {
	token     string
	err       error
	audiences []string
}

func (f *fakeTokens) Token(_ context.Context, audience string) (string, error) {
	f.audiences = append(f.audiences, audience)
	return f.token, f.err
}

type fakeCompleter struct {
	content   string
	err       error
	panicWith any
	callCount int
	url       string
	token     string
	req       azureopenai.Request
}

func (f *fakeCompleter) Complete(_ context.Context, url, token string, in azureopenai.Request) (string, error) {
	f.callCount++
	f.url, f.token, f.req = url, token, in
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.content, f.err
}

func settings() config.Phi4 {
	return config.Phi4{Endpoint: "https://zava.openai.azure.com/", DeploymentName: "phi-4"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRelay(t *testing.T, s config.Phi4, tokens identity.TokenProvider, c Completer) *Relay {
	t.Helper()
	r, err := New(s, tokens, c, discardLogger())
	require.NoError(t, err)
	return r
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(settings(), nil, &fakeCompleter{}, nil)
	require.Error(t, err)

	_, err = New(settings(), &fakeTokens{}, nil, nil)
	require.Error(t, err)

	r, err := New(settings(), &fakeTokens{}, &fakeCompleter{}, nil)
	require.NoError(t, err)
	require.NotNil(t, r.logger)
}

func TestSend_HappyPath(t *testing.T) {
	tokens := &fakeTokens{token: "tok-1"}
	completer := &fakeCompleter{content: "Hello!"}
	r := newTestRelay(t, settings(), tokens, completer)

	res := r.Send(context.Background(), "Hi there")
	require.Equal(t, KindReply, res.Kind)
	require.Equal(t, "Hello!", res.Message())
	require.Equal(t, "Hello!", r.Reply(context.Background(), "Hi there"))

	require.Equal(t, []string{"https://cognitiveservices.azure.com/.default", "https://cognitiveservices.azure.com/.default"}, tokens.audiences)
	require.Equal(t, "https://zava.openai.azure.com/openai/deployments/phi-4/chat/completions?api-version=2024-08-01-preview", completer.url)
	require.Equal(t, "tok-1", completer.token)
}

func TestSend_BuildsTwoMessageRequest(t *testing.T) {
	completer := &fakeCompleter{content: "ok"}
	r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, completer)

	_ = r.Send(context.Background(), "Do you sell lamps?")
	require.Len(t, completer.req.Messages, 2)
	require.Equal(t, "system", completer.req.Messages[0].Role)
	require.NotEmpty(t, completer.req.Messages[0].Content)
	require.Equal(t, "user", completer.req.Messages[1].Role)
	require.Equal(t, "Do you sell lamps?", completer.req.Messages[1].Content)
	require.Equal(t, 800, completer.req.MaxTokens)
	require.Equal(t, 0.7, completer.req.Temperature)
}

func TestSend_ConfigurationMissing(t *testing.T) {
	cases := map[string]config.Phi4{
		"both empty":        {},
		"endpoint empty":    {DeploymentName: "phi-4"},
		"deployment empty":  {Endpoint: "https://zava.openai.azure.com"},
		"whitespace only":   {Endpoint: "  ", DeploymentName: "\t"},
		"deployment spaces": {Endpoint: "https://zava.openai.azure.com", DeploymentName: " "},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			tokens := &fakeTokens{token: "tok"}
			completer := &fakeCompleter{content: "should not be used"}
			r := newTestRelay(t, s, tokens, completer)

			res := r.Send(context.Background(), "Hi")
			require.Equal(t, KindConfigurationMissing, res.Kind)
			require.Equal(t, ConfigurationMissingMessage, res.Message())
			require.Contains(t, res.Message(), "Phi4:Endpoint")
			require.Contains(t, res.Message(), "Phi4:DeploymentName")
			require.Zero(t, completer.callCount)
			require.Empty(t, tokens.audiences)
		})
	}
}

func TestSend_UpstreamRejected(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError, 599} {
		completer := &fakeCompleter{err: fmt.Errorf("azureopenai: request failed: %w", &azureopenai.HTTPStatusError{StatusCode: status, Body: `{"error":"x"}`})}
		r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, completer)

		res := r.Send(context.Background(), "Hi")
		require.Equal(t, KindUpstreamRejected, res.Kind)
		require.Equal(t, status, res.StatusCode)
		require.True(t, strings.HasPrefix(res.Message(), "Error: Unable to get response from chat service"))
		require.Contains(t, res.Message(), fmt.Sprintf("%d", status))
	}
}

func TestSend_UpstreamRejected_LogsStatusAndBody(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	completer := &fakeCompleter{err: &azureopenai.HTTPStatusError{StatusCode: 503, Body: "overloaded"}}
	r, err := New(settings(), &fakeTokens{token: "tok"}, completer, logger)
	require.NoError(t, err)

	res := r.Send(context.Background(), "Hi")
	require.Equal(t, "Error: Unable to get response from chat service (Status: 503 Service Unavailable)", res.Message())

	var entry map[string]any
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	require.Equal(t, "ERROR", entry["level"])
	require.Equal(t, float64(503), entry["status"])
	require.Equal(t, "overloaded", entry["body"])
}

func TestSend_NoContent(t *testing.T) {
	r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, &fakeCompleter{err: azureopenai.ErrNoContent})

	res := r.Send(context.Background(), "Hi")
	require.Equal(t, KindNoContent, res.Kind)
	require.Equal(t, "No response received.", res.Message())
}

func TestSend_CredentialFailure(t *testing.T) {
	completer := &fakeCompleter{content: "unused"}
	r := newTestRelay(t, settings(), &fakeTokens{err: errors.New("managed identity endpoint unreachable")}, completer)

	res := r.Send(context.Background(), "Hi")
	require.Equal(t, KindFailure, res.Kind)
	require.True(t, strings.HasPrefix(res.Message(), "Error: "))
	require.Contains(t, res.Message(), "managed identity endpoint unreachable")
	require.Zero(t, completer.callCount)
}

func TestSend_TransportFailure(t *testing.T) {
	r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, &fakeCompleter{err: errors.New("connection reset by peer")})

	res := r.Send(context.Background(), "Hi")
	require.Equal(t, KindFailure, res.Kind)
	require.Equal(t, "Error: connection reset by peer", res.Message())
}

func TestSend_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, &fakeCompleter{err: context.Canceled})

	res := r.Send(ctx, "Hi")
	require.Equal(t, KindCanceled, res.Kind)
	require.True(t, strings.HasPrefix(res.Message(), "Error: "))
}

func TestSend_PanicIsContained(t *testing.T) {
	r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, &fakeCompleter{panicWith: "nil map"})

	var res Result
	require.NotPanics(t, func() { res = r.Send(context.Background(), "Hi") })
	require.Equal(t, KindFailure, res.Kind)
	require.Contains(t, res.Message(), "nil map")
}

func TestReply_IsTotal(t *testing.T) {
	completers := []*fakeCompleter{
		{content: "fine"},
		{err: azureopenai.ErrNoContent},
		{err: &azureopenai.HTTPStatusError{StatusCode: 500}},
		{err: errors.New("boom")},
		{panicWith: errors.New("kaboom")},
	}
	for _, msg := range []string{"Hi", "  padded  ", strings.Repeat("x", 10000), "emoji 🙂"} {
		for _, c := range completers {
			r := newTestRelay(t, settings(), &fakeTokens{token: "tok"}, c)
			require.NotPanics(t, func() { _ = r.Reply(context.Background(), msg) })
			require.NotEmpty(t, r.Reply(context.Background(), msg))
		}
	}
}

func TestResult_Message_UnknownFailure(t *testing.T) {
	require.Equal(t, "Error: unknown failure", Result{Kind: KindFailure}.Message())
}

// ---------------------------------------------------------------------------
// End to end against an httptest completion endpoint
// ---------------------------------------------------------------------------

func newEndToEndRelay(t *testing.T, handler http.HandlerFunc) *Relay {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := azureopenai.NewClient(azureopenai.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	return newTestRelay(t, config.Phi4{Endpoint: srv.URL + "/", DeploymentName: "phi-4"}, &fakeTokens{token: "tok-e2e"}, client)
}

func TestEndToEnd_Reply(t *testing.T) {
	r := newEndToEndRelay(t, func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/openai/deployments/phi-4/chat/completions", req.URL.Path)
		require.Equal(t, "Bearer tok-e2e", req.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello!"}}]}`))
	})
	require.Equal(t, "Hello!", r.Reply(context.Background(), "Hi"))
}

func TestEndToEnd_NullContent(t *testing.T) {
	r := newEndToEndRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
	})
	require.Equal(t, "No response received.", r.Reply(context.Background(), "Hi"))
}

func TestEndToEnd_EmptyChoices(t *testing.T) {
	r := newEndToEndRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	require.Equal(t, "No response received.", r.Reply(context.Background(), "Hi"))
}

func TestEndToEnd_Status(t *testing.T) {
	r := newEndToEndRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	require.Contains(t, r.Reply(context.Background(), "Hi"), "429")
}

func TestEndToEnd_MalformedJSON(t *testing.T) {
	r := newEndToEndRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":`))
	})
	res := r.Send(context.Background(), "Hi")
	require.Equal(t, KindFailure, res.Kind)
	require.True(t, strings.HasPrefix(res.Message(), "Error: "))
	require.Contains(t, res.Message(), "decode response")
}
