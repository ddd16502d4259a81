package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CognitiveServicesAudience is the token scope accepted by Azure AI services.
const CognitiveServicesAudience = "https://cognitiveservices.azure.com/.default"

// TokenProvider hands out bearer tokens for an audience. Implementations own
// any caching; callers request a token per call and discard it afterwards.
type TokenProvider interface {
	Token(ctx context.Context, audience string) (string, error)
}

// AzureProvider acquires tokens from an azcore.TokenCredential, normally the
// ambient managed or workload identity.
type AzureProvider struct {
	cred azcore.TokenCredential
}

func NewAzureProvider(cred azcore.TokenCredential) (*AzureProvider, error) {
	if cred == nil {
		return nil, errors.New("identity: credential must not be nil")
	}
	return &AzureProvider{cred: cred}, nil
}

// NewDefaultAzureProvider uses azidentity's DefaultAzureCredential chain
// (environment, workload identity, managed identity, Azure CLI).
func NewDefaultAzureProvider() (*AzureProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("identity: create default credential: %w", err)
	}
	return NewAzureProvider(cred)
}

func (p *AzureProvider) Token(ctx context.Context, audience string) (string, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{audience}})
	if err != nil {
		return "", fmt.Errorf("identity: acquire token for %s: %w", audience, err)
	}
	if tok.Token == "" {
		return "", errors.New("identity: credential returned an empty token")
	}
	return tok.Token, nil
}

// StaticProvider returns the same token for every audience. It exists for
// local development against endpoints that accept a pre-issued token.
type StaticProvider struct {
	token string
}

func NewStaticProvider(token string) (*StaticProvider, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("identity: static token must not be empty")
	}
	return &StaticProvider{token: token}, nil
}

func (p *StaticProvider) Token(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.token, nil
}
