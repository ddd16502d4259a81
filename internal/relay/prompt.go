package relay

import (
	"zava-chat/internal/domain"
	"zava-chat/internal/integrations/azureopenai"
)

const (
	systemPrompt = "You are a helpful assistant for Zava Storefront. Help customers with product inquiries and general questions."

	maxTokens   = 800
	temperature = 0.7
)

func buildRequest(userMessage string) azureopenai.Request {
	return azureopenai.Request{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
