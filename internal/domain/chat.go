package domain

// ChatMessage is the role/content pair the completion API expects in its
// messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
