package relay

import (
	"fmt"
	"net/http"
)

// Kind classifies how a relay call ended.
type Kind string

const (
	KindReply                Kind = "reply"
	KindNoContent            Kind = "no_content"
	KindConfigurationMissing Kind = "configuration_missing"
	KindUpstreamRejected     Kind = "upstream_rejected"
	KindFailure              Kind = "failure"
	KindCanceled             Kind = "canceled"
)

const (
	ConfigurationMissingMessage = "Error: Chat service is not properly configured. Please check Phi4:Endpoint and Phi4:DeploymentName settings."
	NoResponseMessage           = "No response received."
)

// Result is the outcome of one relay call. Only KindReply carries a model
// reply; the other kinds render a fixed or error-derived sentence.
type Result struct {
	Kind       Kind
	Reply      string
	StatusCode int
	Err        error
}

// Message collapses the result to the string shown to the user.
func (r Result) Message() string {
	switch r.Kind {
	case KindReply:
		return r.Reply
	case KindNoContent:
		return NoResponseMessage
	case KindConfigurationMissing:
		return ConfigurationMissingMessage
	case KindUpstreamRejected:
		return fmt.Sprintf("Error: Unable to get response from chat service (Status: %s)", statusLabel(r.StatusCode))
	}
	if r.Err == nil {
		return "Error: unknown failure"
	}
	return "Error: " + r.Err.Error()
}

func statusLabel(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprintf("%d", code)
}
