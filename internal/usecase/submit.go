package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"bug-report-proxy/internal/domain"
	"bug-report-proxy/internal/integrations/openrouter"
)

const (
	msgAPIKeyMissing      = "API key not configured. Please set OPENROUTER_API_KEY environment variable."
	msgNoMessages         = "No messages provided in request"
	msgUpstreamTimeout    = "Request to AI service timed out"
	msgUpstreamProtocol   = "Invalid response from AI service"
	msgUpstreamPrefix     = "AI service error: "
	msgUnreachablePrefix  = "Failed to connect to AI service: "
	msgInternalPrefix     = "Internal server error: "
	defaultFallbackStatus = 502
)

// KeySource resolves the upstream bearer credential. It is consulted on every
// request so a redeployed secret takes effect without a restart.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// CompletionClient forwards one assembled completion request upstream and
// returns the response body verbatim.
type CompletionClient interface {
	Complete(ctx context.Context, apiKey string, payload domain.CompletionRequest) (json.RawMessage, error)
}

// SubmitService turns one inbound conversation into one upstream completion
// call. It holds no per-request state.
type SubmitService struct {
	keys KeySource
	llm  CompletionClient
}

type SubmitInput struct {
	Messages []domain.ChatMessage
}

func NewSubmitService(keys KeySource, llm CompletionClient) (*SubmitService, error) {
	if keys == nil {
		return nil, errors.New("usecase: key source must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	return &SubmitService{keys: keys, llm: llm}, nil
}

// Submit validates and normalizes the conversation, prepends the fixed system
// turn, and relays the upstream response. The credential check runs before
// message validation so a deployment fault is reported even for bodies that
// would not validate.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (json.RawMessage, error) {
	apiKey, err := s.keys.APIKey(ctx)
	if err != nil {
		return nil, newError(ErrorConfiguration, msgAPIKeyMissing, err)
	}
	if apiKey == "" {
		return nil, newError(ErrorConfiguration, msgAPIKeyMissing, nil)
	}

	if len(in.Messages) == 0 {
		return nil, newError(ErrorInvalidRequest, msgNoMessages, nil)
	}

	outbound := make([]domain.OutboundMessage, 0, len(in.Messages)+1)
	outbound = append(outbound, systemMessage())
	for _, m := range in.Messages {
		outbound = append(outbound, normalizeMessage(m))
	}

	raw, err := s.llm.Complete(ctx, apiKey, buildCompletionRequest(outbound))
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return raw, nil
}

func normalizeMessage(m domain.ChatMessage) domain.OutboundMessage {
	role := m.Role
	if role == "" {
		role = "user"
	}
	return domain.OutboundMessage{Role: role, Content: normalizeContent(m.Content)}
}

// normalizeContent guarantees the outbound content is a JSON array: caller
// arrays pass through byte-for-byte, absent content becomes the empty array,
// and everything else is wrapped as a single text part.
func normalizeContent(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`[]`)
	}
	if trimmed[0] == '[' {
		return raw
	}
	part, err := json.Marshal([]domain.ContentPart{{Type: "text", Text: stringifyContent(trimmed)}})
	if err != nil {
		return json.RawMessage(`[]`)
	}
	return part
}

// stringifyContent renders a non-array content value as text: JSON strings
// keep their value, anything else keeps its compact JSON encoding.
func stringifyContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func mapUpstreamError(err error) *Error {
	var statusErr *openrouter.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.StatusCode
		if status <= 0 {
			status = defaultFallbackStatus
		}
		return &Error{
			Code:    ErrorUpstream,
			Message: msgUpstreamPrefix + statusErr.Detail,
			Status:  status,
			Err:     err,
		}
	}
	var timeoutErr *openrouter.TimeoutError
	if errors.As(err, &timeoutErr) {
		return newError(ErrorUpstreamTimeout, msgUpstreamTimeout, err)
	}
	var transportErr *openrouter.TransportError
	if errors.As(err, &transportErr) {
		return newError(ErrorUpstreamUnreachable, msgUnreachablePrefix+transportErr.Err.Error(), err)
	}
	var protocolErr *openrouter.ProtocolError
	if errors.As(err, &protocolErr) {
		return newError(ErrorUpstreamProtocol, msgUpstreamProtocol, err)
	}
	return newError(ErrorInternal, msgInternalPrefix+err.Error(), err)
}
