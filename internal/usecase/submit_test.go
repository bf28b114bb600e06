package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"bug-report-proxy/internal/domain"
	"bug-report-proxy/internal/integrations/openrouter"
)

type mockKeySource struct {
	key string
	err error
}

func (m *mockKeySource) APIKey(_ context.Context) (string, error) {
	return m.key, m.err
}

type mockClient struct {
	raw json.RawMessage
	err error

	calls      int
	gotKey     string
	gotPayload domain.CompletionRequest
}

func (m *mockClient) Complete(_ context.Context, apiKey string, payload domain.CompletionRequest) (json.RawMessage, error) {
	m.calls++
	m.gotKey = apiKey
	m.gotPayload = payload
	return m.raw, m.err
}

func newService(t *testing.T, keys KeySource, llm CompletionClient) *SubmitService {
	t.Helper()
	s, err := NewSubmitService(keys, llm)
	require.NoError(t, err)
	return s
}

func userMessage(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: "user", Content: json.RawMessage(content)}
}

// ---------------------------------------------------------------------------
// NewSubmitService
// ---------------------------------------------------------------------------

func TestNewSubmitService_ValidatesDependencies(t *testing.T) {
	_, err := NewSubmitService(nil, &mockClient{})
	require.Error(t, err)

	_, err = NewSubmitService(&mockKeySource{}, nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Submit — validation and ordering
// ---------------------------------------------------------------------------

func TestSubmit_MissingAPIKey(t *testing.T) {
	llm := &mockClient{}
	s := newService(t, &mockKeySource{key: ""}, llm)

	_, err := s.Submit(context.Background(), SubmitInput{Messages: []domain.ChatMessage{userMessage(`"hi"`)}})
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrorConfiguration, uerr.Code)
	require.Equal(t, "API key not configured. Please set OPENROUTER_API_KEY environment variable.", uerr.Message)
	require.Zero(t, llm.calls)
}

func TestSubmit_KeySourceFailure(t *testing.T) {
	s := newService(t, &mockKeySource{err: errors.New("ssm unavailable")}, &mockClient{})

	_, err := s.Submit(context.Background(), SubmitInput{Messages: []domain.ChatMessage{userMessage(`"hi"`)}})
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrorConfiguration, uerr.Code)
	require.ErrorContains(t, uerr.Err, "ssm unavailable")
}

// The credential is checked before the message list, so a deployment fault is
// reported even for requests that would fail validation.
func TestSubmit_MissingAPIKeyWinsOverEmptyMessages(t *testing.T) {
	s := newService(t, &mockKeySource{key: ""}, &mockClient{})

	_, err := s.Submit(context.Background(), SubmitInput{})
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrorConfiguration, uerr.Code)
}

func TestSubmit_EmptyMessages(t *testing.T) {
	llm := &mockClient{}
	s := newService(t, &mockKeySource{key: "sk-test"}, llm)

	for _, messages := range [][]domain.ChatMessage{nil, {}} {
		_, err := s.Submit(context.Background(), SubmitInput{Messages: messages})
		var uerr *Error
		require.ErrorAs(t, err, &uerr)
		require.Equal(t, ErrorInvalidRequest, uerr.Code)
		require.Equal(t, "No messages provided in request", uerr.Message)
	}
	require.Zero(t, llm.calls)
}

// ---------------------------------------------------------------------------
// Submit — payload assembly
// ---------------------------------------------------------------------------

func TestSubmit_PrependsSystemPromptAndPreservesOrder(t *testing.T) {
	llm := &mockClient{raw: json.RawMessage(`{"choices":[]}`)}
	s := newService(t, &mockKeySource{key: "sk-test"}, llm)

	in := SubmitInput{Messages: []domain.ChatMessage{
		{Role: "user", Content: json.RawMessage(`"first"`)},
		{Role: "assistant", Content: json.RawMessage(`"second"`)},
		{Role: "tool", Content: json.RawMessage(`"third"`)},
	}}
	raw, err := s.Submit(context.Background(), in)
	require.NoError(t, err)
	require.JSONEq(t, `{"choices":[]}`, string(raw))
	require.Equal(t, "sk-test", llm.gotKey)

	msgs := llm.gotPayload.Messages
	require.Len(t, msgs, 4)
	require.Equal(t, "system", msgs[0].Role)

	var promptContent string
	require.NoError(t, json.Unmarshal(msgs[0].Content, &promptContent))
	require.Equal(t, systemPrompt, promptContent)

	require.Equal(t, "user", msgs[1].Role)
	require.Equal(t, "assistant", msgs[2].Role)
	require.Equal(t, "tool", msgs[3].Role)
	require.JSONEq(t, `[{"type":"text","text":"second"}]`, string(msgs[2].Content))
}

func TestSubmit_FixedParameters(t *testing.T) {
	llm := &mockClient{raw: json.RawMessage(`{}`)}
	s := newService(t, &mockKeySource{key: "sk-test"}, llm)

	_, err := s.Submit(context.Background(), SubmitInput{Messages: []domain.ChatMessage{userMessage(`"hi"`)}})
	require.NoError(t, err)
	require.Equal(t, modelID, llm.gotPayload.Model)
	require.Equal(t, maxTokens, llm.gotPayload.MaxTokens)
	require.Equal(t, temperature, llm.gotPayload.Temperature)
}

func TestSubmit_RelaysUpstreamBodyVerbatim(t *testing.T) {
	body := `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Summary:"}}]}`
	llm := &mockClient{raw: json.RawMessage(body)}
	s := newService(t, &mockKeySource{key: "sk-test"}, llm)

	raw, err := s.Submit(context.Background(), SubmitInput{Messages: []domain.ChatMessage{
		userMessage(`"table values are not saving"`),
	}})
	require.NoError(t, err)
	require.Equal(t, body, string(raw))
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

func TestNormalizeMessage_DefaultsRoleToUser(t *testing.T) {
	out := normalizeMessage(domain.ChatMessage{Content: json.RawMessage(`"hi"`)})
	require.Equal(t, "user", out.Role)

	out = normalizeMessage(domain.ChatMessage{Role: "assistant", Content: json.RawMessage(`"hi"`)})
	require.Equal(t, "assistant", out.Role)
}

func TestNormalizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "string wrapped as text part", in: `"broken layout"`, want: `[{"type":"text","text":"broken layout"}]`},
		{name: "array passes through", in: `[{"type":"text","text":"hi"},{"type":"image_url","image_url":{"url":"http://x"}}]`, want: `[{"type":"text","text":"hi"},{"type":"image_url","image_url":{"url":"http://x"}}]`},
		{name: "absent content becomes empty array", in: ``, want: `[]`},
		{name: "number stringified", in: `42`, want: `[{"type":"text","text":"42"}]`},
		{name: "object stringified compact", in: `{"a": 1}`, want: `[{"type":"text","text":"{\"a\":1}"}]`},
		{name: "null stringified", in: `null`, want: `[{"type":"text","text":"null"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeContent(json.RawMessage(tc.in))
			require.Equal(t, tc.want, string(got))
		})
	}
}

// Already-normalized input is a fixed point.
func TestNormalizeContent_Idempotent(t *testing.T) {
	once := normalizeContent(json.RawMessage(`"hello"`))
	twice := normalizeContent(once)
	require.Equal(t, string(once), string(twice))
}

// ---------------------------------------------------------------------------
// Upstream error mapping
// ---------------------------------------------------------------------------

func TestSubmit_MapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    ErrorCode
		status  int
		message string
	}{
		{
			name:    "non-200 status relayed",
			err:     &openrouter.StatusError{StatusCode: http.StatusUnauthorized, Detail: "Invalid API key"},
			code:    ErrorUpstream,
			status:  http.StatusUnauthorized,
			message: "AI service error: Invalid API key",
		},
		{
			name:    "timeout",
			err:     &openrouter.TimeoutError{Err: context.DeadlineExceeded},
			code:    ErrorUpstreamTimeout,
			message: "Request to AI service timed out",
		},
		{
			name:    "transport failure",
			err:     &openrouter.TransportError{Err: errors.New("dial tcp: connection refused")},
			code:    ErrorUpstreamUnreachable,
			message: "Failed to connect to AI service: dial tcp: connection refused",
		},
		{
			name:    "unparseable 200 body",
			err:     &openrouter.ProtocolError{},
			code:    ErrorUpstreamProtocol,
			message: "Invalid response from AI service",
		},
		{
			name:    "unexpected failure",
			err:     errors.New("boom"),
			code:    ErrorInternal,
			message: "Internal server error: boom",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &mockClient{err: tc.err}
			s := newService(t, &mockKeySource{key: "sk-test"}, llm)

			_, err := s.Submit(context.Background(), SubmitInput{Messages: []domain.ChatMessage{userMessage(`"hi"`)}})
			var uerr *Error
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, tc.code, uerr.Code)
			require.Equal(t, tc.message, uerr.Message)
			if tc.status != 0 {
				require.Equal(t, tc.status, uerr.Status)
			}
		})
	}
}
