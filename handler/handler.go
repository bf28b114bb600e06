package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"bug-report-proxy/internal/domain"
	"bug-report-proxy/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Service is the usecase surface the handler depends on.
type Service interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (json.RawMessage, error)
}

// Handler translates API Gateway events into usecase calls and maps every
// failure to a JSON error envelope. It never returns a non-nil error to the
// Lambda runtime.
type Handler struct {
	service Service
}

type conversationRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(service Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	return &Handler{service: service}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, _ error) {
	correlationID := resolveCorrelationID(event.Headers)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling request", "correlation_id", correlationID, "panic", r)
			resp = errorEnvelope(correlationID, http.StatusInternalServerError, fmt.Sprintf("Internal server error: %v", r))
		}
	}()

	switch event.HTTPMethod {
	case http.MethodOptions:
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    responseHeaders(correlationID),
		}, nil
	case http.MethodPost:
		return h.handleSubmit(ctx, correlationID, event.Body), nil
	default:
		return errorEnvelope(correlationID, http.StatusMethodNotAllowed, "Method not allowed"), nil
	}
}

func (h *Handler) handleSubmit(ctx context.Context, correlationID, body string) events.APIGatewayProxyResponse {
	var req conversationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return errorEnvelope(correlationID, http.StatusBadRequest, "Invalid JSON in request body")
	}

	raw, err := h.service.Submit(ctx, usecase.SubmitInput{Messages: req.Messages})
	if err != nil {
		status, message := mapError(err)
		slog.Error("submit failed",
			"correlation_id", correlationID,
			"status", status,
			"err", err,
		)
		return errorEnvelope(correlationID, status, message)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    responseHeaders(correlationID),
		Body:       string(raw),
	}
}

// mapError converts a usecase failure into the HTTP status and caller-visible
// message for the error envelope. Upstream errors relay the upstream's own
// status code.
func mapError(err error) (int, string) {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		return http.StatusInternalServerError, "Internal server error: " + err.Error()
	}
	switch uerr.Code {
	case usecase.ErrorInvalidRequest:
		return http.StatusBadRequest, uerr.Message
	case usecase.ErrorConfiguration:
		return http.StatusInternalServerError, uerr.Message
	case usecase.ErrorUpstreamTimeout:
		return http.StatusGatewayTimeout, uerr.Message
	case usecase.ErrorUpstreamUnreachable, usecase.ErrorUpstreamProtocol:
		return http.StatusBadGateway, uerr.Message
	case usecase.ErrorUpstream:
		status := uerr.Status
		if status <= 0 {
			status = http.StatusBadGateway
		}
		return status, uerr.Message
	default:
		return http.StatusInternalServerError, uerr.Message
	}
}

func errorEnvelope(correlationID string, status int, message string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(errorResponse{Error: message})
	if err != nil {
		body = []byte(`{"error":"Internal server error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(correlationID),
		Body:       string(body),
	}
}

func responseHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"Content-Type":                 "application/json",
		correlationHeader:              correlationID,
	}
}

func resolveCorrelationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
