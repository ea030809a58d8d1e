// Package serverless exposes the LINE webhook as an AWS Lambda function URL
// handler.
package serverless

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"babybot/pkg/channel/line"
)

// WebhookHandler adapts function URL requests to a line.Webhook.
type WebhookHandler struct {
	hook *line.Webhook
	log  *slog.Logger
}

// NewWebhookHandler wraps hook.
func NewWebhookHandler(hook *line.Webhook, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{hook: hook, log: log.With("component", "serverless.webhook")}
}

// Handle answers GET with the homepage and POST with the webhook result.
func (h *WebhookHandler) Handle(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case http.MethodGet:
		return events.LambdaFunctionURLResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
			Body:       line.Homepage,
		}, nil
	case http.MethodPost:
	default:
		return events.LambdaFunctionURLResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			h.log.Warn("Failed to decode base64 body", "error", err)
			return events.LambdaFunctionURLResponse{StatusCode: http.StatusBadRequest}, nil
		}
		body = decoded
	}

	resp := h.hook.Process(ctx, header(req.Headers, line.SignatureHeader), body)

	out := events.LambdaFunctionURLResponse{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	if resp.StatusCode == http.StatusOK {
		out.Headers = map[string]string{"Content-Type": "application/json"}
	}
	return out, nil
}

// header finds name in headers regardless of case; function URLs lower-case
// header names.
func header(headers map[string]string, name string) string {
	if value, ok := headers[strings.ToLower(name)]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
