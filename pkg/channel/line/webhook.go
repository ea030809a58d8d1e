package line

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"babybot/pkg/channel"
	"babybot/pkg/event"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Line-Signature"

const maxBodyBytes = 1 << 20

// Response is the HTTP answer for one webhook call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Webhook validates, decodes and dispatches LINE callback bodies. It is shared
// by the HTTP server and the serverless entry point.
type Webhook struct {
	secret string
	handle channel.Handler
	log    *slog.Logger
}

// NewWebhook returns a Webhook verifying signatures with secret.
func NewWebhook(secret string, handle channel.Handler, log *slog.Logger) *Webhook {
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		secret: secret,
		handle: handle,
		log:    log.With("component", "channel.line.webhook"),
	}
}

// Process handles one callback body. A body without events is the platform's
// verification call and gets an empty array back.
func (w *Webhook) Process(ctx context.Context, signature string, body []byte) Response {
	if !webhook.ValidateSignature(w.secret, signature, body) {
		w.log.Warn("Rejected callback with invalid signature")
		return Response{StatusCode: http.StatusUnauthorized, Body: []byte("invalid signature")}
	}

	payload, err := event.Decode(body)
	if err != nil {
		w.log.Error("Failed to decode callback body", "error", err)
		return Response{StatusCode: http.StatusInternalServerError}
	}

	if len(payload.Events) == 0 {
		w.log.Info("Received verification callback", "destination", payload.Destination)
		return Response{StatusCode: http.StatusOK, Body: []byte("[]")}
	}

	outcomes, err := w.handle(ctx, payload.Events)
	if err != nil {
		w.log.Error("Callback batch failed", "events", len(payload.Events), "error", err)
		return Response{StatusCode: http.StatusInternalServerError}
	}

	encoded, err := json.Marshal(outcomes)
	if err != nil {
		w.log.Error("Failed to encode outcomes", "error", err)
		return Response{StatusCode: http.StatusInternalServerError}
	}

	return Response{StatusCode: http.StatusOK, Body: encoded}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "read body", http.StatusBadRequest)
		return
	}

	resp := w.Process(r.Context(), r.Header.Get(SignatureHeader), body)
	if resp.StatusCode == http.StatusOK {
		rw.Header().Set("Content-Type", "application/json")
	}
	rw.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = rw.Write(resp.Body)
	}
}
