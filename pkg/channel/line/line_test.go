package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"babybot/pkg/activity"
	"babybot/pkg/command"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/failure"
	"babybot/pkg/messaging"
	"babybot/pkg/messaging/messagingtest"
	"babybot/pkg/persistence"
	"babybot/pkg/persistence/memory"
	"babybot/pkg/storage/local"
)

const testSecret = "channel-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, handler http.Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func testAdapter(messenger messaging.Messenger) *Adapter {
	return NewAdapterWithMessenger(config.LineConfig{ChannelSecret: testSecret, CallbackPath: "/callback"}, messenger, nil)
}

func TestReplyTokenTTLFromConfig(t *testing.T) {
	adapter := NewAdapterWithMessenger(config.LineConfig{ReplyTokenTTLSeconds: 60}, messagingtest.New(), nil)
	require.Equal(t, time.Minute, adapter.ReplyTokenTTL())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	called := false
	handler := testAdapter(messagingtest.New()).Routes(func(context.Context, []event.Event) ([]dispatch.Outcome, error) {
		called = true
		return nil, nil
	})

	body := `{"destination":"U1","events":[]}`
	rec := post(t, handler, body, sign(body+"x"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if called {
		t.Fatal("handler called for unsigned body")
	}
}

func TestWebhookVerificationCall(t *testing.T) {
	handler := testAdapter(messagingtest.New()).Routes(func(context.Context, []event.Event) ([]dispatch.Outcome, error) {
		t.Fatal("handler must not run for an empty batch")
		return nil, nil
	})

	body := `{"destination":"U1","events":[]}`
	rec := post(t, handler, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "[]" {
		t.Fatalf("body = %q, want %q", got, "[]")
	}
}

func TestWebhookMalformedBodies(t *testing.T) {
	handler := testAdapter(messagingtest.New()).Routes(func(context.Context, []event.Event) ([]dispatch.Outcome, error) {
		return nil, nil
	})

	for _, body := range []string{`not json`, `{"destination":"U1"}`, `{"events":{"type":"message"}}`} {
		rec := post(t, handler, body, sign(body))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("body %q status = %d, want %d", body, rec.Code, http.StatusInternalServerError)
		}
	}
}

func TestWebhookPanicIsServerError(t *testing.T) {
	handler := testAdapter(messagingtest.New()).Routes(func(_ context.Context, events []event.Event) ([]dispatch.Outcome, error) {
		return make([]dispatch.Outcome, len(events)), failure.New(failure.Internal, "handler for event 0 panicked")
	})

	body := `{"destination":"U1","events":[{"type":"join","replyToken":"r1","source":{"type":"group","groupId":"G"}}]}`
	rec := post(t, handler, body, sign(body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", rec.Body.String())
	}
}

func TestHomepage(t *testing.T) {
	handler := testAdapter(messagingtest.New()).Routes(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body, _ := io.ReadAll(rec.Body)
	if string(body) != Homepage {
		t.Fatalf("GET / = %q, want %q", body, Homepage)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /callback status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebhookDispatchesBatch(t *testing.T) {
	recorder := messagingtest.New()
	store := memory.New()
	userID := store.AddUser(persistence.PlatformLine, "U1")
	store.Follow(userID, 5, activity.RoleManager)

	d, err := dispatch.New(dispatch.Deps{
		Messenger: messaging.Guard(recorder, messaging.NewMemoryLedger(), 0),
		Store:     store,
		Storage:   local.New(t.TempDir()),
		Platform:  persistence.PlatformLine,
	})
	require.NoError(t, err)

	body := `{"destination":"Ubot","events":[
	  {"type":"message","replyToken":"r1","timestamp":1714521600000,"source":{"type":"user","userId":"U1"},"message":{"id":"m1","type":"text","text":"MED 2.5"}},
	  {"type":"message","replyToken":"00000000000000000000000000000000","timestamp":1714521600000,"source":{"type":"user","userId":"U1"},"message":{"id":"m2","type":"text","text":"M 100"}},
	  {"type":"unfollow","source":{"type":"user","userId":"U1"}}
	]}`
	rec := post(t, testAdapter(recorder).Routes(d.HandleBatch), body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var outcomes []dispatch.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	require.Equal(t, []dispatch.Outcome{
		{Index: 0, Type: "message", Status: dispatch.StatusOK},
		{Index: 1, Type: "message", Status: dispatch.StatusIgnored},
		{Index: 2, Type: "unfollow", Status: dispatch.StatusError, Error: string(failure.UnknownEventType)},
	}, outcomes)

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, command.Medicine, records[0].Category)
	require.Equal(t, [][]string{{"Saved medicine: 2.5 cc."}}, recorder.RepliesFor("r1"))
}
