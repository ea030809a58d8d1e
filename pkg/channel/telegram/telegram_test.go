package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/failure"
	"babybot/pkg/messaging"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []*telego.SendMessageParams
	left     []telego.ChatID
	chat     telego.ChatFullInfo
	filePath string
	baseURL  string
}

func (b *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, params)
	return &telego.Message{}, nil
}

func (b *fakeBot) GetChat(context.Context, *telego.GetChatParams) (*telego.ChatFullInfo, error) {
	return &b.chat, nil
}

func (b *fakeBot) GetFile(_ context.Context, params *telego.GetFileParams) (*telego.File, error) {
	return &telego.File{FileID: params.FileID, FilePath: b.filePath}, nil
}

func (b *fakeBot) FileDownloadURL(filepath string) string {
	return b.baseURL + "/" + filepath
}

func (b *fakeBot) LeaveChat(_ context.Context, params *telego.LeaveChatParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left = append(b.left, params.ChatID)
	return nil
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestReplyTokenRoundTrip(t *testing.T) {
	token := replyToken(-100123, 42)
	if token != "tg:-100123:42" {
		t.Fatalf("replyToken = %q, want %q", token, "tg:-100123:42")
	}

	chatID, err := chatFromToken(token)
	if err != nil || chatID != -100123 {
		t.Fatalf("chatFromToken = (%d, %v), want (-100123, nil)", chatID, err)
	}

	if _, err := chatFromToken("nHuyWiB7yP5Zw52FIkcQobQuGDXCTA"); err == nil {
		t.Fatal("expected error for foreign token")
	}
}

func TestToEventText(t *testing.T) {
	m := newMessenger(&fakeBot{}, nil)
	msg := telego.Message{
		MessageID: 7,
		Date:      1714521600,
		Chat:      telego.Chat{ID: 99, Type: "private"},
		From:      &telego.User{ID: 99},
		Text:      "M 160",
	}

	ev, ok := toEvent(msg, 1, m)
	if !ok {
		t.Fatal("toEvent rejected a text message")
	}
	if ev.Type != event.TypeMessage || ev.Message.Type != event.MessageText {
		t.Fatalf("event = %+v, want text message", ev)
	}
	if ev.Source.Type != event.SourceUser || ev.Source.UserID != "99" {
		t.Fatalf("source = %+v, want user 99", ev.Source)
	}
	if ev.ReplyToken != "tg:99:7" {
		t.Fatalf("reply token = %q, want %q", ev.ReplyToken, "tg:99:7")
	}
	if ev.Timestamp.Unix() != 1714521600 {
		t.Fatalf("timestamp = %v, want unix 1714521600", ev.Timestamp)
	}
}

func TestToEventMembershipAndMedia(t *testing.T) {
	m := newMessenger(&fakeBot{}, nil)
	group := telego.Chat{ID: -5, Type: "supergroup"}

	join, ok := toEvent(telego.Message{MessageID: 1, Chat: group, NewChatMembers: []telego.User{{ID: 77}}}, 77, m)
	if !ok || join.Type != event.TypeJoin || join.Source.Type != event.SourceGroup || join.Source.GroupID != "-5" {
		t.Fatalf("join = %+v, %v", join, ok)
	}

	leave, ok := toEvent(telego.Message{MessageID: 2, Chat: group, LeftChatMember: &telego.User{ID: 77}}, 77, m)
	if !ok || leave.Type != event.TypeLeave || leave.ReplyToken != "" {
		t.Fatalf("leave = %+v, %v", leave, ok)
	}

	photo, ok := toEvent(telego.Message{
		MessageID: 3,
		Chat:      group,
		From:      &telego.User{ID: 8},
		Photo:     []telego.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}, 77, m)
	if !ok || photo.Message.Type != event.MessageImage || photo.Message.ID != "-5-3" {
		t.Fatalf("photo = %+v, %v", photo, ok)
	}
	if ref := m.files["-5-3"]; ref.fileID != "large" {
		t.Fatalf("remembered file = %q, want %q", ref.fileID, "large")
	}

	if _, ok := toEvent(telego.Message{MessageID: 4, Chat: group, Sticker: &telego.Sticker{FileID: "s"}}, 77, m); ok {
		t.Fatal("sticker should not map to an event")
	}
}

func TestMessengerReplyAndLeave(t *testing.T) {
	bot := &fakeBot{}
	m := newMessenger(bot, nil)

	err := m.Reply(context.Background(), messaging.Reply{Token: "tg:42:1", Texts: []string{"Leaving group", "bye"}})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if len(bot.sent) != 2 || bot.sent[0].Text != "Leaving group" || bot.sent[0].ChatID.ID != 42 {
		t.Fatalf("sent = %+v, want two messages to chat 42", bot.sent)
	}

	if err := m.Reply(context.Background(), messaging.Reply{Token: "bogus", Texts: []string{"x"}}); !failure.Is(err, failure.ReplyTokenExpired) {
		t.Fatalf("Reply with bogus token kind = %q, want %q", failure.KindOf(err), failure.ReplyTokenExpired)
	}

	if err := m.LeaveGroup(context.Background(), "-5"); err != nil {
		t.Fatalf("LeaveGroup error: %v", err)
	}
	if len(bot.left) != 1 || bot.left[0].ID != -5 {
		t.Fatalf("left = %+v, want chat -5", bot.left)
	}
}

func TestMessengerProfile(t *testing.T) {
	bot := &fakeBot{chat: telego.ChatFullInfo{FirstName: "Mika", LastName: "Sato", Bio: "sleepy"}}
	m := newMessenger(bot, nil)

	profile, err := m.Profile(context.Background(), "12")
	if err != nil {
		t.Fatalf("Profile error: %v", err)
	}
	if profile.DisplayName != "Mika Sato" || profile.StatusMessage != "sleepy" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestMessengerContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos/file_1.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	bot := &fakeBot{filePath: "photos/file_1.jpg", baseURL: server.URL}
	m := newMessenger(bot, server.Client())
	m.remember("-5-3", fileRef{fileID: "large", mimeType: "image/jpeg"})

	content, err := m.Content(context.Background(), "-5-3")
	if err != nil {
		t.Fatalf("Content error: %v", err)
	}
	defer content.Body.Close()

	body, _ := io.ReadAll(content.Body)
	if string(body) != "jpeg-bytes" || content.ContentType != "image/jpeg" {
		t.Fatalf("content = %q (%s), want jpeg-bytes (image/jpeg)", body, content.ContentType)
	}

	if _, err := m.Content(context.Background(), "-5-3"); err == nil {
		t.Fatal("expected error when fetching the same content twice")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}

func TestReplyTokensNeverExpire(t *testing.T) {
	adapter := &Adapter{}
	if got := adapter.ReplyTokenTTL(); got != 0 {
		t.Fatalf("ReplyTokenTTL() = %s, want 0", got)
	}
}

func TestPreviewTextKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("ミルク", messagePreviewLimit)
	got := previewText(long)

	if !utf8.ValidString(got) {
		t.Fatalf("previewText = %q, want valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n != messagePreviewLimit+3 {
		t.Fatalf("previewText rune count = %d, want %d", n, messagePreviewLimit+3)
	}
}

func TestHandleOnceForgetsUnfetchedFiles(t *testing.T) {
	m := newMessenger(&fakeBot{}, nil)
	ev, ok := toEvent(telego.Message{
		MessageID: 9,
		Chat:      telego.Chat{ID: 5, Type: "private"},
		From:      &telego.User{ID: 5},
		Photo:     []telego.PhotoSize{{FileID: "large"}},
	}, 77, m)
	if !ok {
		t.Fatal("photo should map to an event")
	}

	handler := func(context.Context, []event.Event) ([]dispatch.Outcome, error) {
		return []dispatch.Outcome{{Status: dispatch.StatusError, Error: "permission_denied"}}, nil
	}
	if _, err := handleOnce(context.Background(), handler, m, ev); err != nil {
		t.Fatalf("handleOnce error: %v", err)
	}

	m.mu.Lock()
	n := len(m.files)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("remembered files = %d, want 0", n)
	}
}
