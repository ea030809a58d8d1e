package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"babybot/pkg/failure"
	"babybot/pkg/messaging"
)

const tokenPrefix = "tg"

// botAPI is the subset of *telego.Bot the messenger uses.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
	LeaveChat(ctx context.Context, params *telego.LeaveChatParams) error
}

type fileRef struct {
	fileID   string
	mimeType string
}

// Messenger implements messaging.Messenger over the Telegram Bot API. Telegram
// has no reply tokens, so tokens are synthesized from the chat and message ID.
type Messenger struct {
	bot    botAPI
	client *http.Client

	mu    sync.Mutex
	files map[string]fileRef
}

var _ messaging.Messenger = (*Messenger)(nil)

func newMessenger(bot botAPI, client *http.Client) *Messenger {
	if client == nil {
		client = http.DefaultClient
	}
	return &Messenger{bot: bot, client: client, files: make(map[string]fileRef)}
}

// replyToken encodes the chat a reply must go to.
func replyToken(chatID int64, messageID int) string {
	return tokenPrefix + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func chatFromToken(token string) (int64, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return 0, fmt.Errorf("malformed telegram reply token %q", token)
	}
	return strconv.ParseInt(parts[1], 10, 64)
}

func (m *Messenger) Reply(ctx context.Context, reply messaging.Reply) error {
	chatID, err := chatFromToken(reply.Token)
	if err != nil {
		return failure.Wrap(failure.ReplyTokenExpired, err, "resolve reply chat")
	}

	for _, text := range reply.Texts {
		if _, err := m.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			return failure.Wrap(failure.UpstreamInvocationFailed, err, "send telegram message")
		}
	}
	return nil
}

func (m *Messenger) Profile(ctx context.Context, userID string) (messaging.Profile, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return messaging.Profile{}, fmt.Errorf("parse telegram user id: %w", err)
	}

	chat, err := m.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(id)})
	if err != nil {
		return messaging.Profile{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "get telegram chat")
	}

	return messaging.Profile{
		DisplayName:   strings.TrimSpace(chat.FirstName + " " + chat.LastName),
		StatusMessage: chat.Bio,
	}, nil
}

// remember records which Telegram file backs a message so Content can fetch it.
func (m *Messenger) remember(messageID string, ref fileRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[messageID] = ref
}

func (m *Messenger) forget(messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, messageID)
}

// Content downloads the file recorded for messageID. Each file can be fetched
// once.
func (m *Messenger) Content(ctx context.Context, messageID string) (messaging.Content, error) {
	m.mu.Lock()
	ref, ok := m.files[messageID]
	delete(m.files, messageID)
	m.mu.Unlock()
	if !ok {
		return messaging.Content{}, fmt.Errorf("no telegram file for message %s", messageID)
	}

	file, err := m.bot.GetFile(ctx, &telego.GetFileParams{FileID: ref.fileID})
	if err != nil {
		return messaging.Content{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "get telegram file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return messaging.Content{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return messaging.Content{}, failure.Wrap(failure.UpstreamInvocationFailed, err, "download telegram file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return messaging.Content{}, failure.Newf(failure.UpstreamInvocationFailed, "download telegram file: status %d", resp.StatusCode)
	}

	contentType := ref.mimeType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}

	return messaging.Content{Body: resp.Body, ContentType: contentType, Length: resp.ContentLength}, nil
}

func (m *Messenger) LeaveGroup(ctx context.Context, groupID string) error {
	return m.leave(ctx, groupID)
}

func (m *Messenger) LeaveRoom(ctx context.Context, roomID string) error {
	return m.leave(ctx, roomID)
}

func (m *Messenger) leave(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id: %w", err)
	}
	if err := m.bot.LeaveChat(ctx, &telego.LeaveChatParams{ChatID: tu.ID(id)}); err != nil {
		return failure.Wrap(failure.UpstreamInvocationFailed, err, "leave telegram chat")
	}
	return nil
}
