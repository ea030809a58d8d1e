// Package telegram maps Telegram updates onto inbound events and replies
// through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"babybot/pkg/channel"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/messaging"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// Adapter long-polls Telegram and dispatches each update as a one-event batch.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	bot       *telego.Bot
	messenger *Messenger
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		bot:       bot,
		messenger: newMessenger(bot, &http.Client{Timeout: time.Minute}),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used as the platform in logs and user lookups.
func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Messenger() messaging.Messenger {
	return a.messenger
}

// ReplyTokenTTL is zero: a Telegram reply is a plain send to the chat and
// works for any message still in the polling backlog.
func (a *Adapter) ReplyTokenTTL() time.Duration {
	return 0
}

// Run starts Telegram long polling and forwards messages through the shared channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	me, err := a.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "bot", me.Username)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil {
				continue
			}
			if message.From != nil && !a.senderAllowed(strconv.FormatInt(message.From.ID, 10)) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", message.From.ID)
				continue
			}

			ev, ok := toEvent(*message, me.ID, a.messenger)
			if !ok {
				continue
			}
			a.log.Info("Received message", "chat_id", message.Chat.ID, "update_id", update.UpdateID, "content", previewText(message.Text))

			stopTyping := func() {}
			if ev.Type == event.TypeMessage {
				stopTyping = a.startTypingIndicator(ctx, message.Chat.ID)
			}
			outcomes, err := handleOnce(ctx, handler, a.messenger, ev)
			stopTyping()
			if err != nil {
				a.log.Error("Failed to process update", "update_id", update.UpdateID, "error", err)
				continue
			}
			for _, outcome := range outcomes {
				a.log.Debug("Update handled", "update_id", update.UpdateID, "status", outcome.Status, "error", outcome.Error)
			}
		}
	}
}

// handleOnce dispatches ev and then drops any file it registered, so content
// the handler never fetched does not stay in the messenger.
func handleOnce(ctx context.Context, handler channel.Handler, m *Messenger, ev event.Event) ([]dispatch.Outcome, error) {
	if ev.Message != nil {
		defer m.forget(ev.Message.ID)
	}
	return handler(ctx, []event.Event{ev})
}

// toEvent maps a Telegram message onto an inbound event. Media file IDs are
// remembered in m so the dispatcher can fetch the content later. ok is false
// for messages that carry nothing the dispatcher understands.
func toEvent(message telego.Message, selfID int64, m *Messenger) (event.Event, bool) {
	ev := event.Event{
		Type:       event.TypeMessage,
		ReplyToken: replyToken(message.Chat.ID, message.MessageID),
		Source:     sourceOf(message),
		Timestamp:  time.Unix(message.Date, 0).UTC(),
	}
	messageID := strconv.FormatInt(message.Chat.ID, 10) + "-" + strconv.Itoa(message.MessageID)

	for _, member := range message.NewChatMembers {
		if member.ID == selfID {
			ev.Type = event.TypeJoin
			return ev, true
		}
	}
	if message.LeftChatMember != nil && message.LeftChatMember.ID == selfID {
		ev.Type = event.TypeLeave
		ev.ReplyToken = ""
		return ev, true
	}

	switch {
	case strings.TrimSpace(message.Text) != "":
		ev.Message = &event.Message{ID: messageID, Type: event.MessageText, Text: message.Text}
	case len(message.Photo) > 0:
		// Sizes are ascending; keep the original resolution.
		largest := message.Photo[len(message.Photo)-1]
		m.remember(messageID, fileRef{fileID: largest.FileID, mimeType: "image/jpeg"})
		ev.Message = &event.Message{ID: messageID, Type: event.MessageImage}
	case message.Video != nil:
		m.remember(messageID, fileRef{fileID: message.Video.FileID, mimeType: message.Video.MimeType})
		ev.Message = &event.Message{ID: messageID, Type: event.MessageVideo}
	default:
		return event.Event{}, false
	}

	return ev, true
}

func sourceOf(message telego.Message) event.Source {
	chatID := strconv.FormatInt(message.Chat.ID, 10)
	userID := ""
	if message.From != nil {
		userID = strconv.FormatInt(message.From.ID, 10)
	}

	switch message.Chat.Type {
	case "group", "supergroup":
		return event.Source{Type: event.SourceGroup, GroupID: chatID, UserID: userID}
	case "channel":
		return event.Source{Type: event.SourceRoom, RoomID: chatID, UserID: userID}
	default:
		return event.Source{Type: event.SourceUser, UserID: userID}
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a log-safe preview of message text, at most
// messagePreviewLimit runes long.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return string([]rune(trimmed)[:messagePreviewLimit]) + "..."
}

// startTypingIndicator shows the typing action while an event is handled.
func (a *Adapter) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
