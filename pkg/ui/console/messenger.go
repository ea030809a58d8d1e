// Package console is a terminal stand-in for a chat platform. Text typed at
// the prompt is handed to the dispatcher as a message event and the bot's
// replies are shown back as cards.
package console

import (
	"context"
	"errors"
	"strings"
	"sync"

	"babybot/pkg/messaging"
	"babybot/pkg/persistence"
)

// Platform is the identity platform name used for console users.
const Platform = persistence.PlatformConsole

var errNoContent = errors.New("console messages carry no binary content")

// Messenger buffers replies by token until the session collects them.
type Messenger struct {
	displayName string

	mu      sync.Mutex
	pending map[string][]string
}

var _ messaging.Messenger = (*Messenger)(nil)

func NewMessenger(displayName string) *Messenger {
	return &Messenger{
		displayName: displayName,
		pending:     make(map[string][]string),
	}
}

func (m *Messenger) Reply(_ context.Context, reply messaging.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[reply.Token] = append(m.pending[reply.Token], reply.Texts...)
	return nil
}

func (m *Messenger) Profile(context.Context, string) (messaging.Profile, error) {
	return messaging.Profile{DisplayName: m.displayName, StatusMessage: "typing in a terminal"}, nil
}

func (m *Messenger) Content(context.Context, string) (messaging.Content, error) {
	return messaging.Content{}, errNoContent
}

// Console sessions are always one-to-one, so there is nothing to leave.
func (m *Messenger) LeaveGroup(context.Context, string) error { return nil }

func (m *Messenger) LeaveRoom(context.Context, string) error { return nil }

// take removes and returns the replies sent with token.
func (m *Messenger) take(token string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	texts := m.pending[token]
	delete(m.pending, token)
	return strings.Join(texts, "\n")
}
