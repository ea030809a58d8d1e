package console

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"babybot/pkg/command"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/messaging"
	"babybot/pkg/persistence/memory"
	"babybot/pkg/storage/local"
)

func newTestSession(t *testing.T, defaults config.DefaultsConfig) (*Session, *memory.Store) {
	t.Helper()

	store := memory.New()
	messenger := NewMessenger("Console Parent")
	d, err := dispatch.New(dispatch.Deps{
		Messenger: messaging.Guard(messenger, messaging.NewMemoryLedger(), 0),
		Store:     store,
		Storage:   local.New(t.TempDir()),
		Platform:  Platform,
		Defaults:  defaults,
	})
	require.NoError(t, err)

	session, err := NewSession(messenger, d.HandleBatch, "parent")
	require.NoError(t, err)
	return session, store
}

func TestSessionPromptSavesRecord(t *testing.T) {
	t.Parallel()

	session, store := newTestSession(t, config.DefaultsConfig{UserID: 1, BabyID: 7})

	reply, err := session.Prompt(context.Background(), "M 160")
	require.NoError(t, err)
	if reply != "Saved milk: 160 ml." {
		t.Fatalf("reply = %q, want %q", reply, "Saved milk: 160 ml.")
	}

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].EntityID)
	require.Equal(t, command.Milk, records[0].Category)
}

func TestSessionPromptJoinsMultipleReplies(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t, config.DefaultsConfig{})

	reply, err := session.Prompt(context.Background(), "profile")
	require.NoError(t, err)
	require.Equal(t, "Display name: Console Parent\nStatus message: typing in a terminal", reply)
}

func TestSessionPromptUnknownCommandRepliesGuidance(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t, config.DefaultsConfig{})

	reply, err := session.Prompt(context.Background(), "hello there")
	require.NoError(t, err)
	require.Equal(t, command.Guidance, reply)
}

func TestSessionPromptUsesFreshTokens(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t, config.DefaultsConfig{})

	for range 3 {
		reply, err := session.Prompt(context.Background(), "help")
		require.NoError(t, err)
		require.NotEmpty(t, reply)
	}
}

func TestSessionPromptReportsHandlerError(t *testing.T) {
	t.Parallel()

	messenger := NewMessenger("")
	handlerErr := errors.New("boom")
	session, err := NewSession(messenger, func(ctx context.Context, events []event.Event) ([]dispatch.Outcome, error) {
		return nil, handlerErr
	}, "")
	require.NoError(t, err)

	_, err = session.Prompt(context.Background(), "M 160")
	require.ErrorIs(t, err, handlerErr)
}

func TestSessionPromptReportsSilentFailure(t *testing.T) {
	t.Parallel()

	messenger := NewMessenger("")
	session, err := NewSession(messenger, func(ctx context.Context, events []event.Event) ([]dispatch.Outcome, error) {
		return []dispatch.Outcome{{Type: "message", Status: dispatch.StatusError, Error: "persistence_write_failed"}}, nil
	}, "")
	require.NoError(t, err)

	_, err = session.Prompt(context.Background(), "M 160")
	require.Error(t, err)
	if !strings.Contains(err.Error(), "persistence_write_failed") {
		t.Fatalf("error = %q, want it to name the failure kind", err)
	}
}

func TestNewSessionValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewSession(nil, nil, "")
	require.Error(t, err)
	_, err = NewSession(NewMessenger(""), nil, "")
	require.Error(t, err)
}
