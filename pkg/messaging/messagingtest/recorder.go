// Package messagingtest provides a recording Messenger for tests.
package messagingtest

import (
	"context"
	"io"
	"strings"
	"sync"

	"babybot/pkg/messaging"
)

// Recorder records every call and serves content from Contents.
type Recorder struct {
	mu sync.Mutex

	Replies  []messaging.Reply
	Left     []string
	Fetched  []string
	Profiles map[string]messaging.Profile
	Contents map[string]string

	ReplyErr   error
	ContentErr error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		Profiles: make(map[string]messaging.Profile),
		Contents: make(map[string]string),
	}
}

func (r *Recorder) Reply(_ context.Context, reply messaging.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReplyErr != nil {
		return r.ReplyErr
	}
	r.Replies = append(r.Replies, reply)
	return nil
}

func (r *Recorder) Profile(_ context.Context, userID string) (messaging.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Profiles[userID], nil
}

func (r *Recorder) Content(_ context.Context, messageID string) (messaging.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetched = append(r.Fetched, messageID)
	if r.ContentErr != nil {
		return messaging.Content{}, r.ContentErr
	}
	body := r.Contents[messageID]
	return messaging.Content{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: "image/jpeg",
		Length:      int64(len(body)),
	}, nil
}

func (r *Recorder) LeaveGroup(_ context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Left = append(r.Left, "group:"+groupID)
	return nil
}

func (r *Recorder) LeaveRoom(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Left = append(r.Left, "room:"+roomID)
	return nil
}

// RepliesFor returns the texts sent with token.
func (r *Recorder) RepliesFor(token string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var texts [][]string
	for _, reply := range r.Replies {
		if reply.Token == token {
			texts = append(texts, reply.Texts)
		}
	}
	return texts
}

// FetchCount returns the number of Content calls.
func (r *Recorder) FetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Fetched)
}

// ReplyCount returns the number of replies sent.
func (r *Recorder) ReplyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Replies)
}
