// Package storage defines where uploaded media bytes are written.
package storage

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// PutResult reports the outcome of a write. Only StatusCode 200 counts as
// success; a zero status means the backend did not report one.
type PutResult struct {
	StatusCode int
	ETag       string
	Size       int64
}

// OK reports whether the write was explicitly acknowledged.
func (r PutResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Store writes media streams under a key.
type Store interface {
	// PutStream writes body under key. size is -1 when unknown.
	PutStream(ctx context.Context, key string, body io.Reader, size int64, contentType string) (PutResult, error)
	// SignedURL returns a time-limited download URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Key derives the object key for a platform message: {date}/{messageID},
// prefixed with {entityID}/ when the baby is known. The date is the UTC day
// of at.
func Key(at time.Time, messageID string, entityID *int64) string {
	key := at.UTC().Format(time.DateOnly) + "/" + messageID
	if entityID != nil {
		key = strconv.FormatInt(*entityID, 10) + "/" + key
	}
	return key
}
