// Package persistence defines the durable store for users, babies, activity
// records and media assets.
package persistence

import (
	"context"

	"babybot/pkg/activity"
)

// Platforms a user identity can come from.
const (
	PlatformLine     = "line"
	PlatformTelegram = "telegram"
	PlatformConsole  = "console"
)

// Store is implemented by every persistence backend.
type Store interface {
	InsertActivityRecord(ctx context.Context, record activity.Record) (int64, error)
	InsertMediaAsset(ctx context.Context, asset activity.MediaAsset) (int64, error)
	// ManagedEntities returns the babies userID may record for, in listing order.
	ManagedEntities(ctx context.Context, userID int64) (activity.Access, error)
	// UserIDByPlatformID maps a platform identity to an internal user ID. ok is
	// false when the identity is unknown.
	UserIDByPlatformID(ctx context.Context, platform, platformID string) (userID int64, ok bool, err error)
	Ping(ctx context.Context) error
}
