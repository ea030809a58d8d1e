// Package remote runs persistence in a separate AWS Lambda function. Client
// implements persistence.Store by invoking it; Handler serves the function.
package remote

import (
	"encoding/json"
	"time"

	"babybot/pkg/activity"
)

// Operations understood by the persistence function.
const (
	OpInsertActivityRecord = "insertActivityRecord"
	OpInsertMediaAsset     = "insertMediaAsset"
	OpManagedEntities      = "managedEntities"
	OpUserIDByPlatformID   = "userIdByPlatformId"
	OpPing                 = "ping"
)

// Request is the invoke payload.
type Request struct {
	FuncDB     string               `json:"funcDB"`
	Record     *activity.Record     `json:"record,omitempty"`
	Asset      *activity.MediaAsset `json:"asset,omitempty"`
	UserID     int64                `json:"user_id,omitempty"`
	Platform   string               `json:"platform,omitempty"`
	PlatformID string               `json:"platform_id,omitempty"`
	SentAt     time.Time            `json:"sent_at"`
}

// Response is the function result. Body holds a JSON-encoded Result on
// success; Error is set when StatusCode is not 200.
type Response struct {
	StatusCode int    `json:"statusCode"`
	FuncDB     string `json:"funcDB,omitempty"`
	Body       string `json:"body,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the decoded Body of a successful Response.
type Result struct {
	FuncDB   string            `json:"funcDB"`
	InsertID int64             `json:"insertId,omitempty"`
	UserID   int64             `json:"userId,omitempty"`
	Found    bool              `json:"found,omitempty"`
	Entities []activity.Entity `json:"entities,omitempty"`
}

func encodeResult(result Result) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
