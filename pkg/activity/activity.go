// Package activity resolves parsed commands into records for a managed baby.
package activity

import (
	"time"

	"babybot/pkg/command"
)

// Role is a user's relationship to a baby.
type Role string

const (
	RoleManager  Role = "manager"
	RoleObserver Role = "observer"
)

// Entity is one baby a user follows, as listed by persistence.
type Entity struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// AccessKind tags an Access value.
type AccessKind int

const (
	NoAccess AccessKind = iota
	Single
	Multiple
)

func (k AccessKind) String() string {
	switch k {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return "none"
	}
}

// Access is the set of babies a user may record for: none, exactly one, or
// several in listing order.
type Access struct {
	ids []int64
}

// AccessFrom keeps the manager entries of entities, preserving their order.
func AccessFrom(entities []Entity) Access {
	ids := make([]int64, 0, len(entities))
	for _, entity := range entities {
		if entity.Role == RoleManager {
			ids = append(ids, entity.ID)
		}
	}
	return Access{ids: ids}
}

// SingleAccess is shorthand for an Access over exactly one baby.
func SingleAccess(id int64) Access {
	return Access{ids: []int64{id}}
}

// MultipleAccess is shorthand for an Access over ids in the given order.
func MultipleAccess(ids ...int64) Access {
	return Access{ids: append([]int64(nil), ids...)}
}

// Kind reports which variant a holds.
func (a Access) Kind() AccessKind {
	switch len(a.ids) {
	case 0:
		return NoAccess
	case 1:
		return Single
	default:
		return Multiple
	}
}

// EntityIDs returns a copy of the managed baby IDs in listing order.
func (a Access) EntityIDs() []int64 {
	return append([]int64(nil), a.ids...)
}

// Only returns the baby ID when a is Single.
func (a Access) Only() (int64, bool) {
	if a.Kind() != Single {
		return 0, false
	}
	return a.ids[0], true
}

// Record is one logged activity.
type Record struct {
	ID          int64            `json:"id,omitempty"`
	OwnerUserID int64            `json:"owner_user_id"`
	EntityID    int64            `json:"entity_id"`
	Category    command.Category `json:"category"`
	Payload     string           `json:"payload"`
	Amount      *float64         `json:"amount,omitempty"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// MediaAsset is an uploaded image or video. EntityID is nil when the sender
// did not resolve to exactly one baby.
type MediaAsset struct {
	ID          int64     `json:"id,omitempty"`
	OwnerUserID int64     `json:"owner_user_id"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	MessageType string    `json:"message_type"`
	StorageKey  string    `json:"storage_key"`
	CapturedAt  time.Time `json:"captured_at"`
}
