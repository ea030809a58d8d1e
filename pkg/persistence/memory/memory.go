// Package memory is an in-process persistence.Store.
package memory

import (
	"context"
	"sync"

	"babybot/pkg/activity"
	"babybot/pkg/failure"
	"babybot/pkg/persistence"
)

type identity struct {
	platform string
	id       string
}

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	nextUserID int64
	users      map[identity]int64
	follows    map[int64][]activity.Entity
	records    []activity.Record
	assets     []activity.MediaAsset
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[identity]int64),
		follows: make(map[int64][]activity.Entity),
	}
}

// AddUser registers a platform identity and returns its user ID. Registering
// the same identity twice returns the existing ID.
func (s *Store) AddUser(platform, platformID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identity{platform: platform, id: platformID}
	if id, ok := s.users[key]; ok {
		return id
	}
	s.nextUserID++
	s.users[key] = s.nextUserID
	return s.nextUserID
}

// Follow appends a baby to a user's listing.
func (s *Store) Follow(userID, babyID int64, role activity.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[userID] = append(s.follows[userID], activity.Entity{ID: babyID, Role: role})
}

func (s *Store) InsertActivityRecord(_ context.Context, record activity.Record) (int64, error) {
	if record.EntityID == 0 {
		return 0, failure.New(failure.PersistenceWriteFailed, "activity record without baby")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = int64(len(s.records) + 1)
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *Store) InsertMediaAsset(_ context.Context, asset activity.MediaAsset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset.ID = int64(len(s.assets) + 1)
	s.assets = append(s.assets, asset)
	return asset.ID, nil
}

func (s *Store) ManagedEntities(_ context.Context, userID int64) (activity.Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activity.AccessFrom(s.follows[userID]), nil
}

func (s *Store) UserIDByPlatformID(_ context.Context, platform, platformID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.users[identity{platform: platform, id: platformID}]
	return id, ok, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Records returns a copy of the stored activity records.
func (s *Store) Records() []activity.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Record(nil), s.records...)
}

// Assets returns a copy of the stored media assets.
func (s *Store) Assets() []activity.MediaAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.MediaAsset(nil), s.assets...)
}
