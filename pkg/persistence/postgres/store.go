// Package postgres is the PostgreSQL persistence.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"babybot/pkg/activity"
	"babybot/pkg/failure"
	"babybot/pkg/persistence"
)

// Querier is satisfied by *pgxpool.Pool and by pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store runs queries through a Querier.
type Store struct {
	q Querier
}

var _ persistence.Store = (*Store)(nil)

// New returns a Store over q.
func New(q Querier) *Store {
	return &Store{q: q}
}

func (s *Store) InsertActivityRecord(ctx context.Context, record activity.Record) (int64, error) {
	if record.EntityID == 0 {
		return 0, failure.New(failure.PersistenceWriteFailed, "activity record without baby")
	}

	query, args, err := psql.Insert("activity_records").
		Columns("user_id", "baby_id", "category", "payload", "amount", "recorded_at").
		Values(record.OwnerUserID, record.EntityID, string(record.Category), record.Payload, record.Amount, record.RecordedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert activity record: %w", err)
	}

	var id int64
	if err := s.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, failure.Wrap(failure.PersistenceWriteFailed, mapError(err), "insert activity record")
	}
	return id, nil
}

func (s *Store) InsertMediaAsset(ctx context.Context, asset activity.MediaAsset) (int64, error) {
	query, args, err := psql.Insert("media_assets").
		Columns("user_id", "baby_id", "message_type", "storage_key", "captured_at").
		Values(asset.OwnerUserID, asset.EntityID, asset.MessageType, asset.StorageKey, asset.CapturedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert media asset: %w", err)
	}

	var id int64
	if err := s.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, failure.Wrap(failure.PersistenceWriteFailed, mapError(err), "insert media asset")
	}
	return id, nil
}

func (s *Store) ManagedEntities(ctx context.Context, userID int64) (activity.Access, error) {
	query, args, err := psql.Select("baby_id", "role").
		From("follows").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("position", "baby_id").
		ToSql()
	if err != nil {
		return activity.Access{}, fmt.Errorf("build select follows: %w", err)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return activity.Access{}, fmt.Errorf("select follows: %w", err)
	}
	defer rows.Close()

	var entities []activity.Entity
	for rows.Next() {
		var (
			babyID int64
			role   string
		)
		if err := rows.Scan(&babyID, &role); err != nil {
			return activity.Access{}, fmt.Errorf("scan follow: %w", err)
		}
		entities = append(entities, activity.Entity{ID: babyID, Role: activity.Role(role)})
	}
	if err := rows.Err(); err != nil {
		return activity.Access{}, fmt.Errorf("iterate follows: %w", err)
	}

	return activity.AccessFrom(entities), nil
}

func (s *Store) UserIDByPlatformID(ctx context.Context, platform, platformID string) (int64, bool, error) {
	query, args, err := psql.Select("id").
		From("users").
		Where(sq.Eq{"platform": platform, "platform_user_id": platformID}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build select user: %w", err)
	}

	var id int64
	if err := s.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select user: %w", err)
	}
	return id, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.q.Ping(ctx)
}

// ErrConflict reports a unique or foreign key violation.
var ErrConflict = errors.New("constraint violation")

// mapError tags constraint violations so callers can tell them from outages.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
