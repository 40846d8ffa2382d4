package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS meeting_events (
	id       BIGSERIAL PRIMARY KEY,
	room_key TEXT        NOT NULL,
	kind     TEXT        NOT NULL,
	reason   TEXT        NOT NULL DEFAULT '',
	members  INTEGER     NOT NULL,
	at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS meeting_events_room_id_idx ON meeting_events (room_key, id DESC);
`

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type MeetingRepository struct {
	db *pgxpool.Pool
}

func NewMeetingRepository(db *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{db: db}
}

// EnsureSchema creates the meeting_events table if it does not exist.
func (r *MeetingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("meeting_events schema: %w", err)
	}
	return nil
}

func (r *MeetingRepository) Insert(ctx context.Context, ev domain.MeetingEvent) error {
	query := `
		INSERT INTO meeting_events (room_key, kind, reason, members, at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, ev.RoomKey, ev.Kind, ev.Reason, ev.Members, ev.At); err != nil {
		return fmt.Errorf("insert meeting event: %w", err)
	}
	return nil
}

// List returns events newest first. room empty lists every room.
func (r *MeetingRepository) List(ctx context.Context, room string, limit int, cursorStr string) ([]domain.MeetingEvent, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)

	var before any
	if cur != nil {
		before = cur.ID
	}

	query := `
		SELECT id, room_key, kind, reason, members, at
		FROM meeting_events
		WHERE ($1 = '' OR room_key = $1)
		  AND ($2::bigint IS NULL OR id < $2)
		ORDER BY id DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, room, before, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list meeting events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.MeetingEvent])
	if err != nil {
		return nil, "", fmt.Errorf("scan meeting events: %w", err)
	}

	var next string
	if len(events) == limit {
		if next, err = EncodeCursor(Cursor{ID: events[len(events)-1].ID}); err != nil {
			return nil, "", err
		}
	}
	return events, next, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
