package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNoOwner = errors.New("last message cache has no owner")

// LastMessageRepository persists per-counterpart last traffic times for one local user.
type LastMessageRepository interface {
	Load(ctx context.Context) (map[int]time.Time, error)
	Save(ctx context.Context, userID int, at time.Time) error
}

// LastMessageRepo is a sqlx-backed repository scoped to ownerID.
type LastMessageRepo struct {
	db      *sqlx.DB
	ownerID int
}

func NewLastMessageRepo(db *sqlx.DB, ownerID int) *LastMessageRepo {
	return &LastMessageRepo{db: db, ownerID: ownerID}
}

type lastMessageRow struct {
	UserID        int   `db:"user_id"`
	LastMessageAt int64 `db:"last_message_at"`
}

// Load returns every stored time for the owner.
func (r *LastMessageRepo) Load(ctx context.Context) (map[int]time.Time, error) {
	if r.ownerID == 0 {
		return nil, ErrNoOwner
	}
	var rows []lastMessageRow
	err := r.db.SelectContext(ctx, &rows,
		r.db.Rebind(`SELECT user_id, last_message_at FROM last_message_times WHERE owner_id = ?`), r.ownerID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]time.Time, len(rows))
	for _, row := range rows {
		out[row.UserID] = time.Unix(row.LastMessageAt, 0).UTC()
	}
	return out, nil
}

// Save upserts the time for userID, never moving it backwards.
func (r *LastMessageRepo) Save(ctx context.Context, userID int, at time.Time) error {
	if r.ownerID == 0 {
		return ErrNoOwner
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO last_message_times (owner_id, user_id, last_message_at)
        VALUES (?, ?, ?)
        ON CONFLICT (owner_id, user_id) DO UPDATE SET last_message_at = excluded.last_message_at
        WHERE excluded.last_message_at > last_message_times.last_message_at`),
		r.ownerID, userID, at.Unix())
	return err
}
