package castle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Settings live as a JSON column
// on the castle row; the change log is append-only.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FindOwned(ctx context.Context, id, clientID string) (*Castle, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, client_id, name, settings, updated_at
		 from castles where id=$1 and client_id=$2`, id, clientID)
	var (
		c   Castle
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.ClientID, &c.Name, &raw, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &c, nil
}

func (s *PGStore) UpdateSettings(ctx context.Context, id string, settings Settings, at time.Time) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update castles set settings=$1, updated_at=$2 where id=$3`, raw, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AppendChanges(ctx context.Context, changes []Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, change := range changes {
		_, err := tx.ExecContext(ctx,
			`insert into change_logs(id, client_id, castle_id, field, old_value, new_value, created_at)
			 values($1,$2,$3,$4,$5,$6,$7)`,
			change.ID, change.ClientID, change.CastleID, change.Field,
			change.OldValue, change.NewValue, change.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
