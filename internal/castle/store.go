package castle

import (
	"context"
	"time"
)

// Store persists castles and their change log.
type Store interface {
	// FindOwned loads a castle only if it belongs to clientID; a foreign or
	// missing castle is ErrNotFound either way.
	FindOwned(ctx context.Context, id, clientID string) (*Castle, error)
	// UpdateSettings rewrites the stored settings and bumps updated_at.
	UpdateSettings(ctx context.Context, id string, settings Settings, at time.Time) error
	// AppendChanges records the field-level diff of one update.
	AppendChanges(ctx context.Context, changes []Change) error
}

// Pusher delivers settings to the remote agent. Satisfied by agent.Client.
type Pusher interface {
	PushSettings(ctx context.Context, castleID string, settings any) error
}
