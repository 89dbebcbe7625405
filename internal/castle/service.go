package castle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prosite.org/internal/audit"
	"prosite.org/internal/ids"
	"prosite.org/internal/obs"
)

const defaultPushBudget = time.Minute

// Service orchestrates settings updates: validate, persist, record the diff,
// then hand the new settings to the agent. The local write is the source of
// truth; the remote push is best-effort with retries and never rolls the
// update back.
type Service struct {
	store      Store
	pusher     Pusher
	pushBudget time.Duration
	now        func() time.Time

	pushes sync.WaitGroup
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithPushBudget bounds the total elapsed time of one async push, retries
// included.
func WithPushBudget(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.pushBudget = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the settings service. pusher may be nil when no agent
// is configured; updates then stay local.
func NewService(store Store, pusher Pusher, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		pusher:     pusher,
		pushBudget: defaultPushBudget,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads a castle owned by clientID.
func (s *Service) Get(ctx context.Context, id, clientID string) (*Castle, error) {
	return s.store.FindOwned(ctx, id, clientID)
}

// UpdateSettings applies new settings to a castle the client owns. The
// persisted write and the change log commit before the agent push starts;
// the push runs in the background but is tracked, so failures surface in
// logs and metrics and Drain waits for it.
func (s *Service) UpdateSettings(ctx context.Context, id, clientID string, settings Settings) ([]Change, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	current, err := s.store.FindOwned(ctx, id, clientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	changes := Diff(current.Settings, settings)
	for i := range changes {
		changes[i].ID = ids.New()
		changes[i].ClientID = clientID
		changes[i].CastleID = id
		changes[i].CreatedAt = now
	}

	if err := s.store.UpdateSettings(ctx, id, settings, now); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	if len(changes) > 0 {
		if err := s.store.AppendChanges(ctx, changes); err != nil {
			return nil, fmt.Errorf("append change log: %w", err)
		}
	}

	if s.pusher != nil {
		s.pushAsync(ctx, id, settings)
	}
	return changes, nil
}

// pushAsync delivers settings without blocking the caller's response. The
// push context is detached from the request's cancellation but keeps its
// values, so request/caller identifiers survive into the audit trail.
func (s *Service) pushAsync(ctx context.Context, castleID string, settings Settings) {
	detached := context.WithoutCancel(ctx)
	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		pushCtx, cancel := context.WithTimeout(detached, s.pushBudget)
		defer cancel()

		if err := s.pusher.PushSettings(pushCtx, castleID, settings); err != nil {
			obs.Error("agent push failed", map[string]any{
				"castle_id": castleID,
				"error":     err.Error(),
			})
			_ = audit.LogEvent(pushCtx, "castle.sync.failed", map[string]any{
				"castle_id": castleID,
				"error":     err.Error(),
			})
			return
		}
		_ = audit.LogEvent(pushCtx, "castle.sync.delivered", map[string]any{
			"castle_id": castleID,
		})
	}()
}

// Drain blocks until every in-flight push has finished. Called on shutdown
// so queued deliveries run to completion.
func (s *Service) Drain() {
	s.pushes.Wait()
}
