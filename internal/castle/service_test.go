package castle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	castles map[string]*Castle
	changes []Change
}

func newMemStore() *memStore {
	return &memStore{castles: make(map[string]*Castle)}
}

func (m *memStore) add(c *Castle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.castles[c.ID] = &cp
}

func (m *memStore) FindOwned(_ context.Context, id, clientID string) (*Castle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.castles[id]
	if !ok || c.ClientID != clientID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) UpdateSettings(_ context.Context, id string, settings Settings, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.castles[id]
	if !ok {
		return ErrNotFound
	}
	c.Settings = settings
	c.UpdatedAt = at
	return nil
}

func (m *memStore) AppendChanges(_ context.Context, changes []Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, changes...)
	return nil
}

// recordPusher captures pushes; fail makes every delivery error.
type recordPusher struct {
	mu     sync.Mutex
	pushed []string
	fail   bool
}

func (p *recordPusher) PushSettings(_ context.Context, castleID string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, castleID)
	if p.fail {
		return errors.New("agent unreachable")
	}
	return nil
}

func baseCastle() *Castle {
	return &Castle{
		ID:       "castle-1",
		ClientID: "client-1",
		Name:     "Hilltop",
		Settings: Settings{
			AutoFight:       false,
			AutoUpgrade:     true,
			AutoCollect:     false,
			MaxTroops:       100,
			DefenseStrategy: StrategyBalanced,
		},
	}
}

func TestUpdateSettingsPersistsAndRecordsDiff(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	pusher := &recordPusher{}
	svc := NewService(store, pusher)

	next := Settings{
		AutoFight:       true,
		AutoUpgrade:     true,
		AutoCollect:     false,
		MaxTroops:       250,
		DefenseStrategy: StrategyAggressive,
	}
	changes, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", next)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	svc.Drain()

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}
	wantFields := []string{"autoFight", "maxTroops", "defenseStrategy"}
	for i, want := range wantFields {
		if changes[i].Field != want {
			t.Fatalf("change %d: expected field %s, got %s", i, want, changes[i].Field)
		}
		if changes[i].ID == "" || changes[i].ClientID != "client-1" || changes[i].CastleID != "castle-1" {
			t.Fatalf("change %d not stamped: %+v", i, changes[i])
		}
	}

	got, err := store.FindOwned(context.Background(), "castle-1", "client-1")
	if err != nil {
		t.Fatalf("FindOwned: %v", err)
	}
	if got.Settings != next {
		t.Fatalf("settings not persisted: %+v", got.Settings)
	}
	if len(store.changes) != 3 {
		t.Fatalf("change log has %d rows", len(store.changes))
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0] != "castle-1" {
		t.Fatalf("unexpected pushes: %v", pusher.pushed)
	}
}

func TestUpdateSettingsNoChangesNoLog(t *testing.T) {
	store := newMemStore()
	c := baseCastle()
	store.add(c)
	svc := NewService(store, &recordPusher{})

	changes, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", c.Settings)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	svc.Drain()

	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
	if len(store.changes) != 0 {
		t.Fatal("idempotent update wrote change log rows")
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	pusher := &recordPusher{}
	svc := NewService(store, pusher)

	bad := Settings{MaxTroops: -1, DefenseStrategy: StrategyBalanced}
	if _, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", bad); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("negative maxTroops: got %v", err)
	}
	bad = Settings{MaxTroops: 10, DefenseStrategy: "berserk"}
	if _, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", bad); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("unknown strategy: got %v", err)
	}
	svc.Drain()
	if len(pusher.pushed) != 0 {
		t.Fatal("invalid settings were pushed")
	}
}

func TestUpdateSettingsEnforcesOwnership(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	svc := NewService(store, nil)

	valid := Settings{MaxTroops: 10, DefenseStrategy: StrategyDefensive}
	if _, err := svc.UpdateSettings(context.Background(), "castle-1", "intruder", valid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign client: got %v", err)
	}
	if _, err := svc.UpdateSettings(context.Background(), "castle-missing", "client-1", valid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing castle: got %v", err)
	}
}

func TestUpdateSettingsSurvivesPushFailure(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	pusher := &recordPusher{fail: true}
	svc := NewService(store, pusher)

	next := Settings{AutoFight: true, MaxTroops: 50, DefenseStrategy: StrategyDefensive}
	if _, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	svc.Drain()

	// Delivery failed, but the local write stands.
	got, err := store.FindOwned(context.Background(), "castle-1", "client-1")
	if err != nil {
		t.Fatalf("FindOwned: %v", err)
	}
	if got.Settings != next {
		t.Fatalf("push failure rolled back settings: %+v", got.Settings)
	}
}

func TestUpdateSettingsPushOutlivesRequestContext(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	pusher := &recordPusher{}
	svc := NewService(store, pusher)

	ctx, cancel := context.WithCancel(context.Background())
	next := Settings{AutoFight: true, MaxTroops: 50, DefenseStrategy: StrategyDefensive}
	if _, err := svc.UpdateSettings(ctx, "castle-1", "client-1", next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	cancel()
	svc.Drain()

	if len(pusher.pushed) != 1 {
		t.Fatalf("push did not run after request cancellation: %v", pusher.pushed)
	}
}

func TestUpdateSettingsWithoutPusherStaysLocal(t *testing.T) {
	store := newMemStore()
	store.add(baseCastle())
	svc := NewService(store, nil)

	next := Settings{AutoCollect: true, MaxTroops: 75, DefenseStrategy: StrategyBalanced}
	if _, err := svc.UpdateSettings(context.Background(), "castle-1", "client-1", next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	svc.Drain()

	got, _ := store.FindOwned(context.Background(), "castle-1", "client-1")
	if got.Settings != next {
		t.Fatalf("settings not persisted: %+v", got.Settings)
	}
}
