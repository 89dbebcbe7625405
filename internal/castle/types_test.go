package castle

import (
	"errors"
	"testing"
)

func TestSettingsValidate(t *testing.T) {
	ok := Settings{MaxTroops: 500, DefenseStrategy: StrategyAggressive}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	cases := map[string]Settings{
		"negative troops": {MaxTroops: -1, DefenseStrategy: StrategyBalanced},
		"too many troops": {MaxTroops: maxTroopsLimit + 1, DefenseStrategy: StrategyBalanced},
		"empty strategy":  {MaxTroops: 10},
		"bad strategy":    {MaxTroops: 10, DefenseStrategy: "berserk"},
	}
	for name, s := range cases {
		if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("%s: expected ErrInvalidSettings, got %v", name, err)
		}
	}

	boundary := Settings{MaxTroops: maxTroopsLimit, DefenseStrategy: StrategyDefensive}
	if err := boundary.Validate(); err != nil {
		t.Fatalf("boundary rejected: %v", err)
	}
}

func TestDiff(t *testing.T) {
	old := Settings{
		AutoFight:       false,
		AutoUpgrade:     true,
		AutoCollect:     false,
		MaxTroops:       100,
		DefenseStrategy: StrategyBalanced,
	}

	if changes := Diff(old, old); len(changes) != 0 {
		t.Fatalf("identical settings produced changes: %+v", changes)
	}

	updated := old
	updated.AutoFight = true
	updated.MaxTroops = 200
	updated.DefenseStrategy = StrategyAggressive

	changes := Diff(old, updated)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}

	want := []Change{
		{Field: "autoFight", OldValue: "false", NewValue: "true"},
		{Field: "maxTroops", OldValue: "100", NewValue: "200"},
		{Field: "defenseStrategy", OldValue: StrategyBalanced, NewValue: StrategyAggressive},
	}
	for i, w := range want {
		got := changes[i]
		if got.Field != w.Field || got.OldValue != w.OldValue || got.NewValue != w.NewValue {
			t.Fatalf("change %d: want %+v, got %+v", i, w, got)
		}
	}
}
