package castle

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a castle does not exist or is not owned by the
// requesting client; the two cases are not distinguished.
var ErrNotFound = errors.New("castle: not found")

// ErrInvalidSettings rejects settings outside the allowed ranges.
var ErrInvalidSettings = errors.New("castle: invalid settings")

const maxTroopsLimit = 999999

// Strategy values the agent understands.
const (
	StrategyAggressive = "aggressive"
	StrategyDefensive  = "defensive"
	StrategyBalanced   = "balanced"
)

// Settings is the automation configuration the agent applies on the remote
// machine. The JSON field names are part of the signed wire format; do not
// rename them.
type Settings struct {
	AutoFight       bool   `json:"autoFight"`
	AutoUpgrade     bool   `json:"autoUpgrade"`
	AutoCollect     bool   `json:"autoCollect"`
	MaxTroops       int    `json:"maxTroops"`
	DefenseStrategy string `json:"defenseStrategy"`
}

// Validate rejects settings the agent would refuse.
func (s Settings) Validate() error {
	if s.MaxTroops < 0 || s.MaxTroops > maxTroopsLimit {
		return fmt.Errorf("%w: maxTroops must be between 0 and %d", ErrInvalidSettings, maxTroopsLimit)
	}
	switch s.DefenseStrategy {
	case StrategyAggressive, StrategyDefensive, StrategyBalanced:
		return nil
	default:
		return fmt.Errorf("%w: unknown defenseStrategy %q", ErrInvalidSettings, s.DefenseStrategy)
	}
}

// Castle is a managed game instance belonging to one client.
type Castle struct {
	ID        string
	ClientID  string
	Name      string
	Settings  Settings
	UpdatedAt time.Time
}

// Change is one field-level difference recorded when settings are updated.
type Change struct {
	ID        string
	ClientID  string
	CastleID  string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// Diff returns the per-field changes from old to new, in declaration order.
// Values are stored as their JSON renderings so the log reads the same as
// the wire format.
func Diff(old, updated Settings) []Change {
	var changes []Change
	add := func(field string, oldVal, newVal any) {
		changes = append(changes, Change{
			Field:    field,
			OldValue: renderValue(oldVal),
			NewValue: renderValue(newVal),
		})
	}
	if old.AutoFight != updated.AutoFight {
		add("autoFight", old.AutoFight, updated.AutoFight)
	}
	if old.AutoUpgrade != updated.AutoUpgrade {
		add("autoUpgrade", old.AutoUpgrade, updated.AutoUpgrade)
	}
	if old.AutoCollect != updated.AutoCollect {
		add("autoCollect", old.AutoCollect, updated.AutoCollect)
	}
	if old.MaxTroops != updated.MaxTroops {
		add("maxTroops", old.MaxTroops, updated.MaxTroops)
	}
	if old.DefenseStrategy != updated.DefenseStrategy {
		add("defenseStrategy", old.DefenseStrategy, updated.DefenseStrategy)
	}
	return changes
}

func renderValue(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
