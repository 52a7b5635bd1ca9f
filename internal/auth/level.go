package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is a permission level. The hierarchy is read < write < admin.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

var levelRanks = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

// ParseLevel normalises s into a known level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: unsupported permission type %q", ErrInvalidInput, s)
	}
	return l, nil
}

// Rank is the ordinal of l; unknown levels rank 0.
func (l Level) Rank() int {
	return levelRanks[l]
}

func (l Level) Valid() bool {
	return l.Rank() > 0
}

// AtLeast reports whether l grants the capabilities of required.
// An unknown level never satisfies anything, and nothing satisfies an unknown requirement.
func (l Level) AtLeast(required Level) bool {
	if !l.Valid() || !required.Valid() {
		return false
	}
	return l.Rank() >= required.Rank()
}

func (l Level) String() string { return string(l) }

// UnmarshalJSON accepts any casing but keeps unknown values so validation can report them.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = Level(strings.ToLower(strings.TrimSpace(s)))
	return nil
}
