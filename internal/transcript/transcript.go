package transcript

import (
	"fmt"
	"strings"
	"time"
)

const (
	Greeting = "Hello! I'm a SQL assistant. Ask me anything about your database."
	Fallback = "I am still learning!"
)

type Role int

const (
	RoleHuman Role = iota + 1
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "Human"
	case RoleAssistant:
		return "Assistant"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAssistant:
		return true
	default:
		return false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(strings.ToLower(r.String())), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "human":
		*r = RoleHuman
	case "assistant":
		*r = RoleAssistant
	default:
		return fmt.Errorf("invalid role %q", string(text))
	}
	return nil
}

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is an append-only log of turns. It is not safe for concurrent
// use; the owning session serializes access.
type Transcript struct {
	turns []Turn
	now   func() time.Time
}

func New(greeting string) *Transcript {
	return NewWithClock(greeting, time.Now)
}

func NewWithClock(greeting string, now func() time.Time) *Transcript {
	if now == nil {
		now = time.Now
	}
	t := &Transcript{now: now}
	t.append(RoleAssistant, greeting)
	return t
}

func (t *Transcript) AppendHuman(text string) Turn {
	return t.append(RoleHuman, text)
}

func (t *Transcript) AppendAssistant(text string) Turn {
	return t.append(RoleAssistant, text)
}

func (t *Transcript) append(role Role, text string) Turn {
	turn := Turn{Role: role, Text: text, CreatedAt: t.now().UTC()}
	t.turns = append(t.turns, turn)
	return turn
}

func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	return len(t.turns)
}

func (t *Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}
