package conversation

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/execsim/personachat/internal/persona"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation, tagged with its author.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Record is the persisted unit of state for one chat thread. Messages
// preserve insertion order; an assistant turn always follows the user
// turn that produced it.
type Record struct {
	ID          string
	Persona     persona.Persona
	CompanyRef  string
	CompanyName string
	Messages    []Turn
}

// NewID generates a ULID for a new conversation. IDs are allocated by
// the caller, never by the store.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}
