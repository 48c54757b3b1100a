package types

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Interaction is one prompt/response exchange as persisted by the interaction log.
type Interaction struct {
	ID             uuid.UUID
	Timestamp      time.Time
	Prompt         string
	Response       string
	ResponseLength int // characters, not bytes
}

func NewInteraction(prompt, response string) Interaction {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Interaction{
		ID:             id,
		Timestamp:      time.Now().UTC(),
		Prompt:         prompt,
		Response:       response,
		ResponseLength: utf8.RuneCountInString(response),
	}
}
