package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is the parent of every "no model to talk to" condition.
	ErrModelUnavailable = errors.New("model unavailable")
	ErrModelLoading     = fmt.Errorf("%w: still loading", ErrModelUnavailable)
	ErrModelFailed      = fmt.Errorf("%w: failed to load", ErrModelUnavailable)
)

const (
	MsgModelLoading   = "Model is still loading. Please try again later."
	MsgModelFailed    = "Model failed to load and is unavailable. Please try again later."
	MsgInvalidPrompt  = "Please provide a valid prompt."
	MsgNeedMoreDetail = "I understand your message. Could you please provide more context or ask a specific question?"
)

// GenerationError reports a failure of the inference backend.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Message renders a gateway error as the text returned to the user.
// ok is false for errors that did not originate in the gateway.
func Message(err error) (msg string, ok bool) {
	var genErr *GenerationError
	switch {
	case errors.Is(err, ErrModelLoading):
		return MsgModelLoading, true
	case errors.Is(err, ErrModelFailed):
		return MsgModelFailed, true
	case errors.As(err, &genErr):
		return fmt.Sprintf("Sorry, I encountered an error while generating a response: %v", genErr.Err), true
	}
	return "", false
}
