package llm

import (
	"context"
	"errors"
)

// ErrNotLoaded is returned by providers asked to generate before Load succeeded or after Close.
var ErrNotLoaded = errors.New("model not loaded")

// Params are the generation parameters of a single call.
type Params struct {
	MaxLength          int
	Temperature        float64
	DoSample           bool
	PadTokenID         *int
	NumReturnSequences int
	// Extra holds backend-specific keys passed through untouched.
	Extra map[string]any
}

// ModelInfo describes what a provider learned while loading its model.
type ModelInfo struct {
	Name       string
	PadTokenID *int
}

// Provider abstracts the text-generation backend. Implementations wrap a
// local OpenAI-compatible server or an Eino chat model.
type Provider interface {
	Load(ctx context.Context) (ModelInfo, error)
	Generate(ctx context.Context, prompt string, params Params) (string, error)
	Close() error
}

// effectiveTemperature maps greedy decoding onto temperature 0.
func effectiveTemperature(p Params) float64 {
	if !p.DoSample {
		return 0
	}
	return p.Temperature
}

func padOrEOS(pad, eos *int) *int {
	if pad != nil {
		return pad
	}
	return eos
}
