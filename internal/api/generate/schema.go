package generate

// PromptRequest is the /generate payload. Prompt must be present and a
// string; an empty string is accepted and answered like any other prompt.
type PromptRequest struct {
	Prompt      *string  `json:"prompt" binding:"required"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func (r PromptRequest) PromptText() string {
	if r.Prompt == nil {
		return ""
	}
	return *r.Prompt
}

// Overrides returns the per-request generation parameters that were provided.
func (r PromptRequest) Overrides() map[string]any {
	if r.MaxLength == nil && r.Temperature == nil {
		return nil
	}
	out := make(map[string]any, 2)
	if r.MaxLength != nil {
		out["max_length"] = *r.MaxLength
	}
	if r.Temperature != nil {
		out["temperature"] = *r.Temperature
	}
	return out
}

type GenerateResponse struct {
	Response string `json:"response"`
}

type ConfigRequest struct {
	Config map[string]any `json:"config" binding:"required"`
}

type ConfigStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Example map[string]any `json:"example,omitempty"`
}

// ErrorResponse is the body of a 500 reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
