package generate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/core"
	"github.com/Conversly/minivault/internal/gateway"
	"github.com/Conversly/minivault/internal/llm"
	"github.com/Conversly/minivault/internal/types"
	"github.com/Conversly/minivault/internal/utils"
)

const stubNote = " (Note: Using stubbed response - LLM not loaded)"

// Generator is the part of the model gateway the service depends on.
type Generator interface {
	Loaded() bool
	Generate(ctx context.Context, prompt string, overrides map[string]any) (string, error)
	Update(update map[string]any) error
}

// InternalError is an unexpected failure while serving a request. Detail is
// returned to the client as is.
type InternalError struct {
	Detail string
	Err    error
}

func (e *InternalError) Error() string { return e.Detail }

func (e *InternalError) Unwrap() error { return e.Err }

type Service struct {
	gen  Generator
	sink core.InteractionSink
}

// NewService wires the dispatcher. gen may be nil when no model backend is configured.
func NewService(gen Generator, sink core.InteractionSink) *Service {
	return &Service{gen: gen, sink: sink}
}

// Handle answers one prompt with the model when it is ready and with a stub
// otherwise. Every outcome is recorded in the interaction log.
func (s *Service) Handle(ctx context.Context, req PromptRequest) (resp string, err error) {
	prompt := req.PromptText()

	defer func() {
		if r := recover(); r != nil {
			resp, err = "", s.fail(ctx, prompt, fmt.Errorf("%v", r))
		}
	}()

	resp, err = s.respond(ctx, prompt, req.Overrides())
	if err != nil {
		return "", s.fail(ctx, prompt, err)
	}

	if err := s.sink.Record(ctx, types.NewInteraction(prompt, resp)); err != nil {
		return "", s.fail(ctx, prompt, err)
	}
	return resp, nil
}

func (s *Service) respond(ctx context.Context, prompt string, overrides map[string]any) (string, error) {
	if s.gen == nil || !s.gen.Loaded() {
		return llm.StubResponse(prompt) + stubNote, nil
	}

	text, err := s.gen.Generate(ctx, prompt, overrides)
	if err != nil {
		msg, ok := gateway.Message(err)
		if !ok {
			return "", err
		}
		return msg, nil
	}
	return text, nil
}

func (s *Service) fail(ctx context.Context, prompt string, cause error) error {
	detail := "Error processing request: " + cause.Error()
	utils.Zlog.Error("Failed to process prompt", zap.Error(cause))

	if err := s.sink.Record(ctx, types.NewInteraction(prompt, detail)); err != nil {
		utils.Zlog.Error("Failed to record failed interaction", zap.Error(err))
	}
	return &InternalError{Detail: detail, Err: cause}
}

// Configure merges update into the model's generation config.
func (s *Service) Configure(ctx context.Context, update map[string]any) (ConfigStatus, error) {
	if s.gen == nil {
		return ConfigStatus{Status: "error", Message: "LLM service not available"}, nil
	}

	if err := s.gen.Update(update); err != nil {
		return ConfigStatus{}, &InternalError{
			Detail: "Configuration error: " + err.Error(),
			Err:    err,
		}
	}

	return ConfigStatus{
		Status:  "success",
		Message: "Configuration updated",
		Example: map[string]any{
			"config": map[string]any{
				"temperature": "float (e.g. 0.7)",
				"max_length":  "int (e.g. 256)",
			},
		},
	}, nil
}
