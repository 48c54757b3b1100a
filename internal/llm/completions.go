package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/utils"
)

// CompletionsConfig configures a CompletionsProvider.
type CompletionsConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// PadTokenID wins over EOSTokenID when both are set.
	PadTokenID *int
	EOSTokenID *int
	HTTPClient *http.Client
}

// CompletionsProvider talks to an OpenAI-compatible text completion endpoint.
// Works with llama.cpp server, Ollama, vLLM and other local backends.
type CompletionsProvider struct {
	cfg    CompletionsConfig
	client openai.Client

	mu     sync.RWMutex
	loaded bool
}

func NewCompletionsProvider(cfg CompletionsConfig) *CompletionsProvider {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	// Local backends usually don't check the key
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("dummy"))
	}

	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &CompletionsProvider{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

// Load checks that the backend serves the configured model.
func (p *CompletionsProvider) Load(ctx context.Context) (ModelInfo, error) {
	m, err := p.client.Models.Get(ctx, p.cfg.Model)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to load model %s: %w", p.cfg.Model, err)
	}

	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()

	name := m.ID
	if name == "" {
		name = p.cfg.Model
	}

	utils.Zlog.Info("Completions backend ready",
		zap.String("model", name),
		zap.String("base_url", p.cfg.BaseURL))

	return ModelInfo{
		Name:       name,
		PadTokenID: padOrEOS(p.cfg.PadTokenID, p.cfg.EOSTokenID),
	}, nil
}

func (p *CompletionsProvider) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return "", ErrNotLoaded
	}

	n := params.NumReturnSequences
	if n <= 0 {
		n = 1
	}

	body := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(p.cfg.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(prompt),
		},
		N:           openai.Int(int64(n)),
		Echo:        openai.Bool(true),
		Temperature: openai.Float(effectiveTemperature(params)),
	}
	if params.MaxLength > 0 {
		body.MaxTokens = openai.Int(int64(params.MaxLength))
	}

	res, err := p.client.Completions.New(ctx, body, p.extraFields(params)...)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return res.Choices[0].Text, nil
}

// extraFields forwards pad_token_id and unknown config keys as raw JSON fields.
func (p *CompletionsProvider) extraFields(params Params) []option.RequestOption {
	var opts []option.RequestOption
	if params.PadTokenID != nil {
		opts = append(opts, option.WithJSONSet("pad_token_id", *params.PadTokenID))
	}

	keys := make([]string, 0, len(params.Extra))
	for k := range params.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, option.WithJSONSet(k, params.Extra[k]))
	}
	return opts
}

func (p *CompletionsProvider) Close() error {
	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()
	return nil
}
