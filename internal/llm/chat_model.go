package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Conversly/minivault/internal/utils"
)

// MultiKeyChatModel wraps multiple Gemini chat models with round-robin key rotation
// This distributes API requests across multiple keys to avoid rate limits
type MultiKeyChatModel struct {
	models   []model.BaseChatModel
	keyIndex uint64 // atomic counter for round-robin selection
}

// NewMultiKeyChatModel creates a chat model that rotates between multiple API keys
func NewMultiKeyChatModel(ctx context.Context, apiKeys []string, modelName string) (*MultiKeyChatModel, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	models := make([]model.BaseChatModel, len(apiKeys))

	for i, key := range apiKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client for key %d: %w", i+1, err)
		}

		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model for key %d: %w", i+1, err)
		}

		models[i] = chatModel
	}

	utils.Zlog.Info("Created multi-key chat model with round-robin rotation",
		zap.Int("key_count", len(apiKeys)),
		zap.String("model", modelName))

	return newMultiKeyChatModel(models...), nil
}

func newMultiKeyChatModel(models ...model.BaseChatModel) *MultiKeyChatModel {
	return &MultiKeyChatModel{models: models}
}

// getNextModel returns the next model using round-robin selection
func (m *MultiKeyChatModel) getNextModel() model.BaseChatModel {
	if len(m.models) == 1 {
		return m.models[0]
	}
	idx := atomic.AddUint64(&m.keyIndex, 1)
	return m.models[idx%uint64(len(m.models))]
}

// Generate implements model.BaseChatModel
func (m *MultiKeyChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.getNextModel().Generate(ctx, input, opts...)
}

// Stream implements model.BaseChatModel
func (m *MultiKeyChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.getNextModel().Stream(ctx, input, opts...)
}

// ChatModelBuilder creates the chat model when the provider loads.
type ChatModelBuilder func(ctx context.Context) (model.BaseChatModel, error)

// ChatModelProvider adapts an Eino chat model to Provider. The already
// templated prompt is sent as a single user turn.
type ChatModelProvider struct {
	name  string
	build ChatModelBuilder

	mu   sync.RWMutex
	chat model.BaseChatModel
}

func NewChatModelProvider(name string, build ChatModelBuilder) *ChatModelProvider {
	return &ChatModelProvider{
		name:  name,
		build: build,
	}
}

// NewGeminiProvider builds a ChatModelProvider over a MultiKeyChatModel.
func NewGeminiProvider(apiKeys []string, modelName string) *ChatModelProvider {
	return NewChatModelProvider(modelName, func(ctx context.Context) (model.BaseChatModel, error) {
		return NewMultiKeyChatModel(ctx, apiKeys, modelName)
	})
}

func (p *ChatModelProvider) Load(ctx context.Context) (ModelInfo, error) {
	chat, err := p.build(ctx)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to build chat model %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.chat = chat
	p.mu.Unlock()

	return ModelInfo{Name: p.name}, nil
}

func (p *ChatModelProvider) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	p.mu.RLock()
	chat := p.chat
	p.mu.RUnlock()
	if chat == nil {
		return "", ErrNotLoaded
	}

	opts := []model.Option{model.WithTemperature(float32(effectiveTemperature(params)))}
	if params.MaxLength > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxLength))
	}

	msg, err := chat.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("chat model generate failed: %w", err)
	}
	if msg == nil {
		return "", fmt.Errorf("chat model returned no message")
	}
	return msg.Content, nil
}

func (p *ChatModelProvider) Close() error {
	p.mu.Lock()
	p.chat = nil
	p.mu.Unlock()
	return nil
}
