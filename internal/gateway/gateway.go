package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Conversly/minivault/internal/llm"
	"github.com/Conversly/minivault/internal/utils"
)

type State int32

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// minResponseRunes is the shortest answer returned as-is.
const minResponseRunes = 5

type Option func(*Gateway)

// WithWorkers bounds the number of concurrent provider calls.
func WithWorkers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.workers = int64(n)
		}
	}
}

func WithLoadTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.loadTimeout = d }
}

// WithSystemPrompt replaces the default system turn. Empty keeps the default.
func WithSystemPrompt(s string) Option {
	return func(g *Gateway) {
		if s != "" {
			g.systemPrompt = s
		}
	}
}

// WithMaxPromptChars truncates user prompts to n characters before templating. 0 disables it.
func WithMaxPromptChars(n int) Option {
	return func(g *Gateway) { g.maxPromptChars = n }
}

// Gateway owns the model lifecycle. Loading starts in the background as soon
// as the gateway is created; State moves Loading -> Ready or Loading -> Failed once.
type Gateway struct {
	provider       llm.Provider
	store          *ConfigStore
	workers        int64
	loadTimeout    time.Duration
	systemPrompt   string
	maxPromptChars int

	sem   *semaphore.Weighted
	state atomic.Int32
	done  chan struct{}

	// written before done is closed
	info    llm.ModelInfo
	loadErr error

	closeOnce sync.Once
	closeErr  error
}

func New(provider llm.Provider, store *ConfigStore, opts ...Option) *Gateway {
	g := &Gateway{
		provider:     provider,
		store:        store,
		workers:      1,
		systemPrompt: defaultSystemPrompt,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.sem = semaphore.NewWeighted(g.workers)
	g.state.Store(int32(StateLoading))

	go g.load()
	return g
}

func (g *Gateway) load() {
	defer close(g.done)

	ctx := context.Background()
	if g.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	utils.Zlog.Info("Loading model")

	info, err := g.loadProvider(ctx)
	if err != nil {
		g.loadErr = err
		g.state.Store(int32(StateFailed))
		utils.Zlog.Error("Failed to load model", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}

	g.info = info
	g.store.initPadTokenID(info.PadTokenID)
	g.state.Store(int32(StateReady))
	utils.Zlog.Info("Model loaded",
		zap.String("model", info.Name),
		zap.Duration("elapsed", time.Since(start)))
}

func (g *Gateway) loadProvider(ctx context.Context) (info llm.ModelInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during model load: %v", r)
		}
	}()
	return g.provider.Load(ctx)
}

func (g *Gateway) State() State {
	return State(g.state.Load())
}

func (g *Gateway) Loaded() bool {
	return g.State() == StateReady
}

// Done is closed once loading has finished, successfully or not.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until loading finishes or ctx is done and returns the state at that point.
func (g *Gateway) Wait(ctx context.Context) State {
	select {
	case <-g.done:
	case <-ctx.Done():
	}
	return g.State()
}

// LoadErr returns the load failure, if any, once loading has finished.
func (g *Gateway) LoadErr() error {
	select {
	case <-g.done:
		return g.loadErr
	default:
		return nil
	}
}

// ModelName is the name reported by the backend, or "" until the model is ready.
func (g *Gateway) ModelName() string {
	if !g.Loaded() {
		return ""
	}
	return g.info.Name
}

func (g *Gateway) Config() GenerationConfig {
	return g.store.Snapshot()
}

// Update merges new values into the shared generation config.
func (g *Gateway) Update(update map[string]any) error {
	if err := g.store.Merge(update); err != nil {
		return err
	}
	utils.Zlog.Info("Generation config updated", zap.Any("config", g.Config().AsMap()))
	return nil
}

// Generate produces a response for prompt. Overrides apply to this call only.
// Errors are ErrModelLoading, ErrModelFailed or *GenerationError; see Message.
func (g *Gateway) Generate(ctx context.Context, prompt string, overrides map[string]any) (string, error) {
	switch g.State() {
	case StateLoading:
		return "", ErrModelLoading
	case StateFailed:
		return "", ErrModelFailed
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return MsgInvalidPrompt, nil
	}

	cfg, err := g.store.With(overrides)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	params := cfg.Params()
	params.NumReturnSequences = 1

	formatted := formatPrompt(g.systemPrompt, truncateRunes(prompt, g.maxPromptChars))

	start := time.Now()
	raw, err := g.infer(ctx, formatted, params)
	if err != nil {
		utils.Zlog.Error("Generation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", &GenerationError{Err: err}
	}

	response := strings.TrimSpace(strings.TrimPrefix(raw, formatted))
	if utf8.RuneCountInString(response) < minResponseRunes {
		response = MsgNeedMoreDetail
	}

	utils.Zlog.Debug("Generated response",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.Int("response_length", utf8.RuneCountInString(response)),
		zap.Duration("elapsed", time.Since(start)))
	return response, nil
}

// infer runs one provider call. Client cancellation does not abort a call
// that already started; the worker slot is held until the backend returns.
func (g *Gateway) infer(ctx context.Context, prompt string, params llm.Params) (text string, err error) {
	ctx = context.WithoutCancel(ctx)
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during inference: %v", r)
		}
	}()
	return g.provider.Generate(ctx, prompt, params)
}

// Close waits for loading to finish or ctx to end, then releases the backend.
// Safe to call more than once; later calls return the first result.
func (g *Gateway) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		var waitErr error
		select {
		case <-g.done:
		case <-ctx.Done():
			waitErr = fmt.Errorf("model still loading at shutdown: %w", ctx.Err())
			utils.Zlog.Warn("Closing model gateway before load finished", zap.Error(ctx.Err()))
		}
		if err := g.provider.Close(); err != nil {
			g.closeErr = err
		} else {
			g.closeErr = waitErr
		}
		utils.Zlog.Info("Model gateway closed")
	})
	return g.closeErr
}

// truncateRunes keeps the first limit characters of s. limit <= 0 keeps everything.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
