package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Conversly/minivault/internal/llm"
)

type fakeProvider struct {
	release chan struct{} // Load blocks until closed, when set
	loadErr error
	info    llm.ModelInfo

	mu         sync.Mutex
	reply      func(prompt string) string
	genErr     error
	panicMsg   string
	prompts    []string
	params     []llm.Params
	closeCalls int
}

func (f *fakeProvider) Load(ctx context.Context) (llm.ModelInfo, error) {
	if f.release != nil {
		<-f.release
	}
	if f.loadErr != nil {
		return llm.ModelInfo{}, f.loadErr
	}
	return f.info, nil
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, params llm.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.genErr != nil {
		return "", f.genErr
	}
	if f.reply != nil {
		return f.reply(prompt), nil
	}
	return prompt + " Paris is the capital of France.", nil
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newReadyGateway(t *testing.T, p *fakeProvider) (*Gateway, *ConfigStore) {
	t.Helper()
	store := NewConfigStore(DefaultGenerationConfig())
	g := New(p, store)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if st := g.Wait(ctx); st != StateReady {
		t.Fatalf("state = %s, want ready (err: %v)", st, g.LoadErr())
	}
	return g, store
}

func TestGatewayLoadingThenReady(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{}), info: llm.ModelInfo{Name: "tiny"}}
	g := New(p, NewConfigStore(DefaultGenerationConfig()))

	if g.State() != StateLoading || g.Loaded() {
		t.Fatalf("expected loading state, got %s", g.State())
	}
	if g.ModelName() != "" {
		t.Errorf("ModelName before load = %q", g.ModelName())
	}
	if _, err := g.Generate(context.Background(), "hi", nil); !errors.Is(err, ErrModelLoading) {
		t.Fatalf("expected ErrModelLoading, got %v", err)
	}
	if !errors.Is(ErrModelLoading, ErrModelUnavailable) {
		t.Fatal("ErrModelLoading should wrap ErrModelUnavailable")
	}

	close(p.release)
	<-g.Done()

	if !g.Loaded() || g.ModelName() != "tiny" {
		t.Fatalf("state = %s model = %q", g.State(), g.ModelName())
	}
}

func TestGatewayLoadFailure(t *testing.T) {
	p := &fakeProvider{loadErr: errors.New("weights not found")}
	g := New(p, NewConfigStore(DefaultGenerationConfig()))
	<-g.Done()

	if g.State() != StateFailed {
		t.Fatalf("state = %s, want failed", g.State())
	}
	if g.LoadErr() == nil {
		t.Error("LoadErr should report the failure")
	}
	_, err := g.Generate(context.Background(), "hello", nil)
	if !errors.Is(err, ErrModelFailed) {
		t.Fatalf("expected ErrModelFailed, got %v", err)
	}
	if msg, ok := Message(err); !ok || msg != MsgModelFailed {
		t.Errorf("Message = %q, %v", msg, ok)
	}
	if p.calls() != 0 {
		t.Error("provider should not be invoked when load failed")
	}
}

func TestGatewayGenerateStripsEcho(t *testing.T) {
	p := &fakeProvider{info: llm.ModelInfo{Name: "tiny"}}
	g, _ := newReadyGateway(t, p)

	out, err := g.Generate(context.Background(), "  What is the capital of France?  ", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != "Paris is the capital of France." {
		t.Errorf("out = %q", out)
	}

	want := "<|system|>You are a helpful chat AI assistant.<|end|><|user|>What is the capital of France?<|end|><|assistant|>"
	if p.prompts[0] != want {
		t.Errorf("formatted prompt = %q", p.prompts[0])
	}
	params := p.params[0]
	if params.NumReturnSequences != 1 {
		t.Errorf("unexpected call params: %+v", params)
	}
	if params.MaxLength != 500 || params.Temperature != 0.7 || !params.DoSample {
		t.Errorf("defaults not applied: %+v", params)
	}
}

func TestGatewayGenerateWithoutEcho(t *testing.T) {
	p := &fakeProvider{reply: func(string) string { return "\n  A full sentence answer. " }}
	g, _ := newReadyGateway(t, p)

	out, err := g.Generate(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != "A full sentence answer." {
		t.Errorf("out = %q", out)
	}
}

func TestGatewayEmptyPrompt(t *testing.T) {
	p := &fakeProvider{}
	g, _ := newReadyGateway(t, p)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		out, err := g.Generate(context.Background(), prompt, nil)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if out != MsgInvalidPrompt {
			t.Errorf("Generate(%q) = %q", prompt, out)
		}
	}
	if p.calls() != 0 {
		t.Error("provider should not be invoked for empty prompts")
	}
}

func TestGatewayShortOutput(t *testing.T) {
	p := &fakeProvider{reply: func(prompt string) string { return prompt + " ok" }}
	g, _ := newReadyGateway(t, p)

	out, err := g.Generate(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != MsgNeedMoreDetail {
		t.Errorf("out = %q", out)
	}
}

func TestGatewayOverridesDoNotPersist(t *testing.T) {
	p := &fakeProvider{}
	g, store := newReadyGateway(t, p)

	_, err := g.Generate(context.Background(), "hello there", map[string]any{"max_length": 10, "temperature": 0.1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := p.params[0]; got.MaxLength != 10 || got.Temperature != 0.1 {
		t.Errorf("overrides not applied: %+v", got)
	}
	snap := store.Snapshot()
	if snap.MaxLength != 500 || snap.Temperature != 0.7 {
		t.Errorf("store mutated by overrides: %+v", snap)
	}
}

func TestGatewayGenerationFailure(t *testing.T) {
	p := &fakeProvider{genErr: errors.New("CUDA out of memory")}
	g, _ := newReadyGateway(t, p)

	_, err := g.Generate(context.Background(), "hello", nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T %v", err, err)
	}
	msg, ok := Message(err)
	if !ok {
		t.Fatal("Message should recognise generation errors")
	}
	if !strings.HasPrefix(msg, "Sorry, I encountered an error while generating a response: ") || !strings.Contains(msg, "CUDA out of memory") {
		t.Errorf("msg = %q", msg)
	}
}

func TestGatewayRecoversProviderPanic(t *testing.T) {
	p := &fakeProvider{panicMsg: "index out of range"}
	g, _ := newReadyGateway(t, p)

	_, err := g.Generate(context.Background(), "hello", nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !strings.Contains(err.Error(), "index out of range") {
		t.Fatalf("expected recovered panic as GenerationError, got %v", err)
	}

	// the worker slot must have been released
	p.mu.Lock()
	p.panicMsg = ""
	p.mu.Unlock()
	if _, err := g.Generate(context.Background(), "hello again", nil); err != nil {
		t.Fatalf("gateway unusable after panic: %v", err)
	}
}

func TestGatewayBadOverrideType(t *testing.T) {
	p := &fakeProvider{}
	g, _ := newReadyGateway(t, p)

	_, err := g.Generate(context.Background(), "hello", map[string]any{"max_length": "long"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if p.calls() != 0 {
		t.Error("provider should not be invoked with invalid overrides")
	}
}

func TestGatewaySetsPadTokenOnLoad(t *testing.T) {
	pad := 151643
	p := &fakeProvider{info: llm.ModelInfo{Name: "tiny", PadTokenID: &pad}}
	g, store := newReadyGateway(t, p)

	if got := store.Snapshot().PadTokenID; got == nil || *got != pad {
		t.Fatalf("pad_token_id = %v", got)
	}
	if _, err := g.Generate(context.Background(), "hello", nil); err != nil {
		t.Fatal(err)
	}
	if got := p.params[0].PadTokenID; got == nil || *got != pad {
		t.Errorf("pad_token_id not forwarded: %v", got)
	}
}

func TestGatewayKeepsConfiguredPadToken(t *testing.T) {
	loaded, configured := 2, 7
	initial := DefaultGenerationConfig()
	initial.PadTokenID = &configured
	p := &fakeProvider{info: llm.ModelInfo{PadTokenID: &loaded}}
	store := NewConfigStore(initial)
	g := New(p, store)
	<-g.Done()

	if got := store.Snapshot().PadTokenID; got == nil || *got != configured {
		t.Fatalf("pad_token_id = %v, want %d", got, configured)
	}
}

func TestGatewayUpdate(t *testing.T) {
	p := &fakeProvider{}
	g, _ := newReadyGateway(t, p)

	if err := g.Update(map[string]any{"temperature": 0.2}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), "hello", nil); err != nil {
		t.Fatal(err)
	}
	if got := p.params[0]; got.Temperature != 0.2 || got.MaxLength != 500 {
		t.Errorf("params = %+v", got)
	}
}

func TestGatewayCloseIdempotent(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{})}
	g := New(p, NewConfigStore(DefaultGenerationConfig()))

	closed := make(chan struct{})
	go func() {
		_ = g.Close(context.Background())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before load finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(p.release)
	<-closed
	if err := g.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.closeCalls != 1 {
		t.Errorf("provider closed %d times", p.closeCalls)
	}
}

func TestGatewayBoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	p := &blockingProvider{enter: func() {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}}
	g := New(p, NewConfigStore(DefaultGenerationConfig()), WithWorkers(2))
	<-g.Done()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Generate(context.Background(), "concurrent prompt", nil)
		}()
	}
	wg.Wait()

	if maxSeen > 2 {
		t.Fatalf("saw %d concurrent provider calls, want at most 2", maxSeen)
	}
}

type blockingProvider struct {
	enter func()
}

func (b *blockingProvider) Load(ctx context.Context) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: "blocking"}, nil
}

func (b *blockingProvider) Generate(ctx context.Context, prompt string, params llm.Params) (string, error) {
	b.enter()
	return prompt + " a long enough answer", nil
}

func (b *blockingProvider) Close() error { return nil }

func TestGatewayTruncatesUserPromptInsideTemplate(t *testing.T) {
	p := &fakeProvider{reply: func(prompt string) string { return prompt + " The answer." }}
	store := NewConfigStore(DefaultGenerationConfig())
	g := New(p, store, WithMaxPromptChars(20))
	<-g.Done()

	out, err := g.Generate(context.Background(), strings.Repeat("word ", 40), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != "The answer." {
		t.Errorf("out = %q, want only the generated text", out)
	}

	sent := p.prompts[0]
	want := "<|system|>You are a helpful chat AI assistant.<|end|><|user|>" +
		strings.Repeat("word ", 4) + "<|end|><|assistant|>"
	if sent != want {
		t.Errorf("sent prompt = %q, want %q", sent, want)
	}
}

func TestGatewaySystemPromptOption(t *testing.T) {
	p := &fakeProvider{}
	g := New(p, NewConfigStore(DefaultGenerationConfig()), WithSystemPrompt("Answer tersely."))
	<-g.Done()

	out, err := g.Generate(context.Background(), "capital of France?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Paris is the capital of France." {
		t.Errorf("out = %q", out)
	}
	if !strings.HasPrefix(p.prompts[0], "<|system|>Answer tersely.<|end|>") {
		t.Errorf("sent prompt = %q", p.prompts[0])
	}

	// empty keeps the default
	g2 := New(&fakeProvider{}, NewConfigStore(DefaultGenerationConfig()), WithSystemPrompt(""))
	<-g2.Done()
	if g2.systemPrompt != defaultSystemPrompt {
		t.Errorf("systemPrompt = %q", g2.systemPrompt)
	}
}

func TestGatewayCloseBoundedByContext(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{})}
	defer close(p.release)
	g := New(p, NewConfigStore(DefaultGenerationConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- g.Close(ctx) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Close err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after its context expired")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeCalls != 1 {
		t.Errorf("provider closed %d times", p.closeCalls)
	}
}

func TestGatewayConfigReflectsUpdates(t *testing.T) {
	g, _ := newReadyGateway(t, &fakeProvider{})

	if err := g.Update(map[string]any{"max_length": 42}); err != nil {
		t.Fatal(err)
	}
	cfg := g.Config()
	if cfg.MaxLength != 42 {
		t.Errorf("MaxLength = %d", cfg.MaxLength)
	}

	cfg.MaxLength = 1
	if g.Config().MaxLength != 42 {
		t.Error("Config must return a copy")
	}
}
