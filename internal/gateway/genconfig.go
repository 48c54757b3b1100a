package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/Conversly/minivault/internal/config"
	"github.com/Conversly/minivault/internal/llm"
)

// GenerationConfig holds the parameters applied to every generation call.
type GenerationConfig struct {
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
	DoSample    bool    `json:"do_sample"`
	PadTokenID  *int    `json:"pad_token_id"`
	// Extra keeps keys the store does not know about; they reach the backend as-is.
	Extra map[string]any `json:"-"`
}

func DefaultGenerationConfig() GenerationConfig {
	d := config.DefaultGeneration()
	return FromDefaults(d)
}

func FromDefaults(d config.GenerationDefaults) GenerationConfig {
	return GenerationConfig{
		MaxLength:   d.MaxLength,
		Temperature: d.Temperature,
		DoSample:    d.DoSample,
		PadTokenID:  copyInt(d.PadTokenID),
	}
}

// Params converts the config to provider parameters.
func (c GenerationConfig) Params() llm.Params {
	return llm.Params{
		MaxLength:   c.MaxLength,
		Temperature: c.Temperature,
		DoSample:    c.DoSample,
		PadTokenID:  copyInt(c.PadTokenID),
		Extra:       c.clone().Extra,
	}
}

// AsMap flattens the config, extra keys included.
func (c GenerationConfig) AsMap() map[string]any {
	out := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["max_length"] = c.MaxLength
	out["temperature"] = c.Temperature
	out["do_sample"] = c.DoSample
	if c.PadTokenID != nil {
		out["pad_token_id"] = *c.PadTokenID
	} else {
		out["pad_token_id"] = nil
	}
	return out
}

func (c GenerationConfig) clone() GenerationConfig {
	out := c
	out.PadTokenID = copyInt(c.PadTokenID)
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// apply overwrites the keys present in update. Values are type checked, not range checked.
func (c *GenerationConfig) apply(update map[string]any) error {
	for key, val := range update {
		switch key {
		case "max_length":
			n, ok := asInt(val)
			if !ok {
				return fmt.Errorf("max_length must be an integer, got %v", val)
			}
			c.MaxLength = n
		case "temperature":
			f, ok := asFloat(val)
			if !ok {
				return fmt.Errorf("temperature must be a number, got %v", val)
			}
			c.Temperature = f
		case "do_sample", "sample":
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("%s must be a boolean, got %v", key, val)
			}
			c.DoSample = b
		case "pad_token_id":
			if val == nil {
				c.PadTokenID = nil
				continue
			}
			n, ok := asInt(val)
			if !ok {
				return fmt.Errorf("pad_token_id must be an integer, got %v", val)
			}
			c.PadTokenID = &n
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[key] = val
		}
	}
	return nil
}

// ConfigStore is the shared generation config. Merges are last-writer-wins;
// a generation reads one snapshot and never sees a half-applied merge.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg GenerationConfig
}

func NewConfigStore(initial GenerationConfig) *ConfigStore {
	return &ConfigStore{cfg: initial.clone()}
}

// Merge overwrites the keys present in update and keeps all others.
// A rejected update leaves the store untouched.
func (s *ConfigStore) Merge(update map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()
	if err := next.apply(update); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

func (s *ConfigStore) Snapshot() GenerationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// With returns the current snapshot with overrides applied; the store is not modified.
func (s *ConfigStore) With(overrides map[string]any) (GenerationConfig, error) {
	cfg := s.Snapshot()
	if err := cfg.apply(overrides); err != nil {
		return GenerationConfig{}, err
	}
	return cfg, nil
}

// initPadTokenID fills pad_token_id once after load unless it was configured explicitly.
func (s *ConfigStore) initPadTokenID(id *int) {
	if id == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.PadTokenID == nil {
		s.cfg.PadTokenID = copyInt(id)
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < math.MinInt || i > math.MaxInt {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
