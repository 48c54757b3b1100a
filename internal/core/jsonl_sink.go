package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Conversly/minivault/internal/types"
)

const InteractionLogFile = "log.jsonl"

// JSONLSink appends one JSON object per interaction to <dir>/log.jsonl.
//
// Lines are encoded by a dedicated zap core without level or message keys, so
// a record looks like:
//
//	{"timestamp":"2024-05-01T10:00:00.000Z","prompt":"hi","response":"Hello!","response_length":6}
//
// The core is written to directly instead of through a Logger so that write
// failures reach the caller.
type JSONLSink struct {
	path string
	file *os.File
	core zapcore.Core

	mu     sync.Mutex
	closed bool
}

func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, InteractionLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open interaction log %s: %w", path, err)
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	return &JSONLSink{
		path: path,
		file: f,
		core: zapcore.NewCore(enc, zapcore.Lock(f), zapcore.DebugLevel),
	}, nil
}

func (s *JSONLSink) Path() string { return s.path }

func (s *JSONLSink) Record(ctx context.Context, in types.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("interaction log %s is closed", s.path)
	}

	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: in.Timestamp.UTC()}
	err := s.core.Write(entry, []zapcore.Field{
		zap.String("prompt", in.Prompt),
		zap.String("response", in.Response),
		zap.Int("response_length", in.ResponseLength),
	})
	if err != nil {
		return fmt.Errorf("failed to append to interaction log: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.core.Sync()
	return s.file.Close()
}
