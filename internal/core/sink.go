package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/types"
	"github.com/Conversly/minivault/internal/utils"
)

// InteractionSink persists interactions. Record must be safe for concurrent use.
type InteractionSink interface {
	Record(ctx context.Context, in types.Interaction) error
	Close() error
}

// Tee writes to a primary sink and mirrors to secondaries. Only primary
// failures are returned; secondary failures are logged.
type Tee struct {
	primary     InteractionSink
	secondaries []InteractionSink
}

func NewTee(primary InteractionSink, secondaries ...InteractionSink) *Tee {
	return &Tee{primary: primary, secondaries: secondaries}
}

func (t *Tee) Record(ctx context.Context, in types.Interaction) error {
	if err := t.primary.Record(ctx, in); err != nil {
		return err
	}
	for _, s := range t.secondaries {
		if err := s.Record(ctx, in); err != nil {
			utils.Zlog.Warn("Failed to mirror interaction", zap.Error(err), zap.String("id", in.ID.String()))
		}
	}
	return nil
}

func (t *Tee) Close() error {
	var firstErr error
	for _, s := range t.secondaries {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
