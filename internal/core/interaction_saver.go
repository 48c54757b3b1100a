package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/types"
	"github.com/Conversly/minivault/internal/utils"
)

// InteractionWriter stores a batch of interactions. Implemented by loaders.PostgresClient.
type InteractionWriter interface {
	BatchInsertInteractions(ctx context.Context, rows []types.Interaction) error
}

var ErrSaverStopped = errors.New("interaction saver stopped")

// InteractionSaver buffers interactions and writes them in batches from a
// single goroutine. Batches flush when full, on every tick and on Close.
type InteractionSaver struct {
	db            InteractionWriter
	ch            chan types.Interaction
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	stoppedCh     chan struct{}

	mu        sync.RWMutex
	stopped   bool
	stopOnce  sync.Once
	fallbacks sync.WaitGroup
}

const (
	defaultBatchSize       = 1000
	defaultFlushInterval   = 500 * time.Millisecond
	defaultChannelCapacity = 10000
	flushTimeout           = 5 * time.Second
)

type SaverOption func(*InteractionSaver)

func WithBatchSize(n int) SaverOption {
	return func(s *InteractionSaver) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) SaverOption {
	return func(s *InteractionSaver) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

func WithQueueCapacity(n int) SaverOption {
	return func(s *InteractionSaver) {
		if n >= 0 {
			s.ch = make(chan types.Interaction, n)
		}
	}
}

func NewInteractionSaver(db InteractionWriter, opts ...SaverOption) *InteractionSaver {
	s := &InteractionSaver{
		db:            db,
		ch:            make(chan types.Interaction, defaultChannelCapacity),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *InteractionSaver) run() {
	defer close(s.stoppedCh)
	batch := make([]types.Interaction, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case row := <-s.ch:
			batch = append(batch, row)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			for {
				select {
				case row := <-s.ch:
					batch = append(batch, row)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *InteractionSaver) write(batch []types.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.db.BatchInsertInteractions(ctx, batch); err != nil {
		utils.Zlog.Error("Failed to batch insert interactions", zap.Error(err), zap.Int("count", len(batch)))
		// retry once
		if err2 := s.db.BatchInsertInteractions(ctx, batch); err2 != nil {
			utils.Zlog.Error("Retry failed for batch insert interactions", zap.Error(err2), zap.Int("count", len(batch)))
		}
	}
}

// Record enqueues in without blocking. When the queue is full the row is
// written directly in the background.
func (s *InteractionSaver) Record(ctx context.Context, in types.Interaction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrSaverStopped
	}

	select {
	case s.ch <- in:
	default:
		s.fallbacks.Add(1)
		go func() {
			defer s.fallbacks.Done()
			s.write([]types.Interaction{in})
		}()
	}
	return nil
}

// Close stops accepting rows, flushes what is queued and waits for the writer.
func (s *InteractionSaver) Close() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.stopCh)
		<-s.stoppedCh
		s.fallbacks.Wait()
	})
	return nil
}
