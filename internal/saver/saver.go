// Package saver coalesces bursty edits into infrequent durable writes. Each
// document gets at most one pending timer; re-arming replaces it.
package saver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"docsync/internal/metrics"
	"docsync/internal/storage"
)

const defaultWriteTimeout = 10 * time.Second

// SnapshotFunc captures a document's durable form at write time, so a timer
// armed early still persists the latest state when it fires.
type SnapshotFunc func() storage.Snapshot

type pendingSave struct {
	timer *time.Timer
	snap  SnapshotFunc
}

// Scheduler debounces snapshot writes per document.
type Scheduler struct {
	store        storage.Store
	log          *zap.Logger
	delay        time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSave
}

func New(store storage.Store, log *zap.Logger, delay time.Duration) *Scheduler {
	return &Scheduler{
		store:        store,
		log:          log,
		delay:        delay,
		writeTimeout: defaultWriteTimeout,
		pending:      make(map[string]*pendingSave),
	}
}

// Arm starts the quiet-period timer for a document, replacing any timer
// already pending for it.
func (s *Scheduler) Arm(documentID string, snap SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[documentID]; ok {
		prev.timer.Stop()
	}
	p := &pendingSave{snap: snap}
	p.timer = time.AfterFunc(s.delay, func() { s.fire(documentID, p) })
	s.pending[documentID] = p
}

func (s *Scheduler) fire(documentID string, p *pendingSave) {
	s.mu.Lock()
	cur, ok := s.pending[documentID]
	if !ok || cur != p {
		// Re-armed or flushed while the timer was firing; the newer
		// owner is responsible for the write.
		s.mu.Unlock()
		return
	}
	delete(s.pending, documentID)
	s.mu.Unlock()
	_ = s.write(context.Background(), documentID, p.snap)
}

// FlushNow cancels any pending timer for the document and writes
// synchronously. Used on last-disconnect eviction and during shutdown.
func (s *Scheduler) FlushNow(ctx context.Context, documentID string, snap SnapshotFunc) error {
	s.mu.Lock()
	if p, ok := s.pending[documentID]; ok {
		p.timer.Stop()
		delete(s.pending, documentID)
	}
	s.mu.Unlock()
	return s.write(ctx, documentID, snap)
}

// FlushAll drains every pending timer, writing each document once. It stops
// early when the context expires; undrained documents are logged and left
// to the next startup's snapshots.
func (s *Scheduler) FlushAll(ctx context.Context) {
	s.mu.Lock()
	drained := s.pending
	s.pending = make(map[string]*pendingSave)
	for _, p := range drained {
		p.timer.Stop()
	}
	s.mu.Unlock()

	for documentID, p := range drained {
		if ctx.Err() != nil {
			s.log.Error("shutdown grace period expired with unsaved documents",
				zap.String("documentId", documentID))
			return
		}
		_ = s.write(ctx, documentID, p.snap)
	}
}

// Pending reports the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// write persists a snapshot with one immediate retry. A write that still
// fails is logged and dropped; the in-memory session stays authoritative and
// the next arm or flush tries again.
func (s *Scheduler) write(ctx context.Context, documentID string, snap SnapshotFunc) error {
	shot := snap()
	err := s.save(ctx, documentID, shot)
	if err != nil {
		s.log.Warn("snapshot write failed, retrying",
			zap.String("documentId", documentID), zap.Error(err))
		err = s.save(ctx, documentID, shot)
	}
	if err != nil {
		metrics.SnapshotSaveFailures.Inc()
		s.log.Error("snapshot write failed after retry",
			zap.String("documentId", documentID), zap.Error(err))
		return err
	}
	metrics.SnapshotSaves.Inc()
	return nil
}

func (s *Scheduler) save(ctx context.Context, documentID string, shot storage.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.store.SaveSnapshot(ctx, documentID, shot)
}
