// Package room owns the lifecycle of per-document editing sessions: lazy
// hydration from storage, attach/detach of connections, serialized mutation
// of the shared document and flush-then-evict when the last editor leaves.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docsync/internal/events"
	"docsync/internal/metrics"
	"docsync/internal/presence"
	"docsync/internal/saver"
	"docsync/internal/storage"
)

const defaultLoadTimeout = 5 * time.Second

// Config wires a Registry's collaborators.
type Config struct {
	Log    *zap.Logger
	Store  storage.Store
	Saver  *saver.Scheduler
	NewDoc func() Doc
	// Events may be nil; lifecycle publishing is optional.
	Events *events.Publisher
	// LoadTimeout bounds the join-time storage read.
	LoadTimeout time.Duration
}

// sessionEntry memoizes an in-flight or completed hydration so concurrent
// first-joins for the same document trigger exactly one storage load.
type sessionEntry struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// Registry maps documentId to its one live session.
type Registry struct {
	log         *zap.Logger
	store       storage.Store
	saver       *saver.Scheduler
	newDoc      func() Doc
	events      *events.Publisher
	loadTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewRegistry(cfg Config) *Registry {
	timeout := cfg.LoadTimeout
	if timeout == 0 {
		timeout = defaultLoadTimeout
	}
	return &Registry{
		log:         cfg.Log,
		store:       cfg.Store,
		saver:       cfg.Saver,
		newDoc:      cfg.NewDoc,
		events:      cfg.Events,
		loadTimeout: timeout,
		sessions:    make(map[string]*sessionEntry),
	}
}

// GetOrCreate returns the live session for a document, hydrating it from
// storage on first join. Callers racing on a never-seen documentId share a
// single hydration; a failed hydration is not cached.
func (r *Registry) GetOrCreate(ctx context.Context, documentID string) (*Session, error) {
	r.mu.Lock()
	if e, ok := r.sessions[documentID]; ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.sess, nil
	}
	e := &sessionEntry{ready: make(chan struct{})}
	r.sessions[documentID] = e
	r.mu.Unlock()

	sess, err := r.hydrate(ctx, documentID)
	if err != nil {
		e.err = err
		close(e.ready)
		r.mu.Lock()
		if cur, ok := r.sessions[documentID]; ok && cur == e {
			delete(r.sessions, documentID)
		}
		r.mu.Unlock()
		return nil, err
	}
	e.sess = sess
	close(e.ready)
	metrics.ActiveSessions.Inc()
	r.log.Info("document session opened", zap.String("documentId", documentID))
	return sess, nil
}

// hydrate builds the in-memory document: from the binary snapshot when one
// exists, from the persisted plain text for legacy documents, else empty.
func (r *Registry) hydrate(ctx context.Context, documentID string) (*Session, error) {
	loadCtx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	doc := r.newDoc()
	snap, err := r.store.LoadSnapshot(loadCtx, documentID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Brand new document, start empty.
	case err != nil:
		return nil, fmt.Errorf("load snapshot for %s: %w", documentID, err)
	case len(snap.State) > 0:
		if applyErr := doc.ApplyUpdate(snap.State); applyErr != nil {
			// Corrupt binary state; the plain-text projection is the
			// best remaining source of truth.
			r.log.Warn("stored state unreadable, seeding from plain text",
				zap.String("documentId", documentID), zap.Error(applyErr))
			doc = r.newDoc()
			if _, seedErr := doc.InsertAt(0, snap.Text); seedErr != nil {
				return nil, fmt.Errorf("seed document %s: %w", documentID, seedErr)
			}
		}
	case snap.Text != "":
		if _, seedErr := doc.InsertAt(0, snap.Text); seedErr != nil {
			return nil, fmt.Errorf("seed document %s: %w", documentID, seedErr)
		}
	}
	return newSession(documentID, doc), nil
}

// Attach resolves the session for a document and adds the client to it in
// one step. The session refuses attaches once closed, so a join racing a
// flush-then-evict either lands on the live session or re-hydrates a fresh
// one, never on an evicted carcass. The registry lock is never held across
// a broadcast; a stalled socket only ever delays its own document.
func (r *Registry) Attach(ctx context.Context, documentID string, c *Client, entry presence.Entry) (*Session, []byte, string, []presence.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, "", nil, err
		}
		sess, err := r.GetOrCreate(ctx, documentID)
		if err != nil {
			return nil, nil, "", nil, err
		}
		state, content, roster, ok := sess.Attach(c, entry)
		if !ok {
			// Closed between resolution and attach; hydrate again.
			continue
		}
		return sess, state, content, roster, nil
	}
}

// Detach removes a client from its session. When the room empties, the
// session is flushed synchronously and then evicted, unless someone joined
// again while the flush was in flight.
func (r *Registry) Detach(ctx context.Context, sess *Session, c *Client) {
	if !sess.Detach(c) {
		return
	}

	// Write before evicting so the next joiner hydrates exactly this
	// state. A failed write keeps the session registered; its edits stay
	// reachable until a later save succeeds.
	if err := r.saver.FlushNow(ctx, sess.DocumentID, sess.Snapshot); err != nil {
		r.log.Error("keeping empty session after failed flush",
			zap.String("documentId", sess.DocumentID), zap.Error(err))
		return
	}

	// Close first so racing attaches bounce to a fresh hydration, then drop
	// the map entry. The session's own lock is never taken while holding the
	// registry lock.
	if !sess.closeIfEmpty() {
		return
	}
	r.mu.Lock()
	if e, ok := r.sessions[sess.DocumentID]; ok && e.sess == sess {
		delete(r.sessions, sess.DocumentID)
	}
	r.mu.Unlock()

	metrics.ActiveSessions.Dec()
	r.log.Info("document session evicted",
		zap.String("documentId", sess.DocumentID),
		zap.Duration("age", sess.Age()))
	r.events.SessionClosed(ctx, sess.DocumentID, sess.Age())
}

// ScheduleSave arms the debounced persistence timer for a session.
func (r *Registry) ScheduleSave(sess *Session) {
	r.saver.Arm(sess.DocumentID, sess.Snapshot)
}

// Has reports whether a session is currently registered.
func (r *Registry) Has(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[documentID]
	return ok
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
