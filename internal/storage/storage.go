// Package storage persists document snapshots.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports a documentId with no persisted snapshot.
var ErrNotFound = errors.New("document not found")

// Snapshot is the durable form of a document: the binary CRDT state plus a
// plain-text projection kept as a fallback for legacy readers.
type Snapshot struct {
	State []byte
	Text  string
}

type Store interface {
	// LoadSnapshot returns ErrNotFound for a never-saved document. Legacy
	// documents may carry Text without State.
	LoadSnapshot(ctx context.Context, documentID string) (Snapshot, error)
	SaveSnapshot(ctx context.Context, documentID string, snap Snapshot) error
}
