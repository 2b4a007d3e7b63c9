// Package presence tracks ephemeral per-user editing state for one document
// session. Entries are never persisted.
package presence

import "docsync/internal/models"

// Entry is one user's live state in a session.
type Entry struct {
	UserID    string                 `json:"id"`
	Name      string                 `json:"name"`
	Color     string                 `json:"color"`
	Cursor    *models.CursorRange    `json:"cursor"`
	Selection *models.SelectionRange `json:"selection"`
}

// Registry maps userId to its presence entry, preserving insertion order for
// roster broadcasts. It holds no locks; the owning session serializes access.
type Registry struct {
	order  []string
	byUser map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]*Entry)}
}

// Set inserts or replaces a user's entry. A replaced user keeps its original
// position in the roster.
func (r *Registry) Set(e Entry) {
	if _, ok := r.byUser[e.UserID]; !ok {
		r.order = append(r.order, e.UserID)
	}
	stored := e
	r.byUser[e.UserID] = &stored
}

func (r *Registry) Get(userID string) (Entry, bool) {
	e, ok := r.byUser[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetCursor updates the cursor and selection of an existing entry. It
// reports false when the user has no entry in this session.
func (r *Registry) SetCursor(userID string, cursor *models.CursorRange, selection *models.SelectionRange) bool {
	e, ok := r.byUser[userID]
	if !ok {
		return false
	}
	e.Cursor = cursor
	e.Selection = selection
	return true
}

func (r *Registry) Remove(userID string) {
	if _, ok := r.byUser[userID]; !ok {
		return
	}
	delete(r.byUser, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Entries returns a copy of all entries in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byUser[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.byUser) }
