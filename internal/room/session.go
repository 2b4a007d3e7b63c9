package room

import (
	"sync"
	"time"

	"docsync/internal/models"
	"docsync/internal/presence"
	"docsync/internal/storage"
)

// Doc is the replicated-text primitive a session mutates. Implementations
// must merge concurrent updates commutatively and idempotently, and must
// fail atomically on malformed input. A Doc need not be goroutine safe; the
// session serializes every access to it.
type Doc interface {
	ApplyUpdate(update []byte) error
	EncodeState() []byte
	Text() string
	InsertAt(index int, s string) ([]byte, error)
}

// Session is the single authoritative in-memory state for one open
// document: the shared Doc, the attached clients and their presence. All
// mutation is serialized on the session mutex; sends happen inside the
// critical section so every client observes broadcasts in application
// order.
type Session struct {
	DocumentID string

	mu        sync.Mutex
	doc       Doc
	clients   map[*Client]struct{}
	presence  *presence.Registry
	createdAt time.Time
	closed    bool
}

func newSession(documentID string, doc Doc) *Session {
	return &Session{
		DocumentID: documentID,
		doc:        doc,
		clients:    make(map[*Client]struct{}),
		presence:   presence.NewRegistry(),
		createdAt:  time.Now(),
	}
}

// Attach adds a client and its presence entry, announces the newcomer to
// the rest of the room and returns the state snapshot plus roster for the
// joiner. users-list goes to everyone so existing members see the updated
// roster; user-joined excludes the joiner itself. Attaching to a closed
// session reports ok false; the caller must resolve a fresh session.
func (s *Session) Attach(c *Client, entry presence.Entry) (state []byte, content string, roster []presence.Entry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, "", nil, false
	}
	s.clients[c] = struct{}{}
	s.presence.Set(entry)

	state = s.doc.EncodeState()
	content = s.doc.Text()
	roster = s.presence.Entries()

	s.broadcastLocked(c, models.Event{Type: models.EventUserJoined, Data: models.UserJoined{
		UserID: entry.UserID,
		User:   models.UserInfo{Name: entry.Name, Color: entry.Color},
	}})
	s.broadcastLocked(c, models.Event{Type: models.EventUsersList, Data: roster})
	return state, content, roster, true
}

// closeIfEmpty marks the session unusable for further attaches, unless a
// client is present or it is already closed.
func (s *Session) closeIfEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.clients) > 0 {
		return false
	}
	s.closed = true
	return true
}

// Detach removes a client and its presence, tells the remaining members and
// reports whether the room is now empty.
func (s *Session) Detach(c *Client) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; !ok {
		return len(s.clients) == 0
	}
	delete(s.clients, c)
	s.presence.Remove(c.UserID)

	s.broadcastLocked(c, models.Event{Type: models.EventUserLeft, Data: models.UserLeft{UserID: c.UserID}})
	return len(s.clients) == 0
}

// ApplyUpdate merges a delta into the shared doc and relays the raw bytes
// to every client except the origin. A malformed delta leaves the doc
// untouched and nothing is relayed; the caller reports the error to the
// origin alone.
func (s *Session) ApplyUpdate(update []byte, origin *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.doc.ApplyUpdate(update); err != nil {
		return err
	}
	s.broadcastLocked(origin, models.Event{Type: models.EventDocumentUpdate, Data: models.DocumentUpdate{
		Update: models.IntBytes(update),
	}})
	return nil
}

// UpdatePresence stores a user's cursor/selection and relays a presence
// delta to the rest of the room. Unknown users are ignored.
func (s *Session) UpdatePresence(c *Client, cursor *models.CursorRange, selection *models.SelectionRange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.presence.SetCursor(c.UserID, cursor, selection) {
		return false
	}
	s.broadcastLocked(c, models.Event{Type: models.EventUserPresence, Data: models.UserPresence{
		UserID:    c.UserID,
		Cursor:    cursor,
		Selection: selection,
	}})
	return true
}

// Snapshot captures the durable form of the document for the persistence
// scheduler.
func (s *Session) Snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.Snapshot{State: s.doc.EncodeState(), Text: s.doc.Text()}
}

// Empty reports whether no clients are attached.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients) == 0
}

// ClientCount reports the number of attached clients.
func (s *Session) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Presence returns the roster in join order.
func (s *Session) Presence() []presence.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence.Entries()
}

// Age reports how long the session has been open.
func (s *Session) Age() time.Duration {
	return time.Since(s.createdAt)
}

func (s *Session) broadcastLocked(skip *Client, evt models.Event) {
	for c := range s.clients {
		if c == skip {
			continue
		}
		c.Send(evt)
	}
}
