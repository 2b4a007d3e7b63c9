package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Event is the JSON frame exchanged over the collaboration socket.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Event types carried on the collaboration socket.
const (
	EventJoinDocument   = "join-document"
	EventDocumentState  = "document-state"
	EventDocumentUpdate = "document-update"
	EventCursorUpdate   = "cursor-update"
	EventUserPresence   = "user-presence"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventUsersList      = "users-list"
	EventError          = "error"
)

// IntBytes is a byte slice carried over JSON as an array of integers, which
// is what browser clients produce with Array.from(new Uint8Array(...)).
type IntBytes []byte

func (b IntBytes) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(b)*4+2)
	buf = append(buf, '[')
	for i, v := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	return append(buf, ']'), nil
}

func (b *IntBytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type JoinDocument struct {
	DocumentID string `json:"documentId"`
}

type DocumentState struct {
	State   IntBytes `json:"state"`
	Content string   `json:"content"`
}

type DocumentUpdate struct {
	Update IntBytes `json:"update"`
}

// CursorRange is the caret span reported by an editor client.
type CursorRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SelectionRange is the highlighted span reported by an editor client.
type SelectionRange struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

type CursorUpdate struct {
	Cursor    *CursorRange    `json:"cursor"`
	Selection *SelectionRange `json:"selection"`
}

type UserPresence struct {
	UserID    string          `json:"userId"`
	Cursor    *CursorRange    `json:"cursor"`
	Selection *SelectionRange `json:"selection"`
}

type UserInfo struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type UserJoined struct {
	UserID string   `json:"userId"`
	User   UserInfo `json:"user"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
