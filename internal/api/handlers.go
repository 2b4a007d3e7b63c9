// Package api translates collaboration socket traffic into room operations.
// It is the only package that touches transport connections.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"docsync/internal/access"
	"docsync/internal/auth"
	"docsync/internal/metrics"
	"docsync/internal/models"
	"docsync/internal/presence"
	"docsync/internal/room"
)

// defaultUserColor is assigned when the identity token carries no color.
const defaultUserColor = "#4F46E5"

const accessCheckTimeout = 5 * time.Second

type Handlers struct {
	log       *zap.Logger
	registry  *room.Registry
	access    access.Verifier
	jwtSecret []byte
	upgrader  websocket.Upgrader
}

func NewHandlers(log *zap.Logger, registry *room.Registry, verifier access.Verifier, jwtSecret []byte) *Handlers {
	return &Handlers{
		log:       log,
		registry:  registry,
		access:    verifier,
		jwtSecret: jwtSecret,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) Ready(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ready"))
}

// CollabWS owns a connection from upgrade to disconnect.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	id, err := auth.FromRequest(r, h.jwtSecret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := room.NewClient(conn, uuid.NewString(), id.UserID, id.Name, id.Color)
	h.log.Info("client connected",
		zap.String("connectionId", client.ID), zap.String("userId", client.UserID))
	metrics.OpenConnections.Inc()
	defer metrics.OpenConnections.Dec()

	h.serve(r.Context(), client, conn)
}

// serve runs the per-connection event loop. A connection is attached to at
// most one session; once the loop exits for any reason the client is
// detached and the room told.
func (h *Handlers) serve(ctx context.Context, client *room.Client, conn *websocket.Conn) {
	var sess *room.Session
	defer func() {
		if sess != nil {
			h.registry.Detach(context.Background(), sess, client)
		}
		h.log.Info("client disconnected",
			zap.String("connectionId", client.ID), zap.String("userId", client.UserID))
	}()

	for {
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return
		}

		switch evt.Type {
		case models.EventJoinDocument:
			if sess != nil {
				// Already active on a document; switching rooms through
				// a second join is a protocol violation.
				h.log.Warn("join rejected, connection already active",
					zap.String("connectionId", client.ID),
					zap.String("documentId", sess.DocumentID))
				client.Send(errorEvent("Already joined a document"))
				continue
			}
			var req models.JoinDocument
			if err := decode(evt.Data, &req); err != nil || req.DocumentID == "" {
				client.Send(errorEvent("documentId required"))
				continue
			}
			sess = h.join(ctx, client, req.DocumentID)

		case models.EventDocumentUpdate:
			if sess == nil {
				continue
			}
			var req models.DocumentUpdate
			if err := decode(evt.Data, &req); err != nil || len(req.Update) == 0 {
				client.Send(errorEvent("Malformed update"))
				continue
			}
			if err := sess.ApplyUpdate([]byte(req.Update), client); err != nil {
				h.log.Warn("update rejected",
					zap.String("documentId", sess.DocumentID),
					zap.String("userId", client.UserID), zap.Error(err))
				client.Send(errorEvent("Malformed update"))
				continue
			}
			metrics.UpdatesRelayed.Inc()
			h.registry.ScheduleSave(sess)

		case models.EventCursorUpdate:
			if sess == nil {
				continue
			}
			var req models.CursorUpdate
			if err := decode(evt.Data, &req); err != nil {
				h.log.Warn("malformed cursor update",
					zap.String("documentId", sess.DocumentID),
					zap.String("userId", client.UserID), zap.Error(err))
				continue
			}
			sess.UpdatePresence(client, req.Cursor, req.Selection)

		default:
			h.log.Warn("unknown event type", zap.String("type", evt.Type))
			client.Send(errorEvent("Unknown event type"))
		}
	}
}

// join runs the access gate and attaches the client to the document's
// session. Failures are reported to the caller alone and leave no state
// behind; in particular a denied join never creates a session.
func (h *Handlers) join(ctx context.Context, client *room.Client, documentID string) *room.Session {
	checkCtx, cancel := context.WithTimeout(ctx, accessCheckTimeout)
	allowed, err := h.access.Check(checkCtx, documentID, client.UserID)
	cancel()
	if err != nil {
		h.log.Warn("access check failed",
			zap.String("documentId", documentID),
			zap.String("userId", client.UserID), zap.Error(err))
		client.Send(errorEvent("Access check failed"))
		return nil
	}
	if !allowed {
		client.Send(errorEvent("Access denied"))
		return nil
	}

	entry := presence.Entry{UserID: client.UserID, Name: client.Name, Color: client.Color}
	if entry.Color == "" {
		entry.Color = defaultUserColor
	}

	sess, state, content, roster, err := h.registry.Attach(ctx, documentID, client, entry)
	if err != nil {
		h.log.Warn("failed to open document",
			zap.String("documentId", documentID), zap.Error(err))
		client.Send(errorEvent("Failed to load document"))
		return nil
	}

	client.Send(models.Event{Type: models.EventDocumentState, Data: models.DocumentState{
		State:   models.IntBytes(state),
		Content: content,
	}})
	client.Send(models.Event{Type: models.EventUsersList, Data: roster})

	h.log.Info("client joined document",
		zap.String("documentId", documentID),
		zap.String("userId", client.UserID),
		zap.Int("editors", len(roster)))
	return sess
}

// decode round-trips an already-unmarshalled event payload into its typed
// form.
func decode(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func errorEvent(msg string) models.Event {
	return models.Event{Type: models.EventError, Data: models.ErrorPayload{Message: msg}}
}
