package server

import (
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/crdt"
	"github.com/cshekharsharma/filesync/internal/protocol"
	"github.com/cshekharsharma/filesync/internal/wsconn"
)

// hub tracks live edit sessions, each identified by a random session id —
// grounded on smartramana-developer-mesh's connection-registry pattern for
// its own WebSocket endpoints.
type hub struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*wsconn.Conn
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, sessions: make(map[string]*wsconn.Conn)}
}

func (h *hub) add(id string, conn *wsconn.Conn) {
	h.mu.Lock()
	h.sessions[id] = conn
	h.mu.Unlock()
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *handlers) editUpgrade(c *gin.Context) {
	conn, err := wsconn.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.log.Warn("edit upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	h.hub.add(sessionID, conn)
	h.log.Info("edit session opened", zap.String("session", sessionID), zap.String("remote", conn.RemoteAddr()))

	defer func() {
		h.hub.remove(sessionID)
		conn.Close()
		h.log.Info("edit session closed", zap.String("session", sessionID))
	}()

	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(conn, payload)
	}
}

// dispatch sniffs whether payload is an Op (has a "kind" field), a
// LocalEditRequest (has "visible_index") or a StateQuery (anything else),
// applies it against the CRDT manager, and
// writes back the matching response — fire-and-apply, never broadcast
// (spec.md §4.4).
func (h *handlers) dispatch(conn *wsconn.Conn, payload []byte) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		h.replyAck(conn, false, "malformed message")
		return
	}

	if _, isOp := probe["kind"]; isOp {
		h.handleOp(conn, payload)
		return
	}
	if _, isLocalEdit := probe["visible_index"]; isLocalEdit {
		h.handleLocalEdit(conn, payload)
		return
	}
	h.handleQuery(conn, payload)
}

func (h *handlers) handleLocalEdit(conn *wsconn.Conn, payload []byte) {
	var req protocol.LocalEditRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.replyAck(conn, false, "malformed edit request")
		return
	}

	if req.Delete {
		if _, err := h.manager.LocalDelete(req.Doc, req.VisibleIndex); err != nil {
			h.replyAck(conn, false, err.Error())
			return
		}
		h.replyAck(conn, true, "")
		return
	}

	r, err := crdt.ValidateInsertContent(req.Content)
	if err != nil {
		h.replyAck(conn, false, err.Error())
		return
	}
	if _, err := h.manager.LocalInsert(req.Doc, req.VisibleIndex, r); err != nil {
		h.replyAck(conn, false, err.Error())
		return
	}
	h.replyAck(conn, true, "")
}

func (h *handlers) handleOp(conn *wsconn.Conn, payload []byte) {
	var op protocol.Op
	if err := json.Unmarshal(payload, &op); err != nil {
		h.replyAck(conn, false, "malformed op")
		return
	}

	switch op.Kind {
	case protocol.OpInsert:
		r, err := crdt.ValidateInsertContent(op.Content)
		if err != nil {
			h.replyAck(conn, false, err.Error())
			return
		}
		id := crdt.CharID{SiteID: op.Site, Clock: op.Clock}
		origin := crdt.CharID{SiteID: op.OriginLeftSite, Clock: op.OriginLeftClock}
		h.manager.ApplyRemoteInsert(op.Doc, id, r, origin)
		h.replyAck(conn, true, "")
	case protocol.OpDelete:
		if err := crdt.ValidateDeleteTarget(op.TargetSite); err != nil {
			h.replyAck(conn, false, err.Error())
			return
		}
		target := crdt.CharID{SiteID: op.TargetSite, Clock: op.TargetClock}
		h.manager.ApplyRemoteDelete(op.Doc, target)
		h.replyAck(conn, true, "")
	default:
		h.replyAck(conn, false, "unknown op kind")
	}
}

func (h *handlers) handleQuery(conn *wsconn.Conn, payload []byte) {
	var q protocol.StateQuery
	if err := json.Unmarshal(payload, &q); err != nil {
		h.replyAck(conn, false, "malformed query")
		return
	}
	content := h.manager.Read(q.Doc)
	h.writeJSON(conn, &protocol.StateSnapshot{Content: content})
}

func (h *handlers) replyAck(conn *wsconn.Conn, ok bool, msg string) {
	h.writeJSON(conn, &protocol.OpAck{OK: ok, Message: msg})
}

func (h *handlers) writeJSON(conn *wsconn.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode ws response", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(b); err != nil {
		h.log.Warn("write ws response", zap.Error(err))
	}
}
