// Package notifbus implements the notification bus: best-effort delivery of
// directed messages from a publisher (over Redis pub/sub) to a single
// long-lived WebSocket-subscribed recipient, per spec.md §4.B.
package notifbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// recipient wraps one subscriber's socket and its outbound queue, mirroring
// the teacher's broadcast.Hub buffered-channel-per-subscriber shape and the
// Byabasaija-playpool ws.Client send-queue pattern.
type recipient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Table is one recipient space (game_servers or game_clients): at most one
// active sender per opaque ID, latest connection wins.
type Table struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*recipient
	logger  *zap.Logger
	name    string
}

func newTable(name string, logger *zap.Logger) *Table {
	return &Table{clients: make(map[uuid.UUID]*recipient), logger: logger, name: name}
}

// Register installs conn as the active sender for id, closing and replacing
// any previous connection for the same id (latest connection wins).
func (t *Table) Register(id uuid.UUID, conn *websocket.Conn) *recipient {
	r := &recipient{conn: conn, send: make(chan []byte, 16), done: make(chan struct{})}

	t.mu.Lock()
	if old, exists := t.clients[id]; exists {
		t.logger.Info("recipient reconnected, closing previous connection",
			zap.String("table", t.name), zap.String("id", id.String()))
		old.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
			time.Now().Add(5*time.Second))
		close(old.done)
		old.conn.Close()
	}
	t.clients[id] = r
	t.mu.Unlock()

	return r
}

// Unregister removes id's entry if it still points at r (a later Register
// call for the same id must not be undone by an earlier connection's
// cleanup).
func (t *Table) Unregister(id uuid.UUID, r *recipient) {
	t.mu.Lock()
	if cur, ok := t.clients[id]; ok && cur == r {
		delete(t.clients, id)
	}
	t.mu.Unlock()
}

// Forward delivers payload to id's active sender. Silently drops the
// message if no recipient is registered on this bus instance, or if the
// recipient's outbound buffer is full (slow consumer) — delivery is
// at-most-once and best-effort.
func (t *Table) Forward(id uuid.UUID, payload []byte) {
	t.mu.RLock()
	r, ok := t.clients[id]
	t.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case r.send <- payload:
	default:
		t.logger.Warn("dropping notification, recipient buffer full",
			zap.String("table", t.name), zap.String("id", id.String()))
	}
}

// Count returns the number of currently-registered recipients.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
