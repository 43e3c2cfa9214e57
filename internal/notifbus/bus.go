package notifbus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/authn"
	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/models"
)

const (
	gameServerNotifChannel = "gameserver:notifs"
	gameClientNotifChannel = "gameclient:notifs"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bus is one notification-bus instance. It subscribes to both pub/sub
// channels and forwards every message it receives to a locally-registered
// recipient, if any — per spec.md §4.B, multiple bus instances do not
// coordinate; the recipient is only reached by the instance holding their
// socket.
type Bus struct {
	dir          *directory.Directory
	gameServers  *Table
	gameClients  *Table
	verifier     *authn.Verifier
	logger       *zap.Logger
}

func New(dir *directory.Directory, verifier *authn.Verifier, logger *zap.Logger) *Bus {
	return &Bus{
		dir:         dir,
		gameServers: newTable("game_servers", logger),
		gameClients: newTable("game_clients", logger),
		verifier:    verifier,
		logger:      logger,
	}
}

// Run subscribes to both notification channels and forwards incoming
// messages until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	go b.pump(ctx, gameServerNotifChannel, b.gameServers)
	go b.pump(ctx, gameClientNotifChannel, b.gameClients)
}

func (b *Bus) pump(ctx context.Context, channel string, table *Table) {
	sub := b.dir.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var notif models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &notif); err != nil {
				b.logger.Warn("dropping malformed notification envelope", zap.String("channel", channel), zap.Error(err))
				continue
			}
			table.Forward(notif.Recipient, []byte(msg.Payload))
		}
	}
}

// RegisterRoutes wires the two WebSocket upgrade endpoints onto r.
func (b *Bus) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/gameserver/notifs/v1", b.handleSubscribe(b.gameServers))
	r.GET("/gameclient/notifs/v1", b.handleSubscribe(b.gameClients))
}

func (b *Bus) handleSubscribe(table *Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := b.verifier.RecipientID(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		r := table.Register(id, conn)
		go writePump(conn, r)
		readPump(conn, table, id, r)
	}
}

// SubscribeGameserver and SubscribeGameclient are the named operations
// spec.md §4.B calls out; RegisterRoutes wires both onto the same
// handleSubscribe implementation since the protocol is symmetric.
func (b *Bus) SubscribeGameserver(id uuid.UUID, conn *websocket.Conn) {
	r := b.gameServers.Register(id, conn)
	go writePump(conn, r)
	readPump(conn, b.gameServers, id, r)
}

func (b *Bus) SubscribeGameclient(id uuid.UUID, conn *websocket.Conn) {
	r := b.gameClients.Register(id, conn)
	go writePump(conn, r)
	readPump(conn, b.gameClients, id, r)
}

// readPump discards every incoming frame until the socket closes, then
// removes the recipient's table entry.
func readPump(conn *websocket.Conn, table *Table, id uuid.UUID, r *recipient) {
	defer func() {
		table.Unregister(id, r)
		conn.Close()
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers queued notifications to conn and keeps it alive with
// periodic pings until the recipient's entry is torn down.
func writePump(conn *websocket.Conn, r *recipient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-r.done:
			return
		case payload, ok := <-r.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
