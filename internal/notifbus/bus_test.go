package notifbus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	table := newTable("game_servers", zap.NewNop())
	id := uuid.New()

	srv1 := newEchoServer(t, table, id)
	defer srv1.Close()
	conn1 := dial(t, srv1.URL)
	defer conn1.Close()

	require.Eventually(t, func() bool { return table.Count() == 1 }, time.Second, 10*time.Millisecond)

	srv2 := newEchoServer(t, table, id)
	defer srv2.Close()
	conn2 := dial(t, srv2.URL)
	defer conn2.Close()

	conn1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn1.ReadMessage()
	require.Error(t, err)

	require.Equal(t, 1, table.Count())
}

func TestForwardDropsWhenNoRecipient(t *testing.T) {
	table := newTable("game_clients", zap.NewNop())
	table.Forward(uuid.New(), []byte("hello"))
}

func newEchoServer(t *testing.T, table *Table, id uuid.UUID) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		r2 := table.Register(id, conn)
		go writePump(conn, r2)
		readPump(conn, table, id, r2)
	}))
}

func dial(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}
