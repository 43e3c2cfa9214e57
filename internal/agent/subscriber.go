package agent

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/models"
)

// SubscribeNotifications dials the notification bus's gameserver socket
// and dispatches every PlacementRequestV1/ReservationRequestV1 addressed
// to this agent's server, reconnecting with a fixed backoff on drop —
// the bus closes a replaced connection, and a plain network blip looks
// identical to the client, so both cases just redial.
func (a *Agent) SubscribeNotifications(busURL, authToken string) {
	header := http.Header{"Authorization": []string{"Bearer " + authToken}}

	for {
		wsURL, err := url.Parse(busURL)
		if err != nil {
			a.logger.Error("invalid notification bus url", zap.Error(err))
			return
		}
		wsURL.Path = "/gameserver/notifs/v1"

		conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), header)
		if err != nil {
			a.logger.Warn("failed to connect to notification bus, retrying", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		a.logger.Info("connected to notification bus")
		a.readNotifications(conn)
		conn.Close()
		time.Sleep(5 * time.Second)
	}
}

func (a *Agent) readNotifications(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			a.logger.Warn("notification bus connection closed", zap.Error(err))
			return
		}

		var notif models.Notification
		if err := json.Unmarshal(payload, &notif); err != nil {
			a.logger.Warn("dropping malformed notification", zap.Error(err))
			continue
		}

		switch notif.Type {
		case models.NotificationPlacementRequestV1:
			var req models.PlacementRequestV1
			if err := json.Unmarshal([]byte(notif.Message), &req); err != nil {
				a.logger.Warn("dropping malformed placement request", zap.Error(err))
				continue
			}
			a.HandlePlacement(req)
		case models.NotificationReservationRequestV1:
			var req models.ReservationRequestV1
			if err := json.Unmarshal([]byte(notif.Message), &req); err != nil {
				a.logger.Warn("dropping malformed reservation request", zap.Error(err))
				continue
			}
			a.HandleReservation(req)
		default:
			a.logger.Warn("unknown notification type", zap.String("type", string(notif.Type)))
		}
	}
}
