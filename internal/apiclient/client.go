// Package apiclient is the game-server agent's HTTP client for the
// Matchmaking API's heartbeat endpoint, grounded on the teacher's
// supervisor-side api.Client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/models"
)

// Client posts heartbeats to the matchmaking API on behalf of a single
// game server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *zap.Logger
}

func New(baseURL, authToken string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		authToken:  authToken,
		logger:     logger,
	}
}

type heartbeatRequest struct {
	AddrsV4       []string                `json:"addrs_v4,omitempty"`
	Port          uint16                  `json:"port"`
	State         models.ServerState      `json:"state"`
	Orchestration models.Orchestration    `json:"orchestration"`
	Session       *models.GameSessionInfo `json:"session,omitempty"`
}

// Heartbeat posts the server's current state to /gameserver/heartbeat/v1.
func (c *Client) Heartbeat(ctx context.Context, addrsV4 []string, port uint16, state models.ServerState, orch models.Orchestration, session *models.GameSessionInfo) error {
	body, err := json.Marshal(heartbeatRequest{
		AddrsV4:       addrsV4,
		Port:          port,
		State:         state,
		Orchestration: orch,
		Session:       session,
	})
	if err != nil {
		return fmt.Errorf("apiclient.Heartbeat: marshal: %w", err)
	}

	url := c.baseURL + "/gameserver/heartbeat/v1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("apiclient.Heartbeat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient.Heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("apiclient.Heartbeat: unexpected status %d", resp.StatusCode)
	}
	return nil
}
