// Package apiserver implements the Matchmaking API: the stateless HTTP
// surface game clients use to find a server and game servers use to report
// heartbeats, per spec.md §4.F.
package apiserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mooncorn/fleetmatch/internal/authn"
	"github.com/mooncorn/fleetmatch/internal/backfill"
	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/errs"
	"github.com/mooncorn/fleetmatch/internal/fleet"
	"github.com/mooncorn/fleetmatch/internal/models"
	"github.com/mooncorn/fleetmatch/internal/placement"
)

// Handlers wires the registry and both matching engines to gin routes.
type Handlers struct {
	registry        *fleet.Registry
	dir             *directory.Directory
	placement       *placement.Engine
	backfill        *backfill.Engine
	verifier        *authn.Verifier
	allowedOrigins  []string
	defaultMaxPlayers int
	logger          *zap.Logger
	startedAt       time.Time
}

func NewHandlers(registry *fleet.Registry, dir *directory.Directory, placementEngine *placement.Engine, backfillEngine *backfill.Engine, verifier *authn.Verifier, allowedOrigins []string, defaultMaxPlayers int, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry:          registry,
		dir:               dir,
		placement:         placementEngine,
		backfill:          backfillEngine,
		verifier:          verifier,
		allowedOrigins:    allowedOrigins,
		defaultMaxPlayers: defaultMaxPlayers,
		logger:            logger,
		startedAt:         time.Now(),
	}
}

// RegisterRoutes registers every Matchmaking API route onto r.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     h.allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", h.Healthz)
	r.GET("/admin/status/v1", h.authAny(), h.AdminStatus)

	r.GET("/gameclient/find_server/v1", h.authGameClient(), h.FindServer)
	r.POST("/gameserver/heartbeat/v1", h.authGameServer(), h.Heartbeat)
}

func (h *Handlers) authGameClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.verifier.RecipientID(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		c.Set("user_id", id)
		c.Next()
	}
}

// authAny accepts any principal holding a valid bearer token, used for the
// admin status endpoint where no separate admin role exists yet — a real
// deployment would scope this to an operator-issued token.
func (h *Handlers) authAny() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := h.verifier.RecipientID(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		c.Next()
	}
}

func (h *Handlers) authGameServer() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.verifier.RecipientID(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}
		c.Set("server_id", id)
		c.Next()
	}
}

// Healthz reports liveness; it does not touch Redis so it stays fast and
// answers even if the directory is briefly unreachable.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdminStatus reports directory connectivity, process uptime, and pool
// sizes, grounded on the teacher's admin system-status surface.
func (h *Handlers) AdminStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status := "ok"
	if err := h.dir.Ping(ctx); err != nil {
		status = "degraded"
	}

	waiting, err := h.registry.WaitingServerCount(ctx)
	if err != nil {
		h.logger.Warn("admin status: failed to read waiting server count", zap.Error(err))
	}

	backfill, err := h.registry.BackfillCandidates(ctx)
	if err != nil {
		h.logger.Warn("admin status: failed to read backfill candidates", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               status,
		"uptime_sec":           int(time.Since(h.startedAt).Seconds()),
		"waiting_server_count": waiting,
		"backfill_session_count": len(backfill),
	})
}

// FindServer is the sole client-facing matchmaking operation: try backfill
// first since it is cheaper and keeps sessions full, then fall back to
// fresh placement. A nil, nil result from both engines means "no capacity
// right now" — returned to the caller as 200 with an empty address, not an
// error.
func (h *Handlers) FindServer(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	sessionID := uuid.New()
	ctx := c.Request.Context()

	srv, err := h.backfill.Reserve(ctx, userID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if srv == nil {
		srv, err = h.placement.Allocate(ctx, userID, sessionID)
		if err != nil {
			h.respondErr(c, err)
			return
		}
	}
	if srv == nil {
		c.JSON(http.StatusOK, models.GameServerAddress{})
		return
	}

	c.JSON(http.StatusOK, addressOf(srv))
}

func addressOf(srv *models.GameServer) models.GameServerAddress {
	addr := ""
	if len(srv.AddrsV4) > 0 {
		addr = srv.AddrsV4[0]
	} else if len(srv.AddrsV6) > 0 {
		addr = srv.AddrsV6[0]
	}
	return models.GameServerAddress{Address: addr, Port: srv.Port}
}

// HeartbeatRequest is the body a game server POSTs once per heartbeat
// interval to refresh its directory record.
type HeartbeatRequest struct {
	AddrsV4       []string             `json:"addrs_v4,omitempty"`
	AddrsV6       []string             `json:"addrs_v6,omitempty"`
	Port          uint16               `json:"port" binding:"required"`
	State         models.ServerState   `json:"state" binding:"required"`
	Orchestration models.Orchestration `json:"orchestration" binding:"required"`
	Session       *models.GameSessionInfo `json:"session,omitempty"`
}

// Heartbeat upserts the reporting server's directory record and, if
// included, its session record, in that order, matching spec.md §5's
// documented write ordering.
func (h *Handlers) Heartbeat(c *gin.Context) {
	serverID := c.MustGet("server_id").(uuid.UUID)

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	srv := &models.GameServer{
		ServerID:      serverID,
		AddrsV4:       req.AddrsV4,
		AddrsV6:       req.AddrsV6,
		Port:          req.Port,
		State:         req.State,
		Orchestration: req.Orchestration,
	}
	if req.Session != nil {
		srv.GameSessionID = &req.Session.GameSessionID
	}

	if err := h.registry.WriteServer(ctx, srv); err != nil {
		h.respondErr(c, err)
		return
	}

	if req.Session != nil {
		sess := &models.GameSession{
			SessionID:      req.Session.GameSessionID,
			ServerID:       serverID,
			MaxPlayers:     req.Session.MaxPlayers,
			ActivePlayers:  req.Session.ActivePlayerIDs,
			PendingPlayers: req.Session.PendingPlayerIDs,
		}
		if sess.MaxPlayers == 0 {
			sess.MaxPlayers = h.defaultMaxPlayers
		}
		if err := h.registry.WriteSession(ctx, sess); err != nil {
			h.respondErr(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) respondErr(c *gin.Context, err error) {
	switch errs.KindOf(err) {
	case errs.KindAuthInvalid:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errs.KindBackendUnavailable:
		h.logger.Error("backend unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
	case errs.KindCapacity:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no capacity available"})
	default:
		h.logger.Error("unexpected error handling request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
