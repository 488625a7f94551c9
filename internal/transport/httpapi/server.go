package httpapi

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/netchat-io/netchat-server/internal/config"
	"github.com/netchat-io/netchat-server/internal/core"
)

// ChannelResponse describes one channel in API responses.
type ChannelResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// UserListResponse describes the users of one channel.
type UserListResponse struct {
	Channel string   `json:"channel"`
	Users   []string `json:"users"`
}

// Handlers serves read-only introspection over the live registry.
type Handlers struct {
	registry *core.Registry
	log      *zerolog.Logger
}

// NewServer builds the HTTP server: health, channel introspection, and
// the WebSocket chat bridge.
func NewServer(cfg config.Config, registry *core.Registry, router *core.Router, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	h := &Handlers{registry: registry, log: logger}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", h.Health)
	api := engine.Group("/api")
	api.GET("/channels", h.ListChannels)
	api.GET("/channels/:name/users", h.ListUsers)

	engine.GET("/ws", gin.WrapH(NewWSHandler(router, cfg.HandshakeTimeout, logger)))

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// Health reports liveness.
// GET /healthz
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok", "connections": h.registry.Len()})
}

// ListChannels returns every channel with its member count.
// GET /api/channels
func (h *Handlers) ListChannels(c *gin.Context) {
	names := h.registry.ChannelNames()
	channels := make([]ChannelResponse, 0, len(names))
	for _, name := range names {
		channels = append(channels, ChannelResponse{
			Name:    name,
			Members: len(h.registry.UsersOf(name)),
		})
	}
	c.JSON(stdhttp.StatusOK, gin.H{"channels": channels})
}

// ListUsers returns the nicknames currently in one channel.
// GET /api/channels/:name/users
func (h *Handlers) ListUsers(c *gin.Context) {
	name := c.Param("name")
	c.JSON(stdhttp.StatusOK, UserListResponse{
		Channel: name,
		Users:   h.registry.UsersOf(name),
	})
}
