package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"vibeconnect/chat"
	"vibeconnect/errs"
	"vibeconnect/events"
	"vibeconnect/metrics"
	"vibeconnect/models"
	"vibeconnect/utils"
)

// MessageSender persists a chat message and publishes it.
type MessageSender interface {
	Send(ctx context.Context, in chat.SendInput) (*models.MessageResponse, error)
}

// RelayGate decides whether a client-published event may reach another user.
type RelayGate interface {
	CanRelay(ctx context.Context, fromID, toID, event string) bool
}

// Server upgrades authenticated HTTP requests to websocket clients.
type Server struct {
	hub      *Hub
	notifier events.Notifier
	chat     MessageSender
	gate     RelayGate
	verifier *utils.TokenVerifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.Collector
}

type ServerConfig struct {
	Hub      *Hub
	Notifier events.Notifier
	Chat     MessageSender
	Gate     RelayGate
	Verifier *utils.TokenVerifier
	// AllowedOrigins restricts the Origin header. Empty or "*" allows any origin.
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *metrics.Collector
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		hub:      cfg.Hub,
		notifier: cfg.Notifier,
		chat:     cfg.Chat,
		gate:     cfg.Gate,
		verifier: cfg.Verifier,
		logger:   cfg.Logger.Named("ws"),
		metrics:  cfg.Metrics,
	}
	if s.notifier == nil {
		s.notifier = cfg.Hub
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS authenticates the ?token= query parameter, upgrades the connection and
// joins it to the user's room.
func (s *Server) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Fail(c, errs.Unauthenticated("missing token"))
		return
	}
	claims, err := s.verifier.ParseToken(token)
	if err != nil {
		utils.Fail(c, errs.Unauthenticated("invalid token"))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:     utils.GenerateUUID(),
		userID: claims.UserID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		joined: make(chan struct{}),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}
	client.logger = s.logger.With(zap.String("user", client.userID), zap.String("conn", client.id))

	if !s.hub.Register(client) {
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
