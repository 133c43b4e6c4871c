package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/session"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams integrity events for a live session, so an invigilator
// screen can show strikes the moment they happen.
type WSHandler struct {
	registry *session.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *session.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

type violationEvent struct {
	Type      model.ViolationType `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Count     int                 `json:"count"`
	Threshold int                 `json:"threshold"`
}

// ViolationFeed godoc
// WS /ws/v1/sessions/:session_id/violations
// Pushes one JSON event per recorded violation. The connection closes when
// the session ends.
func (h *WSHandler) ViolationFeed(c *gin.Context) {
	ctrl, err := h.registry.Get(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session with this id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", c.Param("session_id")).Logger()
	wsLog.Info().Msg("Violation feed connected")

	// Buffered so a slow invigilator screen never stalls the monitor.
	events := make(chan violationEvent, 16)
	ctrl.OnViolation(func(v model.Violation, count, threshold int) {
		select {
		case events <- violationEvent{Type: v.Type, Timestamp: v.Timestamp, Count: count, Threshold: threshold}:
		default:
			wsLog.Warn().Msg("Violation feed backlogged, dropping event")
		}
	})

	// Reader goroutine only detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				wsLog.Debug().Err(err).Msg("Violation feed write failed")
				return
			}
		case <-closed:
			wsLog.Info().Msg("Violation feed disconnected")
			return
		}
	}
}
