package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"metricwatch/internal/middleware"
	"metricwatch/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type WebSocketController struct {
	hub      *services.WebSocketHub
	secLog   *middleware.SecurityLogger
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketController(hub *services.WebSocketHub, secLog *middleware.SecurityLogger, allowedOrigins []string, logger zerolog.Logger) *WebSocketController {
	return &WebSocketController{
		hub:    hub,
		secLog: secLog,
		logger: logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// HandleWebSocket upgrades the connection and streams every new sample to it.
// Authentication, when enabled, has already run in middleware.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn().Err(err).Str("ip", c.ClientIP()).Msg("Upgrade failed")
		return
	}

	client := services.NewClientConnection(ws)
	if !wc.hub.Register(client) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	wc.secLog.LogWebSocketConnected(c.ClientIP(), client.ID)

	ip := c.ClientIP()
	go wc.writePump(client)
	go wc.readPump(client, ip)
}

// readPump reads messages from the WebSocket client
func (wc *WebSocketController) readPump(client *services.ClientConnection, ip string) {
	defer func() {
		wc.hub.Unregister(client.ID)
		_ = client.Conn.Close()
		wc.secLog.LogWebSocketDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wc.logger.Warn().Err(err).Str("client", client.ID).Msg("Read error")
			}
			return
		}

		var msg services.WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.hub.SendMessage(client.ID, services.WebSocketMessage{
				Type:      "error",
				Timestamp: time.Now().UTC(),
				Error:     "malformed message",
			})
			continue
		}

		switch msg.Type {
		case "ping":
			wc.hub.SendMessage(client.ID, services.WebSocketMessage{
				Type:      "pong",
				Timestamp: time.Now().UTC(),
			})
		case "unsubscribe":
			return
		default:
			wc.logger.Debug().Str("client", client.ID).Str("type", msg.Type).Msg("Ignoring message")
		}
	}
}

// writePump writes queued messages and keepalive pings to the client
func (wc *WebSocketController) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				wc.logger.Error().Err(err).Msg("Failed to encode message")
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					wc.logger.Warn().Err(err).Str("client", client.ID).Msg("Write error")
				}
				return
			}

		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
