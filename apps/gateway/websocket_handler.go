package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var (
	errClientClosed = errors.New("gateway: client closed")
	errSlowClient   = errors.New("gateway: client send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between the websocket connection and the hub. It
// implements presence.Handle.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	// Buffered channel of outbound frames. Never closed; done signals
	// shutdown instead so late senders cannot panic.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// claims is nil for anonymous connections.
	claims *auth.Claims
	userID atomic.Int64
}

func (c *Client) ID() string { return c.id }

// UserID is the registered user, or 0 before register.
func (c *Client) UserID() int64 { return c.userID.Load() }

// Send enqueues frame without blocking. A full buffer means the peer stopped
// reading; the connection is closed rather than stalling the caller.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.hub.log.Warn().Str("handle", c.id).Int64("user_id", c.UserID()).Msg("closing slow client")
		c.close()
		return errSlowClient
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) push(event string, data any) {
	frame, err := model.Encode(event, data)
	if err != nil {
		c.hub.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}
	c.Send(frame)
}

func (c *Client) sendError(code, msg string) {
	c.push(model.EventError, model.ErrorPush{Code: code, Error: msg})
}

func (c *Client) sendStatus(correlationID string, status model.DeliveryStatus) {
	if correlationID == "" {
		return
	}
	c.push(model.EventMessageStatus, model.MessageStatusPush{CorrelationID: correlationID, Status: status})
}

// readPump pumps frames from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("handle", c.id).Msg("read error")
			}
			return
		}

		req, err := model.DecodeRequest(frame)
		if err != nil {
			code := codeInvalidPayload
			if errors.Is(err, model.ErrUnknownEvent) {
				code = codeUnknownEvent
			}
			c.sendStatus(correlationOf(frame), model.StatusFailed)
			c.sendError(code, err.Error())
			continue
		}

		if reg, ok := req.(*model.RegisterRequest); ok {
			c.hub.onRegister(c, reg)
			continue
		}
		go c.hub.handle(c, req)
	}
}

// correlationOf digs the correlation id out of a privateMessage frame that
// failed validation, so the sender can mark its optimistic copy failed.
func correlationOf(frame []byte) string {
	var env model.Envelope
	if json.Unmarshal(frame, &env) != nil || env.Event != model.EventPrivateMessage {
		return ""
	}
	var data struct {
		ClientCorrelationID string `json:"clientCorrelationId"`
		ClientID            string `json:"clientId"`
	}
	if json.Unmarshal(env.Data, &data) != nil {
		return ""
	}
	if data.ClientCorrelationID != "" {
		return data.ClientCorrelationID
	}
	return data.ClientID
}

// writePump pumps frames from the hub to the websocket connection, one
// websocket message per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// serveWs handles websocket requests from the peer. A token is optional
// unless the hub requires one; when present it pins the user the connection
// may register as.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	claims, err := hub.signer.FromRequest(r)
	switch {
	case errors.Is(err, auth.ErrMissingToken) && !hub.requireJWT:
		claims = nil
	case err != nil:
		hub.log.Info().Err(err).Msg("rejecting websocket upgrade")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan []byte, hub.cfg.SendBuffer),
		done:   make(chan struct{}),
		claims: claims,
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
