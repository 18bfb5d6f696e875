package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"vibeconnect/chat"
	"vibeconnect/errs"
	"vibeconnect/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// inbound is a frame read from a client; data is decoded per event.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendMessagePayload is the data of a sendMessage frame.
type SendMessagePayload struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	ClientID  string `json:"clientId"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Event   string    `json:"event"`
	Code    errs.Kind `json:"code"`
	Message string    `json:"message"`
}

// Client is one websocket connection, joined to the room of the user it
// authenticated as.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	joined chan struct{}
	server *Server
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.server.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(message []byte) {
	var in inbound
	if err := json.Unmarshal(message, &in); err != nil || in.Event == "" {
		c.fail("", errs.InvalidInput("malformed frame"))
		return
	}
	c.server.metrics.ClientEvents.WithLabelValues(in.Event).Inc()

	switch in.Event {
	case events.Ping:
		c.reply(events.Pong, nil)
	case events.Join:
		c.handleJoin(in.Data)
	case events.SendMessage:
		c.handleSendMessage(in.Data)
	default:
		if target, ok := events.RelayTargets[in.Event]; ok {
			c.handleRelay(in.Event, target, in.Data)
			return
		}
		c.fail(in.Event, errs.InvalidInput("unknown event %q", in.Event))
	}
}

// handleJoin accepts a join for the connection's own room only. The connection
// is joined on upgrade, so a matching join changes nothing.
func (c *Client) handleJoin(data json.RawMessage) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil {
		c.fail(events.Join, errs.InvalidInput("join expects a user id"))
		return
	}
	if userID != c.userID {
		c.fail(events.Join, errs.Forbidden("cannot join another user's room"))
	}
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.fail(events.SendMessage, errs.InvalidInput("malformed message"))
		return
	}
	if p.Sender != "" && p.Sender != c.userID {
		c.fail(events.SendMessage, errs.Forbidden("sender does not match the connection"))
		return
	}

	// The chat service pushes the stored message to both rooms.
	_, err := c.server.chat.Send(c.ctx, chat.SendInput{
		SenderID:    c.userID,
		RecipientID: p.Recipient,
		Content:     p.Content,
		ClientID:    p.ClientID,
	})
	if err != nil {
		c.fail(events.SendMessage, err)
	}
}

// handleRelay forwards a client-published event to the users named in its
// userIds/userId fields that the gatekeeper allows.
func (c *Client) handleRelay(event, target string, data json.RawMessage) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		c.fail(event, errs.InvalidInput("relay payload must be an object"))
		return
	}

	targets := relayTargets(body)
	if len(targets) == 0 {
		c.fail(event, errs.InvalidInput("userIds is required"))
		return
	}

	from, _ := json.Marshal(c.userID)
	body["from"] = from
	var payload interface{} = body
	if post, ok := body["post"]; ok && event == events.NewPost {
		payload = post
	}

	for _, userID := range targets {
		if !c.server.gate.CanRelay(c.ctx, c.userID, userID, event) {
			c.server.metrics.EventsDropped.WithLabelValues("relay_denied").Inc()
			c.logger.Debug("relay denied", zap.String("event", event), zap.String("to", userID))
			continue
		}
		c.server.notifier.Notify(userID, target, payload)
	}
}

func relayTargets(body map[string]json.RawMessage) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, key := range []string{"userIds", "userId"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err == nil {
			for _, id := range many {
				add(id)
			}
			continue
		}
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			add(one)
		}
	}
	return out
}

// reply queues a frame to this connection only.
func (c *Client) reply(event string, payload interface{}) {
	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("failed to encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	c.server.hub.mu.RLock()
	defer c.server.hub.mu.RUnlock()
	if !c.server.hub.rooms[c.userID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.metrics.EventsDropped.WithLabelValues("slow_client").Inc()
	}
}

func (c *Client) fail(event string, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindInternal {
		c.logger.Error("realtime operation failed", zap.String("event", event), zap.Error(err))
	}
	c.reply(events.Error, ErrorPayload{Event: event, Code: kind, Message: errs.MessageOf(err)})
}
