package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campfire/pkg/domain"
	"campfire/pkg/realtime"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsSendQueue    = 128
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origins are enforced by the CORS layer; the upgrade itself
	// accepts any origin so native clients can connect too.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsCommand is what a client sends over the socket. Channels are named by
// slug, matching the REST surface.
type wsCommand struct {
	Action  string `json:"action"` // subscribe, unsubscribe, typing, heartbeat
	Channel string `json:"channel"`
}

// wsConn tracks one socket's channel subscriptions.
type wsConn struct {
	srv    *Server
	member domain.Member
	conn   *websocket.Conn
	send   chan realtime.ChangeEvent

	mu   sync.Mutex
	subs map[string]*realtime.Subscription
}

// handleWebsocket upgrades the request and streams change events for the
// channels the client subscribes to. Events carry ids only; clients fetch
// the changed rows over the REST API.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, member domain.Member) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err, "member_id", member.ID)
		return
	}
	c := &wsConn{
		srv:    s,
		member: member,
		conn:   conn,
		send:   make(chan realtime.ChangeEvent, wsSendQueue),
		subs:   make(map[string]*realtime.Subscription),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer c.closeAll()

	// Every socket listens on its own member stream so notification
	// events arrive without an explicit subscribe.
	c.attach(realtime.MemberStream(member.ID), s.hub.Subscribe(realtime.MemberStream(member.ID)))

	go c.writeLoop(ctx, cancel)
	c.readLoop(ctx, cancel)
}

func (c *wsConn) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		var cmd wsCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.handleCommand(ctx, cmd)
	}
}

func (c *wsConn) handleCommand(ctx context.Context, cmd wsCommand) {
	ch, err := c.srv.app.ChannelBySlug(ctx, c.member, cmd.Channel)
	if err != nil {
		slog.Debug("ws command rejected", "err", err, "action", cmd.Action,
			"member_id", c.member.ID, "channel", cmd.Channel)
		return
	}
	switch cmd.Action {
	case "subscribe":
		c.attach(ch.ID, c.srv.hub.Subscribe(ch.ID))
	case "unsubscribe":
		c.unsubscribe(ch.ID)
	case "typing":
		if err := c.srv.app.Typing(ctx, c.member, ch.ID); err != nil {
			slog.Debug("ws typing rejected", "err", err, "member_id", c.member.ID)
		}
	case "heartbeat":
		if err := c.srv.app.Heartbeat(ctx, c.member, ch.ID); err != nil {
			slog.Debug("ws heartbeat rejected", "err", err, "member_id", c.member.ID)
		}
	}
}

func (c *wsConn) attach(key string, sub *realtime.Subscription) {
	c.mu.Lock()
	if _, exists := c.subs[key]; exists {
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.subs[key] = sub
	c.mu.Unlock()

	go func() {
		for ev := range sub.C {
			select {
			case c.send <- ev:
			default:
				// Drop on backpressure; the client reconciles over REST.
			}
		}
	}()
}

func (c *wsConn) unsubscribe(channelID string) {
	c.mu.Lock()
	sub, ok := c.subs[channelID]
	if ok {
		delete(c.subs, channelID)
	}
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (c *wsConn) closeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*realtime.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	_ = c.conn.Close()
}

func (c *wsConn) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
