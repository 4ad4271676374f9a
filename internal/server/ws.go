package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = maxActionBody
	wsOutboxSize     = 16
)

// Message types exchanged over /ws.
const (
	msgSubscribe = "subscribe"
	msgAction    = "action"
	msgState     = "state"
	msgResult    = "result"
	msgError     = "error"
)

// wsInbound is a client message.
type wsInbound struct {
	Type   string          `json:"type"`
	Fields []string        `json:"fields,omitempty"`
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// wsOutbound is a server message.
type wsOutbound struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// handleWS upgrades to a WebSocket and serves subscriptions and actions.
//
// One goroutine reads, one writes; actions run on their own goroutines and
// hand their results to the writer.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{
		id:      uuid.NewString(),
		server:  s,
		conn:    conn,
		outbox:  make(chan wsOutbound, wsOutboxSize),
		fieldsC: make(chan *fieldSet, 1),
	}
	c.logger = s.logger.With(zap.String("conn_id", c.id))
	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}
	c.logger.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		// closing unblocks the reader when the writer gives up first
		defer func() { _ = conn.Close() }()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	<-writerDone
	c.actions.Wait()
	c.logger.Debug("websocket closed")
}

type wsConn struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	logger  *zap.Logger
	outbox  chan wsOutbound
	fieldsC chan *fieldSet
	actions sync.WaitGroup
}

func (c *wsConn) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg wsInbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.send(ctx, wsOutbound{Type: msgError, Error: "malformed message"})
			continue
		}
		c.record("in", msg.Type)

		switch msg.Type {
		case msgSubscribe:
			fields, err := newFieldSet(msg.Fields)
			if err != nil {
				c.send(ctx, wsOutbound{Type: msgError, Error: err.Error()})
				continue
			}
			// replace any subscription the writer has not picked up yet
			select {
			case <-c.fieldsC:
			default:
			}
			c.fieldsC <- fields

		case msgAction:
			c.actions.Add(1)
			go func(msg wsInbound) {
				defer c.actions.Done()
				out := wsOutbound{Type: msgResult, ID: msg.ID}
				result, err := c.server.runAction(ctx, msg.Name, msg.Args)
				if err != nil {
					if !errors.Is(err, errUnknownAction) && !errors.Is(err, errBadArgs) {
						c.logger.Error("action failed", zap.String("action", msg.Name), zap.Error(err))
					}
					out.Error = err.Error()
				} else {
					out.Result = result
				}
				c.send(ctx, out)
			}(msg)

		default:
			c.send(ctx, wsOutbound{Type: msgError, ID: msg.ID, Error: "unknown message type " + msg.Type})
		}
	}
}

// send queues msg for the writer unless the connection is closing.
func (c *wsConn) send(ctx context.Context, msg wsOutbound) {
	select {
	case c.outbox <- msg:
	case <-ctx.Done():
	}
}

func (c *wsConn) writeLoop(ctx context.Context) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var (
		sub    *subscription
		fields *fieldSet
		ready  <-chan struct{}
	)
	defer func() {
		if sub != nil {
			c.server.hub.unsubscribe(sub)
		}
	}()

	pushState := func() error {
		changed := fields.diff(sub.current())
		if len(changed) == 0 {
			return nil
		}
		return c.write(wsOutbound{Type: msgState, Fields: changed})
	}

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(wsWriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return

		case fields = <-c.fieldsC:
			if sub == nil {
				sub = c.server.hub.subscribe()
				ready = sub.ready
			}
			if err := pushState(); err != nil {
				return
			}

		case <-ready:
			if err := pushState(); err != nil {
				return
			}

		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) write(msg wsOutbound) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode websocket message", zap.Error(err))
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	c.record("out", msg.Type)
	return nil
}

func (c *wsConn) record(direction, msgType string) {
	switch msgType {
	case msgSubscribe, msgAction, msgState, msgResult, msgError:
	default:
		msgType = "unknown"
	}
	if c.server.metrics != nil {
		c.server.metrics.RecordWSMessage(direction, msgType)
	}
}
