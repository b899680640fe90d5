package janus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	subprotocol  = "janus-protocol"
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

var errConnClosed = errors.New("gateway connection closed")

// conn multiplexes transactions over one gateway WebSocket. Replies are
// routed to the waiting call; every other frame goes to onEvent.
type conn struct {
	ws     *websocket.Conn
	server string
	send   chan []byte

	mu      sync.Mutex
	pending map[string]chan *frame

	onEvent func(*frame)

	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, server string, onEvent func(*frame)) *conn {
	c := &conn{
		ws:      ws,
		server:  server,
		send:    make(chan []byte, sendBuffer),
		pending: make(map[string]chan *frame),
		onEvent: onEvent,
		closed:  make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// call sends f and waits for the gateway's direct reply to it.
func (c *conn) call(ctx context.Context, f *frame) (*frame, error) {
	f.Transaction = uuid.NewString()
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	reply := make(chan *frame, 1)
	c.mu.Lock()
	c.pending[f.Transaction] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Transaction)
		c.mu.Unlock()
	}()

	select {
	case c.send <- data:
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "janus.conn").Msg("writePump set deadline")
				c.close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "janus.conn").Msg("writePump write error")
				c.close()
				return
			}
		}
	}
}

func (c *conn) readPump() {
	defer func() {
		log.Info().Str("module", "janus.conn").Str("server", c.server).Msg("readPump closing")
		c.close()
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Error().Err(err).Str("module", "janus.conn").Str("server", c.server).Msg("readPump read error")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Error().Err(err).Str("module", "janus.conn").Msg("bad json")
			continue
		}
		c.dispatch(&f)
	}
}

// dispatch hands direct replies (ack, success, error) to their caller. Plugin
// events carry the transaction of the request they answer, but go to onEvent
// like any other asynchronous frame.
func (c *conn) dispatch(f *frame) {
	if f.Transaction != "" && f.Janus != "event" {
		c.mu.Lock()
		reply, ok := c.pending[f.Transaction]
		c.mu.Unlock()
		if ok {
			select {
			case reply <- f:
			default:
			}
			return
		}
	}
	if c.onEvent != nil {
		c.onEvent(f)
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
