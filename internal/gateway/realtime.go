package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"meridian/internal/models"
	"meridian/internal/observability"

	"github.com/gorilla/websocket"
)

// ChangeEvent classifies a row-level change notification.
type ChangeEvent string

const (
	ChangeInsert ChangeEvent = "INSERT"
	ChangeUpdate ChangeEvent = "UPDATE"
	ChangeDelete ChangeEvent = "DELETE"
)

// Change is one row-level change on a subscribed relation. Record carries the
// raw row; subscribers typically ignore it and re-fetch the affected scope.
type Change struct {
	Table  string
	Event  ChangeEvent
	Record json.RawMessage
}

// Realtime subscribes to row-level change notifications on named relations.
type Realtime interface {
	Subscribe(ctx context.Context, table string, fn func(Change)) error
	Close() error
}

const heartbeatInterval = 30 * time.Second

// RealtimeClient is the websocket implementation of Realtime. One connection
// multiplexes all table subscriptions.
type RealtimeClient struct {
	url     string
	anonKey string
	logger  *observability.SyncLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]func(Change)
	refSeq   int
	done     chan struct{}
}

// NewRealtimeClient prepares a realtime subscriber for the backend at
// wsURL. The connection is established lazily on the first Subscribe.
func NewRealtimeClient(wsURL, anonKey string) *RealtimeClient {
	return &RealtimeClient{
		url:      wsURL,
		anonKey:  anonKey,
		logger:   observability.NewSyncLogger("realtime"),
		handlers: make(map[string][]func(Change)),
	}
}

// channelMessage is the wire shape of channel frames in both directions.
type channelMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref"`
}

type changePayload struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// Subscribe registers fn for row-level changes on table, joining the table's
// channel. The callback runs on the read loop goroutine and must not block.
func (c *RealtimeClient) Subscribe(ctx context.Context, table string, fn func(Change)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic := "realtime:public:" + table
	c.handlers[topic] = append(c.handlers[topic], fn)

	if c.conn == nil {
		// connectLocked joins every registered topic, this one included.
		return c.connectLocked(ctx)
	}
	if len(c.handlers[topic]) == 1 {
		return c.joinLocked(topic)
	}
	return nil
}

func (c *RealtimeClient) joinLocked(topic string) error {
	c.refSeq++
	join := channelMessage{
		Topic: topic,
		Event: "phx_join",
		Ref:   fmt.Sprintf("%d", c.refSeq),
	}
	if err := c.conn.WriteJSON(join); err != nil {
		return models.NewTransientError("realtime subscribe failed", err)
	}
	return nil
}

func (c *RealtimeClient) connectLocked(ctx context.Context) error {
	u := c.url
	if c.anonKey != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "apikey=" + c.anonKey
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return models.NewTransientError("realtime connection failed", err)
	}
	c.conn = conn
	c.done = make(chan struct{})

	// Subscriptions registered before a dropped connection survive it; every
	// known topic is joined again on the fresh socket.
	for topic := range c.handlers {
		if err := c.joinLocked(topic); err != nil {
			conn.Close()
			c.conn = nil
			return err
		}
	}

	go c.readLoop(conn, c.done)
	go c.heartbeat(conn, c.done)

	return nil
}

func (c *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var msg channelMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.LogError(context.Background(), err, "read")
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		switch msg.Event {
		case "phx_reply", "heartbeat":
			continue
		}

		var payload changePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			continue
		}
		table := strings.TrimPrefix(msg.Topic, "realtime:public:")
		change := Change{
			Table:  table,
			Event:  ChangeEvent(payload.Type),
			Record: payload.Record,
		}
		observability.RealtimeEvents.WithLabelValues(table, payload.Type).Inc()

		c.mu.Lock()
		handlers := append([]func(Change){}, c.handlers[msg.Topic]...)
		c.mu.Unlock()
		for _, fn := range handlers {
			fn(change)
		}
	}
}

func (c *RealtimeClient) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.refSeq++
			msg := channelMessage{
				Topic: "phoenix",
				Event: "heartbeat",
				Ref:   fmt.Sprintf("%d", c.refSeq),
			}
			err := conn.WriteJSON(msg)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close tears down the connection and drops all subscriptions.
func (c *RealtimeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string][]func(Change))
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
