package gqlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/freshplate/menuselect/pkg/logger"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// SubscriptionHandler receives the "data" payload of each subscription push.
type SubscriptionHandler func(data gjson.Result)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscriptionEntry struct {
	query     string
	variables map[string]any
	handler   SubscriptionHandler
}

// SubscriptionClient maintains a websocket to the GraphQL endpoint and
// dispatches live pushes to registered handlers.
type SubscriptionClient struct {
	mu       sync.RWMutex
	url      string
	token    string
	conn     *websocket.Conn
	subs     map[string]subscriptionEntry
	done     chan struct{}
	nextID   int
	acked    bool
	ackWait  chan struct{}
	log      *logger.Logger
}

// NewSubscriptionClient creates a subscription client for the given GraphQL
// endpoint. HTTP URLs are rewritten to their websocket form.
func NewSubscriptionClient(endpoint, token string, log *logger.Logger) *SubscriptionClient {
	if log == nil {
		log = logger.NewDefault("gql-subscriptions")
	}

	wsURL := endpoint
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[5:]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}

	return &SubscriptionClient{
		url:     wsURL,
		token:   token,
		subs:    make(map[string]subscriptionEntry),
		done:    make(chan struct{}),
		ackWait: make(chan struct{}),
		log:     log,
	}
}

// Connect dials the endpoint, performs the connection_init handshake and
// starts the reader and heartbeat goroutines.
func (c *SubscriptionClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	init := map[string]any{}
	if c.token != "" {
		init["Authorization"] = "Bearer " + c.token
	}
	payload, _ := json.Marshal(init)
	if err := conn.WriteJSON(wsMessage{Type: msgConnectionInit, Payload: payload}); err != nil {
		conn.Close()
		return fmt.Errorf("send connection_init: %w", err)
	}

	c.conn = conn
	c.done = make(chan struct{})
	c.acked = false
	c.ackWait = make(chan struct{})

	go c.readLoop()
	go c.heartbeat()

	return nil
}

// Close tears down the websocket.
func (c *SubscriptionClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	close(c.done)

	err := c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// Subscribe registers a subscription operation. Pushes flow to handler until
// the server completes the operation or the client closes. Returns the
// subscription id.
func (c *SubscriptionClient) Subscribe(query string, variables map[string]any, handler SubscriptionHandler) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", fmt.Errorf("not connected")
	}

	c.nextID++
	id := fmt.Sprintf("%d", c.nextID)

	payload, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return "", fmt.Errorf("encode subscribe payload: %w", err)
	}
	if err := c.conn.WriteJSON(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		return "", fmt.Errorf("send subscribe: %w", err)
	}

	c.subs[id] = subscriptionEntry{query: query, variables: variables, handler: handler}
	return id, nil
}

// Unsubscribe completes one subscription.
func (c *SubscriptionClient) Unsubscribe(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[id]; !ok {
		return nil
	}
	delete(c.subs, id)

	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(wsMessage{ID: id, Type: msgComplete})
}

func (c *SubscriptionClient) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *SubscriptionClient) dispatch(msg wsMessage) {
	switch msg.Type {
	case msgConnectionAck:
		c.mu.Lock()
		if !c.acked {
			c.acked = true
			close(c.ackWait)
		}
		c.mu.Unlock()

	case msgPing:
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			_ = conn.WriteJSON(wsMessage{Type: msgPong})
		}

	case msgNext:
		c.mu.RLock()
		entry, ok := c.subs[msg.ID]
		c.mu.RUnlock()
		if !ok {
			return
		}
		data := gjson.ParseBytes(msg.Payload).Get("data")
		go entry.handler(data)

	case msgError:
		c.log.Warnf("subscription %s errored: %s", msg.ID, string(msg.Payload))
		c.mu.Lock()
		delete(c.subs, msg.ID)
		c.mu.Unlock()

	case msgComplete:
		c.mu.Lock()
		delete(c.subs, msg.ID)
		c.mu.Unlock()
	}
}

func (c *SubscriptionClient) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.WriteJSON(wsMessage{Type: msgPing})
			}
			c.mu.Unlock()
		}
	}
}

// WaitForAck blocks until the server acknowledges the connection or the
// context expires.
func (c *SubscriptionClient) WaitForAck(ctx context.Context) error {
	c.mu.RLock()
	ackWait := c.ackWait
	c.mu.RUnlock()

	select {
	case <-ackWait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
