package gqlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/freshplate/menuselect/pkg/logger"
)

// subscriptionHub fakes a graphql-transport-ws endpoint: it acks the
// handshake and answers every subscribe with one next push.
func subscriptionHub(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"graphql-transport-ws"},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case msgConnectionInit:
				_ = conn.WriteJSON(wsMessage{Type: msgConnectionAck})
			case msgSubscribe:
				payload, _ := json.Marshal(map[string]any{
					"data": map[string]any{
						"occurrenceUpdated": map[string]any{"id": "occ-2", "isValid": false},
					},
				})
				_ = conn.WriteJSON(wsMessage{ID: msg.ID, Type: msgNext, Payload: payload})
				_ = conn.WriteJSON(wsMessage{ID: msg.ID, Type: msgComplete})
			case msgPing:
				_ = conn.WriteJSON(wsMessage{Type: msgPong})
			}
		}
	}))
}

func TestSubscriptionClientHandshakeAndPush(t *testing.T) {
	hub := subscriptionHub(t)
	defer hub.Close()

	client := NewSubscriptionClient(hub.URL, "tok-123", logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.WaitForAck(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	pushes := make(chan gjson.Result, 1)
	id, err := client.Subscribe(
		"subscription { occurrenceUpdated { id isValid } }",
		nil,
		func(data gjson.Result) { pushes <- data },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if id == "" {
		t.Fatal("subscription id must be assigned")
	}

	select {
	case data := <-pushes:
		if got := data.Get("occurrenceUpdated.id").String(); got != "occ-2" {
			t.Fatalf("push = %s", data.Raw)
		}
		if data.Get("occurrenceUpdated.isValid").Bool() {
			t.Fatal("push must carry isValid=false")
		}
	case <-ctx.Done():
		t.Fatal("no push received")
	}
}

func TestSubscriptionClientURLRewrite(t *testing.T) {
	cases := map[string]string{
		"http://hub.example.com/graphql":  "ws://hub.example.com/graphql",
		"https://hub.example.com/graphql": "wss://hub.example.com/graphql",
		"ws://hub.example.com/graphql":    "ws://hub.example.com/graphql",
	}
	for in, want := range cases {
		c := NewSubscriptionClient(in, "", logger.Nop())
		if c.url != want {
			t.Errorf("rewrite(%q) = %q, want %q", in, c.url, want)
		}
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := NewSubscriptionClient("ws://localhost:0/graphql", "", logger.Nop())
	if _, err := c.Subscribe("subscription { x }", nil, func(gjson.Result) {}); err == nil {
		t.Fatal("subscribe before connect must fail")
	}
}
