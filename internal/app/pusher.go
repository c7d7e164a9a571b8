package app

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/freshplate/menuselect/internal/engine/reconciler"
	"github.com/freshplate/menuselect/internal/gqlclient"
	"github.com/freshplate/menuselect/pkg/logger"
)

// pusher bridges the GraphQL subscription channel to live flows: each flow
// gets one selectionEvents subscription whose payloads are folded into the
// session under the week-token guard.
type pusher struct {
	client *gqlclient.SubscriptionClient
	log    *logger.Logger

	mu        sync.Mutex
	connected bool
	// subs maps flow id to subscription id.
	subs map[string]string
}

func newPusher(endpoint string, log *logger.Logger) *pusher {
	return &pusher{
		client: gqlclient.NewSubscriptionClient(endpoint, "", log),
		log:    log,
		subs:   make(map[string]string),
	}
}

// connect dials the endpoint. Pushes refine refresh-on-navigation rather than
// replace it, so a failed dial only logs and the service keeps running.
func (p *pusher) connect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Connect(ctx); err != nil {
		p.log.Warnf("subscription channel unavailable: %v", err)
		return
	}
	if err := p.client.WaitForAck(ctx); err != nil {
		p.log.Warnf("subscription handshake failed: %v", err)
		_ = p.client.Close()
		return
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.log.Infof("subscription channel established")
}

// watch subscribes the flow to its customer's selection events.
func (p *pusher) watch(flow *Flow) {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return
	}

	id, err := p.client.Subscribe(gqlclient.SelectionEventsSubscription,
		map[string]any{"customerId": flow.Session().CustomerID()},
		func(data gjson.Result) {
			ev := gqlclient.ParsePushEvent(data.Get("selectionEvents"))
			flow.ApplyPush(reconciler.Push{
				Kind:         reconciler.PushKind(ev.Kind),
				OccurrenceID: ev.OccurrenceID,
				Binding:      ev.Binding,
				Cart:         ev.Cart,
				Zipcode:      ev.ZipcodeConfig,
			})
		})
	if err != nil {
		p.log.Warnf("subscribe selection events for flow %s: %v", flow.ID, err)
		return
	}

	p.mu.Lock()
	p.subs[flow.ID] = id
	p.mu.Unlock()
}

// forget drops the flow's subscription.
func (p *pusher) forget(flowID string) {
	p.mu.Lock()
	id, ok := p.subs[flowID]
	delete(p.subs, flowID)
	p.mu.Unlock()
	if ok {
		_ = p.client.Unsubscribe(id)
	}
}

func (p *pusher) close() {
	p.mu.Lock()
	connected := p.connected
	p.connected = false
	p.mu.Unlock()
	if connected {
		_ = p.client.Close()
	}
}
