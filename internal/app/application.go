// Package app composes the menuselect engine: storage, transport, cache,
// metrics and the per-customer selection flows. Business rules live in the
// engine packages; this layer only wires them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/freshplate/menuselect/internal/cache"
	"github.com/freshplate/menuselect/internal/config"
	"github.com/freshplate/menuselect/internal/domain/subscription"
	"github.com/freshplate/menuselect/internal/gqlclient"
	"github.com/freshplate/menuselect/internal/metrics"
	"github.com/freshplate/menuselect/internal/storage"
	"github.com/freshplate/menuselect/internal/storage/memory"
	"github.com/freshplate/menuselect/internal/storage/postgres"
	"github.com/freshplate/menuselect/pkg/logger"
)

// SubscriptionSource loads the customer's contract from the data layer.
type SubscriptionSource interface {
	FetchSubscription(ctx context.Context, id string) (subscription.Subscription, error)
}

// Application holds the shared collaborators and the live flows.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	store   storage.Store
	cache   cache.OccurrenceCache
	gql     *gqlclient.Client
	subs    SubscriptionSource
	metrics *metrics.Collector
	cron    *cron.Cron
	pusher  *pusher

	mu    sync.RWMutex
	flows map[string]*Flow
	// subscriptionsInUse tracks which subscriptions have live flows, for
	// the periodic cache refresh.
	subscriptionsInUse map[string]int
}

// New builds the application from config.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Output:     cfg.Logging.Output,
			FilePrefix: cfg.Logging.FilePrefix,
		})
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	gql := gqlclient.New(gqlclient.Config{
		Endpoint:          cfg.GraphQL.Endpoint,
		RequestTimeout:    time.Duration(cfg.GraphQL.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.GraphQL.RequestsPerSecond,
		Burst:             cfg.GraphQL.Burst,
	}, log.Component("gqlclient"))

	var occCache cache.OccurrenceCache
	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		occCache = cache.NewRedis(client, ttl)
	} else {
		occCache = cache.NewMemory(ttl)
	}

	a := &Application{
		cfg:                cfg,
		log:                log,
		store:              store,
		cache:              occCache,
		gql:                gql,
		subs:               gql,
		metrics:            metrics.NewCollector(""),
		pusher:             newPusher(cfg.GraphQL.Endpoint, log.Component("pusher")),
		flows:              make(map[string]*Flow),
		subscriptionsInUse: make(map[string]int),
	}

	if cfg.Refresh.Schedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(cfg.Refresh.Schedule, a.refreshOccurrences); err != nil {
			return nil, fmt.Errorf("schedule refresh: %w", err)
		}
	}
	return a, nil
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := postgres.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.New(), nil
	}
}

// Start launches background work: the refresh scheduler and the push channel.
func (a *Application) Start() {
	if a.cron != nil {
		a.cron.Start()
	}
	go a.pusher.connect()
}

// Stop halts background work.
func (a *Application) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
	a.pusher.close()
}

// Metrics exposes the collector for the HTTP layer.
func (a *Application) Metrics() *metrics.Collector {
	return a.metrics
}

// StartFlow begins a menu-selection session: it loads the customer's
// contract, wires a Flow and performs the initial week selection.
func (a *Application) StartFlow(ctx context.Context, customerID, subscriptionID string, pinDate *time.Time) (*Flow, error) {
	sub, err := a.subs.FetchSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}

	flow := NewFlow(customerID, sub, FlowDeps{
		Store:   a.store,
		Source:  a.gql,
		Cache:   a.cache,
		Metrics: a.metrics,
		Log:     a.log,
	})

	if err := flow.Load(ctx, subscriptionID, pinDate); err != nil {
		// An empty week set is a terminal state, not a setup failure;
		// the flow is kept so the UI can render it.
		a.register(flow, subscriptionID)
		return flow, err
	}

	a.register(flow, subscriptionID)
	a.pusher.watch(flow)
	return flow, nil
}

func (a *Application) register(flow *Flow, subscriptionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flows[flow.ID] = flow
	a.subscriptionsInUse[subscriptionID]++
}

// Flow returns a live flow by id.
func (a *Application) Flow(id string) (*Flow, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.flows[id]
	return f, ok
}

// EndFlow tears down a session.
func (a *Application) EndFlow(id string) {
	a.mu.Lock()
	f, ok := a.flows[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.flows, id)
	subID := f.sess.Subscription().ID
	if n := a.subscriptionsInUse[subID]; n > 1 {
		a.subscriptionsInUse[subID] = n - 1
	} else {
		delete(a.subscriptionsInUse, subID)
	}
	a.mu.Unlock()

	a.pusher.forget(id)
}

// refreshOccurrences drops cached occurrence sets for subscriptions with live
// flows. Validity windows close on the server as cutoffs pass; invalidation
// makes the next load observe them.
func (a *Application) refreshOccurrences() {
	a.mu.RLock()
	ids := make([]string, 0, len(a.subscriptionsInUse))
	for id := range a.subscriptionsInUse {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range ids {
		if err := a.cache.Invalidate(ctx, id); err != nil {
			a.log.Warnf("occurrence cache invalidation failed for %s: %v", id, err)
		}
	}
	if len(ids) > 0 {
		a.log.Debugf("invalidated occurrence cache for %d subscriptions", len(ids))
	}
}
