// Package gqlclient is the transport to the storefront's GraphQL data hub:
// point-in-time queries, mutations and live subscriptions. The engine treats
// it as an external collaborator with a narrow contract; all business rules
// live behind the endpoint.
package gqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/freshplate/menuselect/pkg/logger"
)

// Config controls client construction.
type Config struct {
	// Endpoint is the GraphQL HTTP URL.
	Endpoint string
	// AuthToken is sent as a bearer token when set.
	AuthToken string
	// RequestTimeout bounds one HTTP round trip. Defaults to 15s.
	RequestTimeout time.Duration
	// RequestsPerSecond rate-limits outgoing calls. 0 disables limiting.
	RequestsPerSecond int
	// Burst is the limiter burst size. Defaults to RequestsPerSecond.
	Burst int
}

// Client executes GraphQL operations over HTTP.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

// ErrGraphQL carries the first error message returned in a GraphQL response.
type ErrGraphQL struct {
	Operation string
	Message   string
}

// Error implements error.
func (e *ErrGraphQL) Error() string {
	return fmt.Sprintf("graphql %s: %s", e.Operation, e.Message)
}

// New creates a Client from config.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("gqlclient")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.AuthToken,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
		log:      log,
	}
}

type request struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Do executes one query or mutation and returns the raw "data" payload.
// GraphQL-level errors surface as *ErrGraphQL.
func (c *Client) Do(ctx context.Context, operationName, query string, variables map[string]any) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}
	}

	body, err := json.Marshal(request{
		OperationName: operationName,
		Query:         query,
		Variables:     variables,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", operationName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", operationName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s: unexpected status %d", operationName, resp.StatusCode)
	}

	parsed := gjson.ParseBytes(raw)
	if errMsg := parsed.Get("errors.0.message"); errMsg.Exists() {
		return gjson.Result{}, &ErrGraphQL{Operation: operationName, Message: errMsg.String()}
	}
	return parsed.Get("data"), nil
}
