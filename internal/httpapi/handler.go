// Package httpapi exposes the selection engine to UI clients: flow lifecycle,
// state reads and action dispatch.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/freshplate/menuselect/internal/app"
	"github.com/freshplate/menuselect/internal/config"
	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/engine"
	"github.com/freshplate/menuselect/internal/engine/selector"
	"github.com/freshplate/menuselect/internal/identity"
	"github.com/freshplate/menuselect/pkg/logger"
)

// handler bundles HTTP endpoints for the application.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns a router exposing the flow API, wrapped in the
// recovery, logging, CORS and rate-limit middleware.
func NewHandler(application *app.Application, server config.ServerConfig, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics().Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/flows", h.startFlow).Methods(http.MethodPost)
	v1.HandleFunc("/flows/{id}/state", h.flowState).Methods(http.MethodGet)
	v1.HandleFunc("/flows/{id}/dispatch", h.dispatch).Methods(http.MethodPost)
	v1.HandleFunc("/flows/{id}", h.endFlow).Methods(http.MethodDelete)

	// CORS wraps the router itself so preflight requests short-circuit
	// before method matching can reject them.
	var hnd http.Handler = r
	if server.RequestsPerSecond > 0 {
		hnd = rateLimitMiddleware(server.RequestsPerSecond, server.Burst)(hnd)
	}
	hnd = corsMiddleware(server.AllowedOrigins)(hnd)
	hnd = requestLogMiddleware(log)(hnd)
	hnd = recoverMiddleware(log)(hnd)
	return hnd
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startFlowRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	// CustomerID is accepted for unauthenticated/test traffic; a bearer
	// token on the request takes precedence.
	CustomerID string `json:"customerId"`
	// PinDate deep-links to one fulfillment date (YYYY-MM-DD).
	PinDate string `json:"pinDate,omitempty"`
}

func (h *handler) startFlow(w http.ResponseWriter, r *http.Request) {
	var payload startFlowRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("subscriptionId is required"))
		return
	}

	customerID := payload.CustomerID
	if token := bearerToken(r); token != "" {
		sess, err := identity.FromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		customerID = sess.SubjectID
	}
	if customerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("customer identity is required"))
		return
	}

	var pinDate *time.Time
	if payload.PinDate != "" {
		t, err := time.Parse("2006-01-02", payload.PinDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("pinDate must be YYYY-MM-DD"))
			return
		}
		pinDate = &t
	}

	flow, err := h.app.StartFlow(r.Context(), customerID, payload.SubscriptionID, pinDate)
	if err != nil && !errors.Is(err, engine.ErrNoValidOccurrence) {
		writeEngineError(w, err)
		return
	}

	// An empty week set still creates the flow; the snapshot's phase tells
	// the UI to render the empty state.
	writeJSON(w, http.StatusCreated, map[string]any{
		"flowId": flow.ID,
		"state":  flow.Snapshot(),
	})
}

func (h *handler) flowState(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.app.Flow(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

func (h *handler) endFlow(w http.ResponseWriter, r *http.Request) {
	h.app.EndFlow(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

type dispatchRequest struct {
	Action string `json:"action"`

	// select_week / skip_up_to
	OccurrenceID string `json:"occurrenceId,omitempty"`
	// advance
	Direction string `json:"direction,omitempty"`
	// add_product
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
	IsAddOn   bool   `json:"isAddOn,omitempty"`
	// remove_product
	LineItemID string `json:"lineItemId,omitempty"`
	// set_fulfillment
	Mode    string               `json:"mode,omitempty"`
	Address *fulfillment.Address `json:"address,omitempty"`
	// toggle_skip
	NoSkip bool `json:"noSkip,omitempty"`
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.app.Flow(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var payload dispatchRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	switch payload.Action {
	case "select_week":
		_, err = flow.SelectWeek(r.Context(), payload.OccurrenceID)
	case "advance":
		dir := selector.DirectionNext
		if payload.Direction == string(selector.DirectionPrevious) {
			dir = selector.DirectionPrevious
		}
		_, err = flow.Advance(r.Context(), dir)
	case "add_product":
		if !flow.CanAdd(payload.IsAddOn) {
			writeError(w, http.StatusUnprocessableEntity, errors.New("cart already full"))
			return
		}
		err = flow.AddProduct(r.Context(), cart.LineItem{
			ProductID: payload.ProductID,
			Quantity:  payload.Quantity,
			UnitPrice: payload.UnitPrice,
			IsAddOn:   payload.IsAddOn,
		})
	case "remove_product":
		err = flow.RemoveProduct(r.Context(), payload.LineItemID)
	case "set_fulfillment":
		err = flow.SetFulfillment(fulfillment.Mode(payload.Mode), payload.Address)
	case "toggle_skip":
		err = flow.ToggleSkip(r.Context(), payload.NoSkip)
	case "skip_up_to":
		_, err = flow.SkipUpTo(r.Context(), payload.OccurrenceID)
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown action "+payload.Action))
		return
	}

	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func writeEngineError(w http.ResponseWriter, err error) {
	var unavailable fulfillment.UnavailableError
	switch {
	case engine.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &unavailable):
		writeError(w, http.StatusConflict, err)
	case engine.IsNetwork(err):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
