// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/fulfillment"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/storage"
)

// Store implements the storage interfaces against PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using the lib/pq driver.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

type occurrenceRow struct {
	ID              string    `db:"id"`
	SubscriptionID  string    `db:"subscription_id"`
	FulfillmentDate time.Time `db:"fulfillment_date"`
	IsValid         bool      `db:"is_valid"`
	IsVisible       bool      `db:"is_visible"`
}

func (r occurrenceRow) toDomain() occurrence.Occurrence {
	return occurrence.Occurrence{
		ID:              r.ID,
		SubscriptionID:  r.SubscriptionID,
		FulfillmentDate: r.FulfillmentDate,
		IsValid:         r.IsValid,
		IsVisible:       r.IsVisible,
	}
}

type bindingRow struct {
	ID           string         `db:"id"`
	CustomerID   string         `db:"customer_id"`
	OccurrenceID string         `db:"occurrence_id"`
	IsSkipped    bool           `db:"is_skipped"`
	IsAuto       bool           `db:"is_auto"`
	CartID       sql.NullString `db:"cart_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r bindingRow) toDomain() occurrence.Binding {
	b := occurrence.Binding{
		ID:           r.ID,
		CustomerID:   r.CustomerID,
		OccurrenceID: r.OccurrenceID,
		IsSkipped:    r.IsSkipped,
		IsAuto:       r.IsAuto,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.CartID.Valid {
		cartID := r.CartID.String
		b.CartID = &cartID
	}
	return b
}

type cartRow struct {
	ID          string    `db:"id"`
	BindingID   string    `db:"binding_id"`
	CustomerID  string    `db:"customer_id"`
	Status      string    `db:"status"`
	Products    []byte    `db:"products"`
	Fulfillment []byte    `db:"fulfillment"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r cartRow) toDomain() (cart.Cart, error) {
	c := cart.Cart{
		ID:         r.ID,
		BindingID:  r.BindingID,
		CustomerID: r.CustomerID,
		Status:     cart.ParseStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Products) > 0 {
		if err := json.Unmarshal(r.Products, &c.Products); err != nil {
			return cart.Cart{}, fmt.Errorf("decode cart products: %w", err)
		}
	}
	if len(r.Fulfillment) > 0 {
		var info fulfillment.Info
		if err := json.Unmarshal(r.Fulfillment, &info); err != nil {
			return cart.Cart{}, fmt.Errorf("decode cart fulfillment: %w", err)
		}
		c.Fulfillment = &info
	}
	return c, nil
}

// --- OccurrenceStore --------------------------------------------------------

func (s *Store) PutOccurrences(ctx context.Context, occs []occurrence.Occurrence) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, occ := range occs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO occurrences (id, subscription_id, fulfillment_date, is_valid, is_visible)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET is_valid = EXCLUDED.is_valid, is_visible = EXCLUDED.is_visible
		`, occ.ID, occ.SubscriptionID, occ.FulfillmentDate, occ.IsValid, occ.IsVisible)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListOccurrences(ctx context.Context, subscriptionID string) ([]occurrence.Occurrence, error) {
	var rows []occurrenceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, subscription_id, fulfillment_date, is_valid, is_visible
		FROM occurrences
		WHERE subscription_id = $1
		ORDER BY fulfillment_date ASC
	`, subscriptionID)
	if err != nil {
		return nil, err
	}

	result := make([]occurrence.Occurrence, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) GetOccurrence(ctx context.Context, id string) (occurrence.Occurrence, error) {
	var row occurrenceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, subscription_id, fulfillment_date, is_valid, is_visible
		FROM occurrences WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return occurrence.Occurrence{}, fmt.Errorf("occurrence %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return occurrence.Occurrence{}, err
	}
	return row.toDomain(), nil
}

// --- BindingStore -----------------------------------------------------------

const upsertBindingSQL = `
	INSERT INTO occurrence_bindings (id, customer_id, occurrence_id, is_skipped, is_auto, cart_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (customer_id, occurrence_id) DO NOTHING
`

const selectBindingSQL = `
	SELECT id, customer_id, occurrence_id, is_skipped, is_auto, cart_id, created_at, updated_at
	FROM occurrence_bindings
	WHERE customer_id = $1 AND occurrence_id = $2
`

func (s *Store) UpsertBinding(ctx context.Context, b occurrence.Binding) (occurrence.Binding, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	// DO NOTHING on conflict keeps the first writer's record; the follow-up
	// select returns whichever row won.
	_, err := s.db.ExecContext(ctx, upsertBindingSQL,
		b.ID, b.CustomerID, b.OccurrenceID, b.IsSkipped, b.IsAuto, nullString(b.CartID), now)
	if err != nil {
		return occurrence.Binding{}, err
	}

	var row bindingRow
	if err := s.db.GetContext(ctx, &row, selectBindingSQL, b.CustomerID, b.OccurrenceID); err != nil {
		return occurrence.Binding{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) BulkUpsertBindings(ctx context.Context, bs []occurrence.Binding) ([]occurrence.Binding, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range bs {
		if bs[i].ID == "" {
			bs[i].ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, upsertBindingSQL,
			bs[i].ID, bs[i].CustomerID, bs[i].OccurrenceID, bs[i].IsSkipped, bs[i].IsAuto,
			nullString(bs[i].CartID), now)
		if err != nil {
			return nil, err
		}
	}

	result := make([]occurrence.Binding, 0, len(bs))
	for _, b := range bs {
		var row bindingRow
		if err := tx.GetContext(ctx, &row, selectBindingSQL, b.CustomerID, b.OccurrenceID); err != nil {
			return nil, err
		}
		result = append(result, row.toDomain())
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetBinding(ctx context.Context, customerID, occurrenceID string) (occurrence.Binding, error) {
	var row bindingRow
	err := s.db.GetContext(ctx, &row, selectBindingSQL, customerID, occurrenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return occurrence.Binding{}, fmt.Errorf("binding for customer %s occurrence %s: %w",
			customerID, occurrenceID, storage.ErrNotFound)
	}
	if err != nil {
		return occurrence.Binding{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateBinding(ctx context.Context, b occurrence.Binding) (occurrence.Binding, error) {
	b.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE occurrence_bindings
		SET is_skipped = $3, is_auto = $4, cart_id = $5, updated_at = $6
		WHERE customer_id = $1 AND occurrence_id = $2
	`, b.CustomerID, b.OccurrenceID, b.IsSkipped, b.IsAuto, nullString(b.CartID), b.UpdatedAt)
	if err != nil {
		return occurrence.Binding{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return occurrence.Binding{}, fmt.Errorf("binding %s: %w", b.ID, storage.ErrNotFound)
	}
	return s.GetBinding(ctx, b.CustomerID, b.OccurrenceID)
}

func (s *Store) ListBindings(ctx context.Context, customerID string) ([]occurrence.Binding, error) {
	var rows []bindingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, customer_id, occurrence_id, is_skipped, is_auto, cart_id, created_at, updated_at
		FROM occurrence_bindings
		WHERE customer_id = $1
		ORDER BY occurrence_id ASC
	`, customerID)
	if err != nil {
		return nil, err
	}

	result := make([]occurrence.Binding, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// --- CartStore --------------------------------------------------------------

func (s *Store) CreateCart(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == cart.StatusAbsent {
		c.Status = cart.StatusPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	products, fulfillmentJSON, err := encodeCart(c)
	if err != nil {
		return cart.Cart{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (id, binding_id, customer_id, status, products, fulfillment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.BindingID, c.CustomerID, c.Status.String(), products, fulfillmentJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

func (s *Store) GetCart(ctx context.Context, id string) (cart.Cart, error) {
	return s.getCartWhere(ctx, "id = $1", id)
}

func (s *Store) GetCartByBinding(ctx context.Context, bindingID string) (cart.Cart, error) {
	return s.getCartWhere(ctx, "binding_id = $1", bindingID)
}

func (s *Store) getCartWhere(ctx context.Context, where, arg string) (cart.Cart, error) {
	var row cartRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, binding_id, customer_id, status, products, fulfillment, created_at, updated_at
		FROM carts WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Cart{}, fmt.Errorf("cart (%s): %w", arg, storage.ErrNotFound)
	}
	if err != nil {
		return cart.Cart{}, err
	}
	return row.toDomain()
}

func (s *Store) UpdateCartStatus(ctx context.Context, id string, to cart.Status) (cart.Cart, error) {
	existing, err := s.GetCart(ctx, id)
	if err != nil {
		return cart.Cart{}, err
	}
	if !cart.CanTransition(existing.Status, to) {
		return cart.Cart{}, cart.NewTransitionError(existing.Status, to)
	}

	existing.Status = to
	existing.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE carts SET status = $2, updated_at = $3 WHERE id = $1
	`, id, to.String(), existing.UpdatedAt)
	if err != nil {
		return cart.Cart{}, err
	}
	return existing, nil
}

func (s *Store) SetCartFulfillment(ctx context.Context, id string, info fulfillment.Info) (cart.Cart, error) {
	existing, err := s.GetCart(ctx, id)
	if err != nil {
		return cart.Cart{}, err
	}
	existing.Fulfillment = &info
	return s.writeCart(ctx, existing)
}

func (s *Store) AddLineItem(ctx context.Context, cartID string, item cart.LineItem) (cart.Cart, error) {
	existing, err := s.GetCart(ctx, cartID)
	if err != nil {
		return cart.Cart{}, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	existing.Products = append(existing.Products, item)
	return s.writeCart(ctx, existing)
}

func (s *Store) RemoveLineItem(ctx context.Context, cartID, lineItemID string) (cart.Cart, error) {
	existing, err := s.GetCart(ctx, cartID)
	if err != nil {
		return cart.Cart{}, err
	}
	found := false
	for i, item := range existing.Products {
		if item.ID == lineItemID {
			existing.Products = append(existing.Products[:i], existing.Products[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return cart.Cart{}, fmt.Errorf("line item %s on cart %s: %w", lineItemID, cartID, storage.ErrNotFound)
	}
	return s.writeCart(ctx, existing)
}

func (s *Store) writeCart(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	c.UpdatedAt = time.Now().UTC()
	products, fulfillmentJSON, err := encodeCart(c)
	if err != nil {
		return cart.Cart{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE carts SET products = $2, fulfillment = $3, updated_at = $4 WHERE id = $1
	`, c.ID, products, fulfillmentJSON, c.UpdatedAt)
	if err != nil {
		return cart.Cart{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func encodeCart(c cart.Cart) (products, fulfillmentJSON []byte, err error) {
	products, err = json.Marshal(c.Products)
	if err != nil {
		return nil, nil, fmt.Errorf("encode cart products: %w", err)
	}
	if c.Fulfillment != nil {
		fulfillmentJSON, err = json.Marshal(c.Fulfillment)
		if err != nil {
			return nil, nil, fmt.Errorf("encode cart fulfillment: %w", err)
		}
	}
	return products, fulfillmentJSON, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
