package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshplate/menuselect/internal/domain/cart"
	"github.com/freshplate/menuselect/internal/domain/occurrence"
	"github.com/freshplate/menuselect/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func bindingColumns() []string {
	return []string{"id", "customer_id", "occurrence_id", "is_skipped", "is_auto", "cart_id", "created_at", "updated_at"}
}

func TestUpsertBindingInsertsThenSelects(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_bindings")).
		WithArgs(sqlmock.AnyArg(), "cust-1", "occ-1", false, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, customer_id, occurrence_id")).
		WithArgs("cust-1", "occ-1").
		WillReturnRows(sqlmock.NewRows(bindingColumns()).
			AddRow("b-1", "cust-1", "occ-1", false, false, nil, now, now))

	b, err := store.UpsertBinding(context.Background(), occurrence.Binding{CustomerID: "cust-1", OccurrenceID: "occ-1"})
	require.NoError(t, err)
	assert.Equal(t, "b-1", b.ID)
	assert.False(t, b.HasCart())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBindingConflictReturnsWinner(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// DO NOTHING: zero rows affected, the follow-up select returns the row
	// that won the original race.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_bindings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, customer_id, occurrence_id")).
		WithArgs("cust-1", "occ-1").
		WillReturnRows(sqlmock.NewRows(bindingColumns()).
			AddRow("b-winner", "cust-1", "occ-1", true, false, "c-1", now, now))

	b, err := store.UpsertBinding(context.Background(), occurrence.Binding{CustomerID: "cust-1", OccurrenceID: "occ-1"})
	require.NoError(t, err)
	assert.Equal(t, "b-winner", b.ID)
	assert.True(t, b.IsSkipped)
	require.True(t, b.HasCart())
	assert.Equal(t, "c-1", *b.CartID)
}

func TestGetBindingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, customer_id, occurrence_id")).
		WithArgs("cust-1", "occ-404").
		WillReturnRows(sqlmock.NewRows(bindingColumns()))

	_, err := store.GetBinding(context.Background(), "cust-1", "occ-404")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBulkUpsertBindingsRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_bindings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_bindings")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.BulkUpsertBindings(context.Background(), []occurrence.Binding{
		{CustomerID: "cust-1", OccurrenceID: "occ-1"},
		{CustomerID: "cust-1", OccurrenceID: "occ-2"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertBindingsCommits(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	for range []int{0, 1} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_bindings")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for _, occ := range []string{"occ-1", "occ-2"} {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, customer_id, occurrence_id")).
			WithArgs("cust-1", occ).
			WillReturnRows(sqlmock.NewRows(bindingColumns()).
				AddRow("b-"+occ, "cust-1", occ, true, true, nil, now, now))
	}
	mock.ExpectCommit()

	saved, err := store.BulkUpsertBindings(context.Background(), []occurrence.Binding{
		{CustomerID: "cust-1", OccurrenceID: "occ-1", IsSkipped: true, IsAuto: true},
		{CustomerID: "cust-1", OccurrenceID: "occ-2", IsSkipped: true, IsAuto: true},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.True(t, saved[0].IsSkipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBindingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE occurrence_bindings")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateBinding(context.Background(), occurrence.Binding{ID: "b-404", CustomerID: "cust-1", OccurrenceID: "occ-1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func cartColumns() []string {
	return []string{"id", "binding_id", "customer_id", "status", "products", "fulfillment", "created_at", "updated_at"}
}

func TestGetCartDecodesJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	products := []byte(`[{"ID":"li-1","ProductID":"meal-a","Quantity":2,"UnitPrice":1299,"IsAddOn":false,"IsAutoAdded":false}]`)
	fulfillmentJSON := []byte(`{"type":"DELIVERY","slot":{"from":"2026-09-07T08:00:00Z","to":"2026-09-07T12:00:00Z"}}`)

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(cartColumns()).
			AddRow("c-1", "b-1", "cust-1", "PENDING", products, fulfillmentJSON, now, now))

	c, err := store.GetCart(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StatusPending, c.Status)
	require.Len(t, c.Products, 1)
	assert.Equal(t, "meal-a", c.Products[0].ProductID)
	assert.Equal(t, 2, c.Products[0].Quantity)
	require.NotNil(t, c.Fulfillment)
	assert.Equal(t, "DELIVERY", string(c.Fulfillment.Type))
}

func TestUpdateCartStatusRejectsInvalidTransition(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(cartColumns()).
			AddRow("c-1", "b-1", "cust-1", "ORDER_PLACED", []byte("[]"), nil, now, now))

	var transitionErr cart.TransitionError
	_, err := store.UpdateCartStatus(context.Background(), "c-1", cart.StatusPending)
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, cart.StatusOrderPlaced, transitionErr.From)
}

func TestAddLineItemWritesBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(cartColumns()).
			AddRow("c-1", "b-1", "cust-1", "PENDING", []byte("[]"), nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE carts SET products")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := store.AddLineItem(context.Background(), "c-1", cart.LineItem{ProductID: "meal-a"})
	require.NoError(t, err)
	require.Len(t, c.Products, 1)
	assert.NotEmpty(t, c.Products[0].ID)
	assert.Equal(t, 1, c.Products[0].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}
