package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravelhq/storefront/pkg/scope"
)

func nowRow() time.Time { return time.Now() }

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	reg := scope.NewRegistry()
	RegisterScope(reg)
	reg.Seal()

	return NewStore(db, reg), mock, func() { db.Close() }
}

func scopedCtx(companyID int64) context.Context {
	return scope.WithTenant(context.Background(), companyID)
}

func TestGetProductScoped(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "company_id", "category_id", "name", "description", "price_cents", "stock", "created_at", "updated_at",
	}).AddRow(5, 42, nil, "Mug", "A mug", 1200, 10, nowRow(), nowRow())

	mock.ExpectQuery("SELECT (.+) FROM products p").
		WithArgs(int64(5), int64(42)).
		WillReturnRows(rows)

	p, err := store.GetProduct(scopedCtx(42), 5)
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)
	assert.Equal(t, int64(42), p.CompanyID)
	assert.Nil(t, p.CategoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductFailsClosedWithoutScope(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	_, err := store.GetProduct(context.Background(), 5)
	assert.ErrorIs(t, err, scope.ErrNoTenantScope)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query may run without a tenant bound")
}

func TestGetProductOtherTenantReadsAsNotFound(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM products p").
		WithArgs(int64(5), int64(43)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetProduct(scopedCtx(43), 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductStampsTenant(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectQuery("INSERT INTO products").
		WithArgs(int64(42), nil, "Mug", "A mug", int64(1200), int64(10), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	p := &Product{Name: "Mug", Description: "A mug", PriceCents: 1200, Stock: 10}
	require.NoError(t, store.CreateProduct(scopedCtx(42), p))
	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, int64(42), p.CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductRejectsUnscopedContext(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	// Unscoped admins can read across tenants but cannot create rows without
	// saying which tenant owns them.
	err := store.CreateProduct(scope.WithUnscoped(context.Background()), &Product{Name: "Mug"})
	assert.ErrorIs(t, err, scope.ErrNoTenantScope)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsUnscopedKeepsSoftDeleteFilter(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "company_id", "category_id", "name", "description", "price_cents", "stock", "created_at", "updated_at",
	}).
		AddRow(1, 42, nil, "Mug", "", 1200, 1, nowRow(), nowRow()).
		AddRow(2, 43, nil, "Cap", "", 900, 2, nowRow(), nowRow())

	mock.ExpectQuery(`is_deleted = FALSE`).
		WithArgs(50, 0).
		WillReturnRows(rows)

	products, err := store.ListProducts(scope.WithUnscoped(context.Background()), 50, 0)
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteProduct(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("UPDATE products").
		WithArgs(sqlmock.AnyArg(), int64(7), int64(5), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SoftDeleteProduct(scopedCtx(42), 5, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteProductNotVisible(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectExec("UPDATE products").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SoftDeleteProduct(scopedCtx(42), 5, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRoundTrip(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectQuery("INSERT INTO categories").
		WithArgs(int64(42), "Drinkware", "drinkware", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	c := &Category{Name: "Drinkware", Slug: "drinkware"}
	require.NoError(t, store.CreateCategory(scopedCtx(42), c))
	assert.Equal(t, int64(3), c.ID)

	mock.ExpectQuery("SELECT (.+) FROM categories c").
		WithArgs(int64(3), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "slug", "created_at", "updated_at"}).
			AddRow(3, 42, "Drinkware", "drinkware", nowRow(), nowRow()))

	got, err := store.GetCategory(scopedCtx(42), 3)
	require.NoError(t, err)
	assert.Equal(t, "drinkware", got.Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}
