package execute

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/relationships"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

func setupOrders(t *testing.T) *schema.FrozenModel {
	t.Helper()

	m := schema.NewModel()
	specs := []schema.EntitySpec{
		{
			Name:       "Order",
			Properties: []schema.Property{{Name: "Id", Type: schema.TypeBigInt, PrimaryKey: true}},
		},
		{
			Name: "LineItem",
			Properties: []schema.Property{
				{Name: "Id", Type: schema.TypeBigInt, PrimaryKey: true},
				{Name: "OrderId", Type: schema.TypeBigInt},
			},
		},
		{
			Name: "Shipment",
			Properties: []schema.Property{
				{Name: "Id", Type: schema.TypeBigInt, PrimaryKey: true},
				{Name: "OrderId", Type: schema.TypeBigInt, Nullable: true},
			},
		},
	}
	for _, spec := range specs {
		_, err := m.Register(spec)
		require.NoError(t, err)
	}
	require.NoError(t, relationships.NewResolver(m).ResolveAll())

	frozen, err := m.Freeze()
	require.NoError(t, err)
	return frozen
}

func cascadeAction() *deletion.Action {
	return &deletion.Action{
		Kind:   deletion.Cascade,
		Target: deletion.Row{Entity: "Order", Key: int64(1)},
		Deletes: []deletion.Row{
			{Entity: "LineItem", Key: int64(10)},
			{Entity: "LineItem", Key: int64(11)},
		},
		Updates: []deletion.Update{
			{Row: deletion.Row{Entity: "Shipment", Key: int64(7)}, Property: "OrderId"},
			{Row: deletion.Row{Entity: "Shipment", Key: int64(8)}, Property: "OrderId"},
		},
	}
}

func TestApply(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "shipments" SET "order_id" = NULL WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "line_items" WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "orders" WHERE "id" = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewApplier(db, setupOrders(t), nil).Apply(context.Background(), cascadeAction())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackOnError(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "shipments"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "line_items"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503", Detail: `Key (id)=(10) is still referenced from table "returns".`})
	mock.ExpectRollback()

	_, err := NewApplier(db, setupOrders(t), nil).Apply(context.Background(), cascadeAction())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKeyViolation)
	assert.Contains(t, err.Error(), "returns")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBlocked(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	model := setupOrders(t)
	action := &deletion.Action{
		Kind:         deletion.Block,
		Target:       deletion.Row{Entity: "Order", Key: int64(1)},
		BlockedBy:    model.PrincipalOf("Order")[0],
		BlockingKeys: []any{int64(10)},
	}

	_, err := NewApplier(db, model, nil).Apply(context.Background(), action)
	assert.ErrorIs(t, err, ErrDeleteBlocked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBeginError(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	action := &deletion.Action{Kind: deletion.Proceed, Target: deletion.Row{Entity: "Order", Key: int64(1)}}
	_, err := NewApplier(db, setupOrders(t), nil).Apply(context.Background(), action)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func TestApplyUnknownEntity(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	action := &deletion.Action{Kind: deletion.Proceed, Target: deletion.Row{Entity: "Invoice", Key: int64(1)}}
	_, err := NewApplier(db, setupOrders(t), nil).Apply(context.Background(), action)
	assert.ErrorIs(t, err, schema.ErrNotFound)
}

func TestDelete(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	model := setupOrders(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" AS "Id", "order_id" AS "OrderId" FROM "line_items" WHERE "order_id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "OrderId"}).AddRow(int64(10), int64(1)).AddRow(int64(11), int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" AS "Id", "order_id" AS "OrderId" FROM "shipments" WHERE "order_id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "OrderId"}).AddRow(int64(7), int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "shipments" SET "order_id" = NULL WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "line_items" WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "orders" WHERE "id" = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine := deletion.NewEngine(model)
	action, n, err := NewApplier(db, model, nil).Delete(context.Background(), engine, "Order", int64(1))
	require.NoError(t, err)
	assert.Equal(t, deletion.Cascade, action.Kind)
	assert.Equal(t, int64(4), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingTarget(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	model := setupOrders(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "line_items"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "OrderId"}))
	mock.ExpectQuery(`FROM "shipments"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "OrderId"}))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "orders" WHERE "id" = $1`)).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	engine := deletion.NewEngine(model)
	_, _, err := NewApplier(db, model, nil).Delete(context.Background(), engine, "Order", int64(404))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Contains(t, err.Error(), "Order 404")

	assert.NoError(t, mock.ExpectationsWereMet())
}
