package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
)

// OrderRepository handles order persistence within department shards.
// Every method takes the owning shard's department name; the repository
// never reaches across shards on its own.
type OrderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{
		db:  db,
		log: logging.WithComponent("store.orders"),
	}
}

// Insert stores a new order in the shard. Uniqueness of the order
// number is enforced by the shard's unique index, not by a prior read,
// so concurrent writers cannot race past the check.
func (r *OrderRepository) Insert(ctx context.Context, shard string, order types.Order) (types.Order, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Order{}, err
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.orders (order_number, description, created_at, created_by_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, schema)
	err = r.db.QueryRowContext(
		ctx,
		query,
		order.OrderNumber,
		order.Description,
		order.CreatedAt,
		order.CreatedBy,
	).Scan(&order.ID)
	if err != nil {
		if uniqueViolation(err, "idx_orders_order_number") {
			return types.Order{}, ErrDuplicateOrderNumber
		}
		r.log.Error().Err(err).Str("shard", shard).Msg("order insert failed")
		return types.Order{}, storageErr("orders.insert", err)
	}

	return order, nil
}

// List returns every order in the shard, newest first.
func (r *OrderRepository) List(ctx context.Context, shard string) ([]types.Order, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, order_number, description, created_at, created_by_user_id
		FROM %s.orders
		ORDER BY created_at DESC`, schema)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("order list failed")
		return nil, storageErr("orders.list", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var order types.Order
		if err := rows.Scan(
			&order.ID,
			&order.OrderNumber,
			&order.Description,
			&order.CreatedAt,
			&order.CreatedBy,
		); err != nil {
			return nil, storageErr("orders.list", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("orders.list", err)
	}

	return orders, nil
}

// GetByID fetches one order from the shard.
func (r *OrderRepository) GetByID(ctx context.Context, shard string, id int) (types.Order, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Order{}, err
	}

	query := fmt.Sprintf(`
		SELECT id, order_number, description, created_at, created_by_user_id
		FROM %s.orders
		WHERE id = $1`, schema)
	var order types.Order
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.Description,
		&order.CreatedAt,
		&order.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, storageErr("orders.get", err)
	}
	return order, nil
}

// GetByNumber fetches one order from the shard by its order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, shard, orderNumber string) (types.Order, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Order{}, err
	}

	query := fmt.Sprintf(`
		SELECT id, order_number, description, created_at, created_by_user_id
		FROM %s.orders
		WHERE order_number = $1`, schema)
	var order types.Order
	err = r.db.QueryRowContext(ctx, query, orderNumber).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.Description,
		&order.CreatedAt,
		&order.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, storageErr("orders.get_by_number", err)
	}
	return order, nil
}

// DeleteWithScans removes an order and all of its scans from the shard
// in one transaction: either both deletes apply or neither does.
func (r *OrderRepository) DeleteWithScans(ctx context.Context, shard string, orderID int) error {
	schema, err := SchemaName(shard)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("orders.delete", err)
	}
	defer tx.Rollback()

	deleteScans := fmt.Sprintf(`DELETE FROM %s.scans WHERE order_id = $1`, schema)
	if _, err := tx.ExecContext(ctx, deleteScans, orderID); err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("scan cascade delete failed")
		return storageErr("orders.delete", err)
	}

	deleteOrder := fmt.Sprintf(`DELETE FROM %s.orders WHERE id = $1`, schema)
	result, err := tx.ExecContext(ctx, deleteOrder, orderID)
	if err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("order delete failed")
		return storageErr("orders.delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("orders.delete", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return storageErr("orders.delete", err)
	}
	return nil
}

// CountByUser reports how many orders in the shard were created by the
// given user. Used for referential-integrity checks before user deletion.
func (r *OrderRepository) CountByUser(ctx context.Context, shard string, userID int) (int, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s.orders WHERE created_by_user_id = $1`, schema)
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, storageErr("orders.count_by_user", err)
	}
	return count, nil
}
