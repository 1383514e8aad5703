package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/merchforge/apiserver/types"
)

const orderColumns = `id, order_number, user_id, full_name, email, phone, delivery_method,
		address, size_data, total_price, design_image, status, created_at, updated_at`

// OrderRepository handles persistence for orders.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(row rowScanner) (types.Order, error) {
	var (
		order    types.Order
		userID   sql.NullInt64
		method   string
		status   string
		sizeData []byte
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&userID,
		&order.FullName,
		&order.Email,
		&order.Phone,
		&method,
		&order.Address,
		&sizeData,
		&order.TotalPrice,
		&order.DesignImage,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return types.Order{}, err
	}
	if userID.Valid {
		id := int(userID.Int64)
		order.UserID = &id
	}
	order.DeliveryMethod = types.DeliveryMethod(method)
	order.Status = types.OrderStatus(status)
	order.SizeData = types.SizeQuantities{}
	if len(sizeData) > 0 {
		if err := json.Unmarshal(sizeData, &order.SizeData); err != nil {
			return types.Order{}, fmt.Errorf("decode size_data: %w", err)
		}
	}
	return order, nil
}

func scanOrders(rows *sql.Rows) ([]types.Order, error) {
	defer rows.Close()
	orders := []types.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Create inserts a new pending order. A clashing order number yields ErrConflict.
func (r *OrderRepository) Create(ctx context.Context, order types.Order) (types.Order, error) {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = types.OrderStatusPending
	}
	if order.SizeData == nil {
		order.SizeData = types.SizeQuantities{}
	}

	sizeData, err := json.Marshal(order.SizeData)
	if err != nil {
		return types.Order{}, fmt.Errorf("encode size_data: %w", err)
	}

	var userID any
	if order.UserID != nil {
		userID = *order.UserID
	}

	const query = `
		INSERT INTO orders (order_number, user_id, full_name, email, phone, delivery_method,
			address, size_data, total_price, design_image, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		order.OrderNumber,
		userID,
		order.FullName,
		order.Email,
		order.Phone,
		string(order.DeliveryMethod),
		order.Address,
		sizeData,
		order.TotalPrice,
		order.DesignImage,
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID); err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			return types.Order{}, fmt.Errorf("%w: %s", ErrConflict, constraint)
		}
		return types.Order{}, err
	}
	return order, nil
}

// GetByNumberForUser returns an order only when it belongs to userID.
func (r *OrderRepository) GetByNumberForUser(ctx context.Context, orderNumber string, userID int) (types.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 AND user_id = $2`
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderNumber, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, err
	}
	return order, nil
}

// ListByUser returns the orders of userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int) ([]types.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// List returns one page of orders matching filter, newest first, and the
// total number of matching orders.
func (r *OrderRepository) List(ctx context.Context, filter types.OrderFilter, limit, offset int) ([]types.Order, int, error) {
	where, args := orderFilterClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func orderFilterClause(filter types.OrderFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conditions = append(conditions,
			fmt.Sprintf("(order_number ILIKE $%d OR email ILIKE $%d OR full_name ILIKE $%d)", n, n, n))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// UpdateStatus sets the status of an order and returns the updated order
// together with the status it had before.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status types.OrderStatus) (types.Order, types.OrderStatus, error) {
	const query = `
		WITH prev AS (
			SELECT id, status FROM orders WHERE id = $3 FOR UPDATE
		)
		UPDATE orders o
		SET status = $1,
			updated_at = $2
		FROM prev
		WHERE o.id = prev.id
		RETURNING o.id, o.order_number, o.user_id, o.full_name, o.email, o.phone, o.delivery_method,
			o.address, o.size_data, o.total_price, o.design_image, o.status, o.created_at, o.updated_at,
			prev.status`

	var previous string
	row := r.db.QueryRowContext(ctx, query, string(status), time.Now().UTC(), id)
	order, err := scanOrder(scanWithTrailing{row: row, extra: &previous})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, "", ErrNotFound
		}
		return types.Order{}, "", err
	}
	return order, types.OrderStatus(previous), nil
}

// scanWithTrailing appends extra destinations after the ones scanOrder asks for.
type scanWithTrailing struct {
	row   rowScanner
	extra any
}

func (s scanWithTrailing) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.extra)...)
}
