package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"posbridge/internal/model"
)

var ErrOrderNotFound = errors.New("order not found")

// Orders older than this are never handed to a pulling POS client; a
// terminal that was offline for hours should not suddenly print stale
// tickets.
const pullWindow = time.Hour

type OrderService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{db: db, nowFunc: time.Now}
}

const orderColumns = `id, tenant_id, order_number, customer_name, total, status,
	print_status, print_status_updated_at, last_pos_device_id, last_print_error,
	websocket_sent, websocket_sent_at, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerName, &o.Total, &o.Status,
		&o.PrintStatus, &o.PrintStatusUpdatedAt, &o.LastPOSDeviceID, &o.LastPrintError,
		&o.WebsocketSent, &o.WebsocketSentAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderService) loadItems(ctx context.Context, order *model.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, name, quantity, price FROM order_items WHERE order_id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	return rows.Err()
}

func (s *OrderService) GetWithItems(ctx context.Context, orderID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// FetchPending returns confirmed orders awaiting delivery to the tenant's
// POS and transitions them to sent_to_pos. The status guard on the UPDATE
// keeps concurrent pulls from double-claiming a row.
func (s *OrderService) FetchPending(ctx context.Context, tenantID string) ([]model.Order, error) {
	now := s.nowFunc()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1 AND status = $2 AND print_status = $3 AND created_at > $4
		ORDER BY created_at ASC
	`, tenantID, model.OrderStatusConfirmed, model.PrintStatusPending, now.Add(-pullWindow))
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	rows.Close()

	for i := range orders {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET print_status = $1, print_status_updated_at = $2
			WHERE id = $3 AND print_status = $4
		`, model.PrintStatusSentToPOS, now, orders[i].ID, model.PrintStatusPending)
		if err != nil {
			return nil, fmt.Errorf("mark sent_to_pos: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			orders[i].PrintStatus = model.PrintStatusSentToPOS
			orders[i].PrintStatusUpdatedAt = &now
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	for i := range orders {
		if err := s.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderService) CountPending(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE tenant_id = $1 AND status = $2 AND print_status IN ($3, $4)
	`, tenantID, model.OrderStatusConfirmed, model.PrintStatusPending, model.PrintStatusSentToPOS).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// RecentConfirmed returns confirmed orders created after the given cutoff,
// items included. The SSE stream polls this on its 2-second tick.
func (s *OrderService) RecentConfirmed(ctx context.Context, tenantID string, since time.Time) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1 AND status = $2 AND created_at > $3
		ORDER BY created_at ASC
	`, tenantID, model.OrderStatusConfirmed, since)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recent order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	for i := range orders {
		if err := s.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type AckParams struct {
	TenantID  string
	OrderID   string
	Status    string
	PrintedAt time.Time
	DeviceID  *string
	Reason    *string
}

// AcknowledgePrint records a POS print outcome. Repeated acknowledgments
// overwrite the latest status, last write wins; the sync log keeps the
// full history of attempts.
func (s *OrderService) AcknowledgePrint(ctx context.Context, p AckParams) (*model.Order, error) {
	var printErr *string
	if p.Status == model.PrintStatusFailed {
		printErr = p.Reason
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE orders
		SET print_status = $1,
		    print_status_updated_at = $2,
		    last_pos_device_id = $3,
		    last_print_error = $4
		WHERE id = $5 AND tenant_id = $6
		RETURNING `+orderColumns+`
	`, p.Status, p.PrintedAt, p.DeviceID, printErr, p.OrderID, p.TenantID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update print status: %w", err)
	}
	return order, nil
}

// MarkSentToPOS records a successful push delivery.
func (s *OrderService) MarkSentToPOS(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET print_status = $1, print_status_updated_at = $2
		WHERE id = $3 AND print_status = $4
	`, model.PrintStatusSentToPOS, s.nowFunc(), orderID, model.PrintStatusPending)
	if err != nil {
		return fmt.Errorf("mark sent_to_pos: %w", err)
	}
	return nil
}

// MarkWebsocketSent flags that a broadcast attempt was made. Sent says
// nothing about whether any terminal was listening, so print_status is
// left untouched.
func (s *OrderService) MarkWebsocketSent(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET websocket_sent = TRUE, websocket_sent_at = $1 WHERE id = $2
	`, s.nowFunc(), orderID)
	if err != nil {
		return fmt.Errorf("mark websocket_sent: %w", err)
	}
	return nil
}

func (s *OrderService) AppendSyncLog(ctx context.Context, e model.SyncLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pos_sync_log (tenant_id, order_id, event_type, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.TenantID, e.OrderID, e.EventType, e.Status, []byte(e.Payload), s.nowFunc())
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// PrintTracking is the debug read of an order's print-tracking fields.
func (s *OrderService) PrintTracking(ctx context.Context, orderID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

type OrderStats struct {
	TotalOrders int     `json:"total_orders"`
	Printed     int     `json:"printed"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	SentToPOS   int     `json:"sent_to_pos"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats aggregates print outcomes for a tenant since the given cutoff.
func (s *OrderService) Stats(ctx context.Context, tenantSlug string, from time.Time) (*OrderStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE o.print_status = $3),
		       COUNT(*) FILTER (WHERE o.print_status = $4),
		       COUNT(*) FILTER (WHERE o.print_status = $5),
		       COUNT(*) FILTER (WHERE o.print_status = $6)
		FROM orders o
		JOIN tenants t ON t.id = o.tenant_id
		WHERE t.slug = $1 AND o.created_at >= $2
	`, tenantSlug, from,
		model.PrintStatusPrinted, model.PrintStatusFailed,
		model.PrintStatusPending, model.PrintStatusSentToPOS)

	var st OrderStats
	if err := row.Scan(&st.TotalOrders, &st.Printed, &st.Failed, &st.Pending, &st.SentToPOS); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if st.TotalOrders > 0 {
		st.SuccessRate = float64(st.Printed) / float64(st.TotalOrders)
	}
	return &st, nil
}
