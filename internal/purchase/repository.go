package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/virtusim/virtusim/internal/ledger"
)

// ErrOrderNotFound indicates the purchase order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Repository persists purchase orders.
type Repository interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
}

// PostgresRepository stores purchase orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a purchase order record.
func (r *PostgresRepository) Create(ctx context.Context, order Order) error {
	_, err := r.db.Exec(ctx, `INSERT INTO purchase_orders
        (id, account_id, service, country, price, state, provider_order_id, phone_number, sms_code, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.AccountID, order.Service, order.Country, order.Price, order.State,
		order.ProviderOrderID, order.PhoneNumber, order.SMSCode, order.CreatedAt.UTC(), order.UpdatedAt.UTC())
	return translateErr(err)
}

// Update rewrites the mutable fields of an order.
func (r *PostgresRepository) Update(ctx context.Context, order Order) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_orders
        SET state = $2, provider_order_id = $3, phone_number = $4, sms_code = $5, updated_at = $6
        WHERE id = $1`,
		order.ID, order.State, order.ProviderOrderID, order.PhoneNumber, order.SMSCode, time.Now().UTC())
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Get fetches an order by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT id, account_id, service, country, price, state,
        provider_order_id, phone_number, sms_code, created_at, updated_at
        FROM purchase_orders WHERE id = $1`, id)

	var o Order
	err := row.Scan(&o.ID, &o.AccountID, &o.Service, &o.Country, &o.Price, &o.State,
		&o.ProviderOrderID, &o.PhoneNumber, &o.SMSCode, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, translateErr(err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

// translateErr maps serialization failures and deadlocks onto
// ledger.ErrConflict so the coordinator's retry loop picks them up the
// same way it does for balance writes.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ledger.ErrConflict, pgErr.Code)
		}
	}
	return err
}
