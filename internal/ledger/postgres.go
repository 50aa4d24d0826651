package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists coin balances in PostgreSQL. Debits and credits
// are expressed as conditional updates so two concurrent requests can never
// both spend the same coins.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate creates the ledger schema if it does not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS accounts (
            id         TEXT PRIMARY KEY,
            balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
        CREATE TABLE IF NOT EXISTS payment_credits (
            reference  TEXT PRIMARY KEY,
            account_id TEXT NOT NULL REFERENCES accounts (id),
            amount     BIGINT NOT NULL CHECK (amount >= 0),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
        CREATE TABLE IF NOT EXISTS purchase_orders (
            id                TEXT PRIMARY KEY,
            account_id        TEXT NOT NULL,
            service           TEXT NOT NULL,
            country           TEXT NOT NULL,
            price             BIGINT NOT NULL,
            state             TEXT NOT NULL,
            provider_order_id TEXT NOT NULL DEFAULT '',
            phone_number      TEXT NOT NULL DEFAULT '',
            sms_code          TEXT NOT NULL DEFAULT '',
            created_at        TIMESTAMPTZ NOT NULL,
            updated_at        TIMESTAMPTZ NOT NULL
        );`
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// EnsureAccount guarantees an account row exists for the identifier.
// Provisioning normally happens outside this service; this is an ops
// helper for seeding environments.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1)
        ON CONFLICT (id) DO NOTHING`, accountID)
	return translateErr(err)
}

// Balance returns the current coin balance for the account.
func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, translateErr(err)
	}
	return balance, nil
}

// TryDebit decrements the balance only when it covers the amount. The
// check and the decrement are one statement, so no concurrent request can
// slip in between them.
func (l *PostgresLedger) TryDebit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if amount == 0 {
		return l.Balance(ctx, accountID)
	}

	var balance int64
	err := l.db.QueryRow(ctx, `UPDATE accounts
        SET balance = balance - $2
        WHERE id = $1 AND balance >= $2
        RETURNING balance`, accountID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, translateErr(err)
	}

	// No row updated: either the account is missing or the balance was short.
	if _, err := l.Balance(ctx, accountID); err != nil {
		return 0, err
	}
	return 0, ErrInsufficientFunds
}

// Credit adds amount to the balance and returns the new balance.
func (l *PostgresLedger) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if amount == 0 {
		return l.Balance(ctx, accountID)
	}

	var balance int64
	err := l.db.QueryRow(ctx, `UPDATE accounts
        SET balance = balance + $2
        WHERE id = $1
        RETURNING balance`, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, translateErr(err)
	}
	return balance, nil
}

// CreditOnce records the payment reference and applies the credit in one
// transaction. The primary key on payment_credits.reference makes the
// insert the uniqueness gate: the loser of a concurrent race observes zero
// affected rows and reports the duplicate.
func (l *PostgresLedger) CreditOnce(ctx context.Context, paymentRef, accountID string, amount int64) (CreditResult, error) {
	if amount < 0 {
		return CreditResult{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CreditResult{}, translateErr(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO payment_credits (reference, account_id, amount)
        VALUES ($1, $2, $3)
        ON CONFLICT (reference) DO NOTHING`, paymentRef, accountID, amount)
	if err != nil {
		return CreditResult{}, translateErr(err)
	}

	if tag.RowsAffected() == 0 {
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return CreditResult{}, ErrAccountNotFound
			}
			return CreditResult{}, translateErr(err)
		}
		return CreditResult{Applied: false, NewBalance: balance}, ErrDuplicatePayment
	}

	var balance int64
	err = tx.QueryRow(ctx, `UPDATE accounts
        SET balance = balance + $2
        WHERE id = $1
        RETURNING balance`, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditResult{}, ErrAccountNotFound
		}
		return CreditResult{}, translateErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CreditResult{}, translateErr(err)
	}

	return CreditResult{Applied: true, NewBalance: balance}, nil
}

// translateErr maps retryable Postgres failures onto ErrConflict so callers
// can re-run the whole operation.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
		case "23505":
			return ErrDuplicatePayment
		case "23503": // foreign key: crediting an account that does not exist
			return ErrAccountNotFound
		}
	}
	return err
}
