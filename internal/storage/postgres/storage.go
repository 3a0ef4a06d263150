package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/domain/repository"
)

// pgxPool is the subset of pgxpool.Pool the storage relies on; tests inject
// a pgxmock pool through it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
}

type userRepository struct {
	storage *Storage
}

type orderRepository struct {
	storage *Storage
}

type ledgerRepository struct {
	storage *Storage
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Factory methods for domain repositories.
func (s *Storage) Users() repository.UserRepository {
	return &userRepository{storage: s}
}

func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Ledger() repository.LedgerRepository {
	return &ledgerRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            login TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id SERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id),
            item_summary TEXT NOT NULL DEFAULT '',
            final_amount BIGINT NOT NULL,
            currency TEXT NOT NULL DEFAULT 'KHR',
            payment_status TEXT NOT NULL DEFAULT 'PENDING',
            order_status TEXT NOT NULL DEFAULT 'PENDING',
            qr_string TEXT NOT NULL DEFAULT '',
            verification_digest TEXT NOT NULL DEFAULT '',
            integrity_hash TEXT NOT NULL DEFAULT '',
            external_tx_ref TEXT NOT NULL DEFAULT '',
            is_paid BOOLEAN NOT NULL DEFAULT FALSE,
            notified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            attempt_started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id SERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL REFERENCES orders(id),
            amount BIGINT NOT NULL,
            method TEXT NOT NULL,
            status TEXT NOT NULL,
            integrity_hash TEXT NOT NULL DEFAULT '',
            verification_digest TEXT NOT NULL DEFAULT '',
            external_tx_ref TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders(payment_status, attempt_started_at) WHERE payment_status = 'PENDING'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_pending ON payments(order_id) WHERE status = 'PENDING'`,
		`CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// --- UserRepository implementation ---

func (r *userRepository) Create(ctx context.Context, login, passwordHash string) (*model.User, error) {
	const query = `INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id, created_at`
	var u model.User
	err := r.storage.pool.QueryRow(ctx, query, login, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domainErrors.ErrAlreadyExists
		}
		return nil, err
	}
	u.Login = login
	u.PasswordHash = passwordHash
	return &u, nil
}

func (r *userRepository) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const query = `SELECT id, login, password_hash, created_at FROM users WHERE login=$1`
	var u model.User
	err := r.storage.pool.QueryRow(ctx, query, login).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const query = `SELECT id, login, password_hash, created_at FROM users WHERE id=$1`
	var u model.User
	err := r.storage.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// --- OrderRepository implementation ---

const orderColumns = `id, user_id, item_summary, final_amount, currency, payment_status, order_status,
                      qr_string, verification_digest, integrity_hash, external_tx_ref,
                      is_paid, notified, created_at, attempt_started_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.ItemSummary, &o.FinalAmount, &o.Currency, &o.PaymentStatus, &o.Status,
		&o.Attempt.QRString, &o.Attempt.VerificationDigest, &o.Attempt.IntegrityHash, &o.Attempt.ExternalTxRef,
		&o.IsPaid, &o.Notified, &o.CreatedAt, &o.AttemptStartedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error) {
	const query = `INSERT INTO orders (user_id, item_summary, final_amount)
                   VALUES ($1, $2, $3)
                   RETURNING id, currency, payment_status, order_status, created_at, attempt_started_at, updated_at`
	var o model.Order
	err := r.storage.pool.QueryRow(ctx, query, userID, itemSummary, finalAmount).
		Scan(&o.ID, &o.Currency, &o.PaymentStatus, &o.Status, &o.CreatedAt, &o.AttemptStartedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.UserID = userID
	o.ItemSummary = itemSummary
	o.FinalAmount = finalAmount
	return &o, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	order, err := scanOrder(r.storage.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.storage.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *orderRepository) BeginAttempt(ctx context.Context, orderID int64, attempt model.PaymentAttempt, amount int64) (int64, error) {
	var paymentID int64
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		// A new cycle invalidates whatever attempt was outstanding; keeps the
		// one-PENDING-row-per-order invariant before the insert below.
		const closeStale = `UPDATE payments SET status='FAILED', updated_at=NOW()
                            WHERE order_id=$1 AND status='PENDING'`
		if _, err := tx.Exec(ctx, closeStale, orderID); err != nil {
			return err
		}

		const resetOrder = `UPDATE orders
                            SET payment_status='PENDING', order_status='PENDING', is_paid=FALSE, notified=FALSE,
                                qr_string=$2, verification_digest=$3, integrity_hash=$4, external_tx_ref='',
                                attempt_started_at=NOW(), updated_at=NOW()
                            WHERE id=$1 AND order_status <> 'PAID'`
		ct, err := tx.Exec(ctx, resetOrder, orderID, attempt.QRString, attempt.VerificationDigest, attempt.IntegrityHash)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return domainErrors.ErrInvalidState
		}

		const insertEntry = `INSERT INTO payments (order_id, amount, method, status, integrity_hash, verification_digest)
                             VALUES ($1, $2, $3, 'PENDING', $4, $5)
                             RETURNING id`
		return tx.QueryRow(ctx, insertEntry, orderID, amount, model.PaymentMethodKHQR, attempt.IntegrityHash, attempt.VerificationDigest).Scan(&paymentID)
	})
	if err != nil {
		return 0, err
	}
	return paymentID, nil
}

func (r *orderRepository) SelectPendingBatch(ctx context.Context, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
              FROM orders
              WHERE payment_status='PENDING' AND verification_digest <> ''
              ORDER BY attempt_started_at
              LIMIT $1`
	rows, err := r.storage.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *orderRepository) SelectOverdueBatch(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
              FROM orders
              WHERE order_status='PENDING' AND verification_digest <> '' AND attempt_started_at < $1
              ORDER BY attempt_started_at
              LIMIT $2`
	rows, err := r.storage.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// SettlePaid flips the order and its PENDING ledger row to PAID in one
// transaction. The order update is conditional on payment_status so only one
// of two racing callers wins; the notified flag rides in the same write.
func (r *orderRepository) SettlePaid(ctx context.Context, orderID int64, externalTxRef string) (bool, error) {
	var won bool
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const transition = `UPDATE orders
                            SET payment_status='PAID', order_status='PAID', is_paid=TRUE, notified=TRUE,
                                external_tx_ref=$2, updated_at=NOW()
                            WHERE id=$1 AND payment_status='PENDING'`
		ct, err := tx.Exec(ctx, transition, orderID, externalTxRef)
		if err != nil {
			return err
		}
		won = ct.RowsAffected() > 0
		if !won {
			return nil
		}

		const settleEntry = `UPDATE payments SET status='PAID', external_tx_ref=$2, updated_at=NOW()
                             WHERE order_id=$1 AND status='PENDING'`
		_, err = tx.Exec(ctx, settleEntry, orderID, externalTxRef)
		return err
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// SettleExpired cancels the order and fails its PENDING ledger row under the
// same conditional-write discipline as SettlePaid.
func (r *orderRepository) SettleExpired(ctx context.Context, orderID int64) (bool, error) {
	var won bool
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const transition = `UPDATE orders
                            SET payment_status='FAILED', order_status='CANCELLED', is_paid=FALSE, notified=TRUE,
                                updated_at=NOW()
                            WHERE id=$1 AND payment_status='PENDING'`
		ct, err := tx.Exec(ctx, transition, orderID)
		if err != nil {
			return err
		}
		won = ct.RowsAffected() > 0
		if !won {
			return nil
		}

		const failEntry = `UPDATE payments SET status='FAILED', updated_at=NOW()
                           WHERE order_id=$1 AND status='PENDING'`
		_, err = tx.Exec(ctx, failEntry, orderID)
		return err
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var result []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// --- LedgerRepository implementation ---

const ledgerColumns = `id, order_id, amount, method, status, integrity_hash, verification_digest, external_tx_ref, created_at, updated_at`

func scanLedgerEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(
		&e.ID, &e.OrderID, &e.Amount, &e.Method, &e.Status,
		&e.IntegrityHash, &e.VerificationDigest, &e.ExternalTxRef,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ledgerRepository) CurrentByOrder(ctx context.Context, orderID int64) (*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM payments WHERE order_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	entry, err := scanLedgerEntry(r.storage.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *ledgerRepository) ListByOrder(ctx context.Context, orderID int64) ([]model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM payments WHERE order_id=$1 ORDER BY created_at DESC, id DESC`
	rows, err := r.storage.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Logger returns storage logger.
func (s *Storage) Logger() *slog.Logger {
	return s.logger
}
