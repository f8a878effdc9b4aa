package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fsanano/storefront/internal/service/checkout"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAttemptNotFound = errors.New("checkout attempt not found")
	ErrAttemptFinished = errors.New("checkout attempt already finished")
)

// Attempt is one row of the checkout journal.
type Attempt struct {
	ID         string          `json:"id"`
	UserID     int             `json:"user_id"`
	Status     checkout.Status `json:"status"`
	Error      string          `json:"error,omitempty"`
	OrderID    *int            `json:"order_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// CheckoutRepository journals checkout submissions in Postgres.
type CheckoutRepository struct {
	db *pgxpool.Pool
}

func NewCheckoutRepository(db *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// RunAtomic executes fn within a transaction. Queries issued through the
// ctx passed to fn run inside it.
func (r *CheckoutRepository) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// no-op once committed
	defer tx.Rollback(ctx)

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txKey struct{}

func (r *CheckoutRepository) getExecutor(ctx context.Context) PgxExecutor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.db
}

// PgxExecutor is an interface that matches both *pgxpool.Pool and pgx.Tx
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Begin records a submission that has reached the processing state.
func (r *CheckoutRepository) Begin(ctx context.Context, userID int) (string, error) {
	id := uuid.NewString()
	_, err := r.getExecutor(ctx).Exec(ctx,
		"INSERT INTO checkout_attempts (id, user_id, status) VALUES ($1, $2, $3)",
		id, userID, string(checkout.StatusProcessing))
	if err != nil {
		return "", fmt.Errorf("failed to insert checkout attempt: %w", err)
	}
	return id, nil
}

// Finish stores the outcome of an attempt. The row is locked while its
// current status is checked, so an attempt can only be finished once.
func (r *CheckoutRepository) Finish(ctx context.Context, attemptID string, status checkout.Status, message string, orderID int) error {
	return r.RunAtomic(ctx, func(ctx context.Context) error {
		var current string
		err := r.getExecutor(ctx).QueryRow(ctx,
			"SELECT status FROM checkout_attempts WHERE id = $1 FOR UPDATE", attemptID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get checkout attempt: %w", err)
		}
		if checkout.Status(current) != checkout.StatusProcessing {
			return fmt.Errorf("%w: %s is %s", ErrAttemptFinished, attemptID, current)
		}

		var order *int
		if orderID > 0 {
			order = &orderID
		}
		_, err = r.getExecutor(ctx).Exec(ctx,
			"UPDATE checkout_attempts SET status = $1, error = $2, order_id = $3, finished_at = now() WHERE id = $4",
			string(status), message, order, attemptID)
		if err != nil {
			return fmt.Errorf("failed to update checkout attempt: %w", err)
		}
		return nil
	})
}

// Recent lists a user's latest attempts, newest first.
func (r *CheckoutRepository) Recent(ctx context.Context, userID, limit int) ([]Attempt, error) {
	rows, err := r.getExecutor(ctx).Query(ctx,
		`SELECT id, user_id, status, error, order_id, started_at, finished_at
		FROM checkout_attempts WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(&a.ID, &a.UserID, &status, &a.Error, &a.OrderID, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkout attempt: %w", err)
		}
		a.Status = checkout.Status(status)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
