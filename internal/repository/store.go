package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Store is the PostgreSQL implementation of domain.Store.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Users() domain.UserRepository {
	return &UserRepository{db: s.db}
}

func (s *Store) Plans() domain.PlanRepository {
	return &PlanRepository{db: s.db}
}

func (s *Store) Subscriptions() domain.SubscriptionRepository {
	return &SubscriptionRepository{db: s.db}
}

func (s *Store) Entitlements() domain.EntitlementRepository {
	return &EntitlementRepository{db: s.db}
}

func (s *Store) WebhookEvents() domain.WebhookEventRepository {
	return &WebhookEventRepository{db: s.db}
}

// WithTx runs fn inside a read-committed transaction. Row locks taken with
// the ForUpdate lookups are held until commit. Nested calls join the outer
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
