package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX - общий интерфейс пула и транзакции
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store - репозитории поверх пула или открытой транзакции
type Store struct {
	pool     *pgxpool.Pool
	db       DBTX
	slots    *SlotRepository
	requests *ExchangeRequestRepository
}

// NewStore создаёт store поверх пула соединений
func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(pool, pool)
}

func newStore(pool *pgxpool.Pool, db DBTX) *Store {
	return &Store{
		pool:     pool,
		db:       db,
		slots:    &SlotRepository{db: db},
		requests: &ExchangeRequestRepository{db: db},
	}
}

func (s *Store) Slots() repository.SlotRepository { return s.slots }

func (s *Store) Requests() repository.ExchangeRequestRepository { return s.requests }

// WithinTx выполняет fn в транзакции пула
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	// Уже внутри транзакции - переиспользуем её
	if _, ok := s.db.(pgx.Tx); ok {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newStore(s.pool, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Pool возвращает пул соединений
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
