package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
)

const requestColumns = `id, requester_id, requestee_id, requester_slot_id, requestee_slot_id,
	status, expired, created_at, resolved_at`

type ExchangeRequestRepository struct {
	q querier
}

func scanRequest(row rowScanner) (*model.ExchangeRequest, error) {
	var (
		req        model.ExchangeRequest
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.RequesteeID,
		&req.RequesterSlotID,
		&req.RequesteeSlotID,
		&req.Status,
		&req.Expired,
		&createdAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	req.CreatedAt = fromNanos(createdAt)
	req.ResolvedAt = timePtr(resolvedAt)
	return &req, nil
}

func (r *ExchangeRequestRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.ExchangeRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var requests []*model.ExchangeRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	return requests, nil
}

func (r *ExchangeRequestRepository) Create(ctx context.Context, req *model.ExchangeRequest) error {
	query := `
		INSERT INTO exchange_requests (id, requester_id, requestee_id, requester_slot_id, requestee_slot_id, status, expired, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(
		ctx, query,
		req.ID.String(),
		req.RequesterID,
		req.RequesteeID,
		req.RequesterSlotID.String(),
		req.RequesteeSlotID.String(),
		string(req.Status),
		req.Expired,
		toNanos(req.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create exchange request: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("create exchange request: %w", err)
	}

	return nil
}

func (r *ExchangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM exchange_requests WHERE id = ?`

	req, err := scanRequest(r.q.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange request: %w", err)
	}

	return req, nil
}

func (r *ExchangeRequestRepository) ListByRequester(ctx context.Context, userID string) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE requester_id = ?
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list outgoing requests", query, userID)
}

func (r *ExchangeRequestRepository) ListByRequestee(ctx context.Context, userID string) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE requestee_id = ?
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list incoming requests", query, userID)
}

func (r *ExchangeRequestRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.list(ctx, "list stale requests", query, toNanos(cutoff), limit)
}

func (r *ExchangeRequestRepository) Resolve(ctx context.Context, req *model.ExchangeRequest) (bool, error) {
	query := `
		UPDATE exchange_requests
		SET status = ?, expired = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := r.q.ExecContext(ctx, query, string(req.Status), req.Expired, nullNanos(req.ResolvedAt), req.ID.String())
	if err != nil {
		return false, fmt.Errorf("resolve exchange request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve exchange request: %w", err)
	}

	return affected > 0, nil
}
