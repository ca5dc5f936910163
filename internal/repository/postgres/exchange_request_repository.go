package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
)

const requestColumns = `id, requester_id, requestee_id, requester_slot_id, requestee_slot_id,
	status, expired, created_at, resolved_at`

type ExchangeRequestRepository struct {
	db DBTX
}

func scanRequest(row rowScanner) (*model.ExchangeRequest, error) {
	var req model.ExchangeRequest
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.RequesteeID,
		&req.RequesterSlotID,
		&req.RequesteeSlotID,
		&req.Status,
		&req.Expired,
		&req.CreatedAt,
		&req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ExchangeRequestRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.ExchangeRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
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

// Create создаёт заявку на обмен
func (r *ExchangeRequestRepository) Create(ctx context.Context, req *model.ExchangeRequest) error {
	query := `
		INSERT INTO exchange_requests (id, requester_id, requestee_id, requester_slot_id, requestee_slot_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(
		ctx, query,
		req.ID,
		req.RequesterID,
		req.RequesteeID,
		req.RequesterSlotID,
		req.RequesteeSlotID,
		req.Status,
		req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create exchange request: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("create exchange request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *ExchangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM exchange_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange request: %w", err)
	}

	return req, nil
}

// ListByRequester получает исходящие заявки
func (r *ExchangeRequestRepository) ListByRequester(ctx context.Context, userID string) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list outgoing requests", query, userID)
}

// ListByRequestee получает входящие заявки
func (r *ExchangeRequestRepository) ListByRequestee(ctx context.Context, userID string) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE requestee_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list incoming requests", query, userID)
}

// ListPendingCreatedBefore получает зависшие pending заявки
func (r *ExchangeRequestRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.ExchangeRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM exchange_requests
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, "list stale requests", query, cutoff, limit)
}

// Resolve сохраняет решение по заявке, если она ещё pending
func (r *ExchangeRequestRepository) Resolve(ctx context.Context, req *model.ExchangeRequest) (bool, error) {
	query := `
		UPDATE exchange_requests
		SET status = $1, expired = $2, resolved_at = $3
		WHERE id = $4 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, req.Status, req.Expired, req.ResolvedAt, req.ID)
	if err != nil {
		return false, fmt.Errorf("resolve exchange request: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
