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

const slotColumns = `id, owner_id, title, description, start_time, end_time, status, prior_status,
	deleted_at, deleted_by, recovery_expires_at, expiry_notified_at, version, created_at, updated_at`

type SlotRepository struct {
	q querier
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var (
		slot                                   model.Slot
		start, end, createdAt, updatedAt       int64
		priorStatus, deletedBy                 sql.NullString
		deletedAt, recoveryExpires, notifiedAt sql.NullInt64
	)
	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.Title,
		&slot.Description,
		&start,
		&end,
		&slot.Status,
		&priorStatus,
		&deletedAt,
		&deletedBy,
		&recoveryExpires,
		&notifiedAt,
		&slot.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.StartTime = fromNanos(start)
	slot.EndTime = fromNanos(end)
	slot.CreatedAt = fromNanos(createdAt)
	slot.UpdatedAt = fromNanos(updatedAt)
	if priorStatus.Valid {
		prior := model.SlotStatus(priorStatus.String)
		slot.PriorStatus = &prior
	}
	slot.DeletedAt = timePtr(deletedAt)
	slot.DeletedBy = stringPtr(deletedBy)
	slot.RecoveryExpiresAt = timePtr(recoveryExpires)
	slot.ExpiryNotifiedAt = timePtr(notifiedAt)

	return &slot, nil
}

func (r *SlotRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Slot, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	return slots, nil
}

func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (id, owner_id, title, description, start_time, end_time, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(
		ctx, query,
		slot.ID.String(),
		slot.OwnerID,
		slot.Title,
		slot.Description,
		toNanos(slot.StartTime),
		toNanos(slot.EndTime),
		string(slot.Status),
		slot.Version,
		toNanos(slot.CreatedAt),
		toNanos(slot.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create slot: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`

	slot, err := scanSlot(r.q.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

func (r *SlotRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = ? AND status <> 'deleted'
		ORDER BY start_time
	`
	return r.list(ctx, "list slots by owner", query, ownerID)
}

func (r *SlotRepository) ListOpen(ctx context.Context, excludeOwnerID string) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'open' AND owner_id <> ?
		ORDER BY start_time
	`
	return r.list(ctx, "list open slots", query, excludeOwnerID)
}

func (r *SlotRepository) ListTrash(ctx context.Context, ownerID string, now time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = ? AND status = 'deleted' AND recovery_expires_at > ?
		ORDER BY deleted_at DESC
	`
	return r.list(ctx, "list trash", query, ownerID, toNanos(now))
}

func (r *SlotRepository) ListExpiring(ctx context.Context, ownerID string, now, until time.Time, after *repository.ExpiryCursor, limit int) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'deleted'
		  AND recovery_expires_at > ?
		  AND recovery_expires_at <= ?
		  AND (? = '' OR owner_id = ?)
		  AND (? IS NULL OR recovery_expires_at > ? OR (recovery_expires_at = ? AND id > ?))
		ORDER BY recovery_expires_at, id
		LIMIT ?
	`

	var afterAt sql.NullInt64
	afterID := ""
	if after != nil {
		afterAt = sql.NullInt64{Int64: toNanos(after.ExpiresAt), Valid: true}
		afterID = after.ID.String()
	}

	return r.list(ctx, "list expiring slots", query,
		toNanos(now), toNanos(until),
		ownerID, ownerID,
		afterAt, afterAt, afterAt, afterID,
		limit,
	)
}

func (r *SlotRepository) ListPurgeable(ctx context.Context, now time.Time, limit int) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'deleted' AND recovery_expires_at <= ?
		ORDER BY recovery_expires_at, id
		LIMIT ?
	`
	return r.list(ctx, "list purgeable slots", query, toNanos(now), limit)
}

func (r *SlotRepository) Update(ctx context.Context, slot *model.Slot, expected model.SlotStatus, expectedVersion int64) (bool, error) {
	query := `
		UPDATE slots
		SET owner_id = ?, title = ?, description = ?, start_time = ?, end_time = ?,
		    status = ?, prior_status = ?, deleted_at = ?, deleted_by = ?,
		    recovery_expires_at = ?, expiry_notified_at = ?, updated_at = ?,
		    version = version + 1
		WHERE id = ? AND status = ? AND version = ?
	`

	var priorStatus sql.NullString
	if slot.PriorStatus != nil {
		priorStatus = sql.NullString{String: string(*slot.PriorStatus), Valid: true}
	}

	result, err := r.q.ExecContext(
		ctx, query,
		slot.OwnerID,
		slot.Title,
		slot.Description,
		toNanos(slot.StartTime),
		toNanos(slot.EndTime),
		string(slot.Status),
		priorStatus,
		nullNanos(slot.DeletedAt),
		nullString(slot.DeletedBy),
		nullNanos(slot.RecoveryExpiresAt),
		nullNanos(slot.ExpiryNotifiedAt),
		toNanos(slot.UpdatedAt),
		slot.ID.String(),
		string(expected),
		expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update slot: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	slot.Version = expectedVersion + 1
	return true, nil
}

func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error) {
	query := `DELETE FROM slots WHERE id = ? AND status = 'deleted' AND version = ?`

	result, err := r.q.ExecContext(ctx, query, id.String(), expectedVersion)
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}

	return affected > 0, nil
}
