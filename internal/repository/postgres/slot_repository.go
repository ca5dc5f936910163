package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/google/uuid"
)

const slotColumns = `id, owner_id, title, description, start_time, end_time, status, prior_status,
	deleted_at, deleted_by, recovery_expires_at, expiry_notified_at, version, created_at, updated_at`

type SlotRepository struct {
	db DBTX
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.Title,
		&slot.Description,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Status,
		&slot.PriorStatus,
		&slot.DeletedAt,
		&slot.DeletedBy,
		&slot.RecoveryExpiresAt,
		&slot.ExpiryNotifiedAt,
		&slot.Version,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *SlotRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Slot, error) {
	rows, err := r.db.Query(ctx, query, args...)
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

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (id, owner_id, title, description, start_time, end_time, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(
		ctx, query,
		slot.ID,
		slot.OwnerID,
		slot.Title,
		slot.Description,
		slot.StartTime,
		slot.EndTime,
		slot.Status,
		slot.Version,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create slot: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// ListByOwner получает неудалённые слоты владельца
func (r *SlotRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = $1 AND status <> 'deleted'
		ORDER BY start_time
	`
	return r.list(ctx, "list slots by owner", query, ownerID)
}

// ListOpen получает чужие слоты, доступные для обмена
func (r *SlotRepository) ListOpen(ctx context.Context, excludeOwnerID string) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'open' AND owner_id <> $1
		ORDER BY start_time
	`
	return r.list(ctx, "list open slots", query, excludeOwnerID)
}

// ListTrash получает корзину владельца
func (r *SlotRepository) ListTrash(ctx context.Context, ownerID string, now time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = $1 AND status = 'deleted' AND recovery_expires_at > $2
		ORDER BY deleted_at DESC
	`
	return r.list(ctx, "list trash", query, ownerID, now)
}

// ListExpiring получает удалённые слоты, срок восстановления которых скоро истечёт
func (r *SlotRepository) ListExpiring(ctx context.Context, ownerID string, now, until time.Time, after *repository.ExpiryCursor, limit int) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'deleted'
		  AND recovery_expires_at > $1
		  AND recovery_expires_at <= $2
		  AND ($3 = '' OR owner_id = $3)
		  AND ($4::timestamptz IS NULL OR (recovery_expires_at, id) > ($4, $5))
		ORDER BY recovery_expires_at, id
		LIMIT $6
	`

	var afterAt *time.Time
	afterID := uuid.Nil
	if after != nil {
		afterAt = &after.ExpiresAt
		afterID = after.ID
	}

	return r.list(ctx, "list expiring slots", query, now, until, ownerID, afterAt, afterID, limit)
}

// ListPurgeable получает слоты с истёкшим сроком восстановления
func (r *SlotRepository) ListPurgeable(ctx context.Context, now time.Time, limit int) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'deleted' AND recovery_expires_at <= $1
		ORDER BY recovery_expires_at, id
		LIMIT $2
	`
	return r.list(ctx, "list purgeable slots", query, now, limit)
}

// Update сохраняет слот, если его статус и версия не изменились с момента чтения
func (r *SlotRepository) Update(ctx context.Context, slot *model.Slot, expected model.SlotStatus, expectedVersion int64) (bool, error) {
	query := `
		UPDATE slots
		SET owner_id = $1, title = $2, description = $3, start_time = $4, end_time = $5,
		    status = $6, prior_status = $7, deleted_at = $8, deleted_by = $9,
		    recovery_expires_at = $10, expiry_notified_at = $11, updated_at = $12,
		    version = version + 1
		WHERE id = $13 AND status = $14 AND version = $15
	`

	result, err := r.db.Exec(
		ctx, query,
		slot.OwnerID,
		slot.Title,
		slot.Description,
		slot.StartTime,
		slot.EndTime,
		slot.Status,
		slot.PriorStatus,
		slot.DeletedAt,
		slot.DeletedBy,
		slot.RecoveryExpiresAt,
		slot.ExpiryNotifiedAt,
		slot.UpdatedAt,
		slot.ID,
		expected,
		expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update slot: %w", err)
	}

	if result.RowsAffected() == 0 {
		return false, nil
	}

	slot.Version = expectedVersion + 1
	return true, nil
}

// Delete окончательно удаляет слот из корзины
func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) (bool, error) {
	query := `DELETE FROM slots WHERE id = $1 AND status = 'deleted' AND version = $2`

	result, err := r.db.Exec(ctx, query, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
