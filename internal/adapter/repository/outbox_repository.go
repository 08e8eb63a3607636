package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type outboxRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *gorm.DB, logger *zap.Logger) repository.OutboxRepository {
	return &outboxRepository{db: db, logger: logger}
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.logger.Error("Failed to enqueue outbox event",
			zap.String("event_type", event.EventType),
			zap.String("store_id", event.StoreID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxStatusPending, now).
		Order("next_attempt_at, created_at").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OutboxEvent, error) {
	var event model.OutboxEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbox event: %w", err)
	}
	return &event, nil
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":        model.OutboxStatusDispatched,
			"dispatched_at": at,
			"updated_at":    at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox event dispatched: %w", err)
	}
	return nil
}

func (r *outboxRepository) Reschedule(ctx context.Context, id uuid.UUID, lastErr string, next time.Time, dead bool) error {
	status := model.OutboxStatusPending
	if dead {
		status = model.OutboxStatusDead
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      lastErr,
			"next_attempt_at": next,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ListByStore(ctx context.Context, storeID uuid.UUID, eventType string) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	if err := q.Order("created_at").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list outbox events: %w", err)
	}
	return events, nil
}

type webhookTaskRepository struct {
	db *gorm.DB
}

// NewWebhookTaskRepository creates a new webhook task repository
func NewWebhookTaskRepository(db *gorm.DB) repository.WebhookTaskRepository {
	return &webhookTaskRepository{db: db}
}

func (r *webhookTaskRepository) CreateBatch(ctx context.Context, tasks []*model.WebhookTask) error {
	if len(tasks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&tasks).Error
	if err != nil {
		return fmt.Errorf("failed to create webhook tasks: %w", err)
	}
	return nil
}

func (r *webhookTaskRepository) ClaimDue(ctx context.Context, now time.Time, leaseUntil time.Time, limit int) ([]*model.WebhookTask, error) {
	var claimed []*model.WebhookTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []*model.WebhookTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", model.WebhookTaskPending, now).
			Where("claimed_until IS NULL OR claimed_until < ?", now).
			Order("next_attempt_at").
			Limit(limit).
			Find(&due).Error
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(due))
		for i, t := range due {
			ids[i] = t.ID
		}
		if err := tx.Model(&model.WebhookTask{}).Where("id IN ?", ids).Update("claimed_until", leaseUntil).Error; err != nil {
			return err
		}
		for _, t := range due {
			t.ClaimedUntil = &leaseUntil
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook tasks: %w", err)
	}
	return claimed, nil
}

func (r *webhookTaskRepository) MarkDelivered(ctx context.Context, id uuid.UUID, attempts int) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        model.WebhookTaskDelivered,
		"attempts":      attempts,
		"claimed_until": nil,
	})
}

func (r *webhookTaskRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"attempts":        attempts,
		"next_attempt_at": next,
		"claimed_until":   nil,
	})
}

func (r *webhookTaskRepository) MarkDead(ctx context.Context, id uuid.UUID, attempts int) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        model.WebhookTaskDead,
		"attempts":      attempts,
		"claimed_until": nil,
	})
}

func (r *webhookTaskRepository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&model.WebhookTask{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update webhook task: %w", err)
	}
	return nil
}
