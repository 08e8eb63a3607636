package usecase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-Delivery"

	maxResponseRead = 64 << 10
)

// ErrDeliveryFailed is returned by Deliver when the endpoint did not accept the event.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// WebhookPayload is the body POSTed to merchant endpoints.
type WebhookPayload struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// WebhookDispatcher drains the outbox into per-endpoint delivery tasks and
// delivers them from a bounded worker pool.
type WebhookDispatcher struct {
	repos  *repository.Repositories
	tx     repository.Transactor
	cfg    config.WebhooksConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewWebhookDispatcher(repos *repository.Repositories, tx repository.Transactor, cfg config.WebhooksConfig, logger *zap.Logger) *WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 6 * time.Hour
	}
	if cfg.MaxResponseLength <= 0 {
		cfg.MaxResponseLength = 1000
	}

	return &WebhookDispatcher{
		repos:  repos,
		tx:     tx,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    utcNow,
	}
}

// Run polls until ctx is cancelled. In-flight deliveries finish; queued tasks
// are left to their lease and picked up again on the next start.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	d.logger.Info("Webhook dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll_interval", d.cfg.PollInterval))

	tasks := make(chan *model.WebhookTask, d.cfg.QueueSize)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue
				}
				if err := d.Deliver(context.WithoutCancel(ctx), task); err != nil && !errors.Is(err, ErrDeliveryFailed) {
					d.logger.Error("Webhook task failed", zap.String("task_id", task.ID.String()), zap.Error(err))
				}
			}
		}()
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(tasks)
		wg.Wait()
		d.logger.Info("Webhook dispatcher stopped")
	}()

	for {
		if err := d.fanOut(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("Outbox fan-out failed", zap.Error(err))
		}
		due, err := d.claim(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("Failed to claim webhook tasks", zap.Error(err))
		}
		for _, task := range due {
			select {
			case tasks <- task:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce runs one synchronous fan-out and delivery pass and returns the
// number of successful deliveries.
func (d *WebhookDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if err := d.fanOut(ctx); err != nil {
		return 0, err
	}
	due, err := d.claim(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, task := range due {
		err := d.Deliver(ctx, task)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrDeliveryFailed):
		default:
			return delivered, err
		}
	}
	return delivered, nil
}

// fanOut turns due outbox events into one task per subscribed endpoint.
// Task creation ignores duplicates, so a crash between insert and mark only
// repeats work.
func (d *WebhookDispatcher) fanOut(ctx context.Context) error {
	now := d.now()
	events, err := d.repos.Outbox.ClaimDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		err := d.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			webhooks, err := repos.Webhooks.ListActiveByStore(ctx, event.StoreID)
			if err != nil {
				return err
			}
			var tasks []*model.WebhookTask
			for _, w := range webhooks {
				if !w.Subscribed(event.EventType) {
					continue
				}
				tasks = append(tasks, &model.WebhookTask{
					OutboxEventID: event.ID,
					WebhookID:     w.ID,
					Status:        model.WebhookTaskPending,
					NextAttemptAt: now,
				})
			}
			if err := repos.WebhookTasks.CreateBatch(ctx, tasks); err != nil {
				return err
			}
			return repos.Outbox.MarkDispatched(ctx, event.ID, now)
		})
		if err == nil {
			continue
		}

		dead := event.Attempts+1 >= d.cfg.MaxAttempts
		d.logger.Warn("Failed to fan out outbox event",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Bool("dead", dead),
			zap.Error(err))
		if rerr := d.repos.Outbox.Reschedule(ctx, event.ID, err.Error(), now.Add(d.backoff(event.Attempts+1)), dead); rerr != nil {
			return rerr
		}
	}
	return nil
}

func (d *WebhookDispatcher) claim(ctx context.Context) ([]*model.WebhookTask, error) {
	now := d.now()
	lease := now.Add(2*d.cfg.Timeout + d.cfg.PollInterval)
	return d.repos.WebhookTasks.ClaimDue(ctx, now, lease, d.cfg.BatchSize)
}

// Deliver makes one attempt for a task and records exactly one delivery row.
func (d *WebhookDispatcher) Deliver(ctx context.Context, task *model.WebhookTask) error {
	webhook, err := d.repos.Webhooks.GetByID(ctx, task.WebhookID)
	if err != nil {
		return err
	}
	event, err := d.repos.Outbox.GetByID(ctx, task.OutboxEventID)
	if err != nil {
		return err
	}
	if webhook == nil || !webhook.IsActive || event == nil {
		return d.repos.WebhookTasks.MarkDead(ctx, task.ID, task.Attempts)
	}

	attempt := task.Attempts + 1
	delivery := d.send(ctx, webhook, event, attempt)
	if err := d.repos.Deliveries.Create(ctx, delivery); err != nil {
		d.logger.Error("Failed to record webhook delivery",
			zap.String("webhook_id", webhook.ID.String()),
			zap.Error(err))
	}

	if delivery.Success {
		if err := d.repos.Webhooks.RecordSuccess(ctx, webhook.ID); err != nil {
			return err
		}
		return d.repos.WebhookTasks.MarkDelivered(ctx, task.ID, attempt)
	}

	now := d.now()
	disabled, err := d.repos.Webhooks.RecordFailure(ctx, webhook.ID, d.cfg.DisableThreshold, now)
	if err != nil {
		return err
	}

	if disabled || attempt >= d.cfg.MaxAttempts {
		d.logger.Warn("Webhook task dead-lettered",
			zap.String("webhook_id", webhook.ID.String()),
			zap.String("event", event.EventType),
			zap.Int("attempts", attempt),
			zap.Bool("webhook_disabled", disabled))
		if err := d.repos.WebhookTasks.MarkDead(ctx, task.ID, attempt); err != nil {
			return err
		}
	} else {
		next := now.Add(d.backoff(attempt))
		if err := d.repos.WebhookTasks.Reschedule(ctx, task.ID, attempt, next); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s", ErrDeliveryFailed, deref(delivery.Error))
}

func (d *WebhookDispatcher) send(ctx context.Context, webhook *model.Webhook, event *model.OutboxEvent, attempt int) *model.WebhookDelivery {
	delivery := &model.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: webhook.ID,
		EventID:   event.ID,
		Event:     event.EventType,
		Attempt:   attempt,
	}

	data := json.RawMessage(event.Payload)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	body, err := json.Marshal(WebhookPayload{
		Event:     event.EventType,
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		delivery.Error = strPtr(err.Error())
		return delivery
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		delivery.Error = strPtr(err.Error())
		return delivery
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "paycore-webhooks/1.0")
	req.Header.Set(EventHeader, event.EventType)
	req.Header.Set(DeliveryHeader, delivery.ID.String())
	if webhook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(webhook.Secret, body))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		delivery.DurationMs = time.Since(start).Milliseconds()
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			delivery.Error = strPtr(fmt.Sprintf("timeout after %s", d.cfg.Timeout))
		} else {
			delivery.Error = strPtr(err.Error())
		}
		return delivery
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))
	delivery.DurationMs = time.Since(start).Milliseconds()
	delivery.StatusCode = &resp.StatusCode
	if len(respBody) > 0 {
		delivery.ResponseBody = strPtr(truncate(string(respBody), d.cfg.MaxResponseLength))
	}

	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		delivery.Error = strPtr(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	case readErr != nil:
		delivery.Error = strPtr(readErr.Error())
	default:
		delivery.Success = true
	}
	return delivery
}

// backoff is base * 2^(attempt-1), capped.
func (d *WebhookDispatcher) backoff(attempt int) time.Duration {
	wait := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	return wait
}

// Sign returns the X-Webhook-Signature value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
