package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-display-backend/internal/metrics"
	"parking-display-backend/internal/model"
)

// ErrItemNotFound marks an operator action against a missing or
// non-dead-lettered item.
var ErrItemNotFound = errors.New("downlink item not found")

// Config tunes retry and rate-limit behavior.
type Config struct {
	MaxAttempts           int
	BackoffBase           time.Duration
	BackoffCap            time.Duration
	GatewaySendsPerMinute float64
	GatewayBurst          int
}

// Stats is a point-in-time snapshot for operational tooling.
type Stats struct {
	Depth            int64              `json:"depth"`
	InFlight         int64              `json:"in_flight"`
	DeadLetterDepth  int64              `json:"dead_letter_depth"`
	OldestPendingAge time.Duration      `json:"oldest_pending_age"`
	GatewayTokens    map[string]float64 `json:"gateway_tokens"`
}

// Queue is the durable per-device downlink queue. It guarantees that only the
// latest undelivered command per device survives, gates dispatch by
// per-gateway token buckets, and never drops a failed item silently.
type Queue struct {
	db       *gorm.DB
	cfg      Config
	limiters *GatewayLimiter
	metrics  *metrics.QueueMetrics
	now      func() time.Time

	mu          sync.Mutex
	deviceLocks map[string]*sync.Mutex
}

// New creates a queue over the given database.
func New(db *gorm.DB, cfg Config, m *metrics.QueueMetrics) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 5 * time.Minute
	}
	if cfg.GatewaySendsPerMinute <= 0 {
		cfg.GatewaySendsPerMinute = 30
	}
	if cfg.GatewayBurst <= 0 {
		cfg.GatewayBurst = 5
	}
	return &Queue{
		db:          db,
		cfg:         cfg,
		limiters:    NewGatewayLimiter(cfg.GatewaySendsPerMinute, cfg.GatewayBurst),
		metrics:     m,
		now:         time.Now,
		deviceLocks: make(map[string]*sync.Mutex),
	}
}

func (q *Queue) deviceLock(deviceID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.deviceLocks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		q.deviceLocks[deviceID] = lock
	}
	return lock
}

// Enqueue stores a command for delivery. If a PENDING item for the device
// exists it is coalesced: its payload, content hash, and creation time are
// replaced. An IN_FLIGHT item is left alone and the command is queued behind
// it. A command whose hash matches the last delivered one, with nothing else
// queued, is suppressed entirely.
func (q *Queue) Enqueue(ctx context.Context, cmd DisplayCommand) error {
	if cmd.ContentHash == "" {
		cmd.ContentHash = ContentHash(cmd.Payload, cmd.FPort)
	}
	lock := q.deviceLock(cmd.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	now := q.now().UTC()
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending model.DownlinkItem
		err := tx.Where("device_id = ? AND status = ?", cmd.DeviceID, model.DownlinkPending).
			Take(&pending).Error
		switch {
		case err == nil:
			if pending.ContentHash == cmd.ContentHash {
				return nil
			}
			// The status guard loses to a concurrent dispatch claim; in that
			// case fall through and queue a fresh item behind the claimed one.
			res := tx.Model(&model.DownlinkItem{}).
				Where("id = ? AND status = ?", pending.ID, model.DownlinkPending).
				Updates(map[string]any{
					"space_id":     cmd.SpaceID,
					"gateway_id":   cmd.GatewayID,
					"payload":      cmd.Payload,
					"content_hash": cmd.ContentHash,
					"f_port":       cmd.FPort,
					"created_at":   now,
				})
			if res.Error != nil {
				return fmt.Errorf("coalesce downlink for %s: %w", cmd.DeviceID, res.Error)
			}
			if res.RowsAffected == 1 {
				if q.metrics != nil {
					q.metrics.CoalescedTotal.Inc()
				}
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var inFlight int64
		if err := tx.Model(&model.DownlinkItem{}).
			Where("device_id = ? AND status = ?", cmd.DeviceID, model.DownlinkInFlight).
			Count(&inFlight).Error; err != nil {
			return err
		}
		if inFlight == 0 {
			var cursor model.DownlinkCursor
			err := tx.Where("device_id = ?", cmd.DeviceID).Take(&cursor).Error
			if err == nil && cursor.ContentHash == cmd.ContentHash {
				if q.metrics != nil {
					q.metrics.SuppressedTotal.Inc()
				}
				return nil
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		item := model.DownlinkItem{
			ID:             uuid.NewString(),
			DeviceID:       cmd.DeviceID,
			GatewayID:      cmd.GatewayID,
			SpaceID:        cmd.SpaceID,
			Payload:        cmd.Payload,
			ContentHash:    cmd.ContentHash,
			FPort:          cmd.FPort,
			Status:         model.DownlinkPending,
			NextEligibleAt: now,
			CreatedAt:      now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("enqueue downlink for %s: %w", cmd.DeviceID, err)
		}
		if q.metrics != nil {
			q.metrics.EnqueueTotal.Inc()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Due returns up to limit PENDING items whose next-eligible time has passed,
// oldest first. Gateway token availability is checked by the caller so an
// exhausted bucket leaves the item untouched.
func (q *Queue) Due(ctx context.Context, now time.Time, limit int) ([]model.DownlinkItem, error) {
	var items []model.DownlinkItem
	err := q.db.WithContext(ctx).
		Where("status = ? AND next_eligible_at <= ?", model.DownlinkPending, now.UTC()).
		Order("next_eligible_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("select due items: %w", err)
	}
	return items, nil
}

// ReserveGateway reserves a send token for the gateway. Callers cancel the
// reservation when the send is not attempted, so the token is not lost.
func (q *Queue) ReserveGateway(gatewayID string) *rate.Reservation {
	return q.limiters.Reserve(gatewayID)
}

// MarkInFlight transitions PENDING -> IN_FLIGHT. It reports false when the
// item was concurrently coalesced away or already claimed.
func (q *Queue) MarkInFlight(ctx context.Context, itemID string) (bool, error) {
	res := q.db.WithContext(ctx).Model(&model.DownlinkItem{}).
		Where("id = ? AND status = ?", itemID, model.DownlinkPending).
		Update("status", model.DownlinkInFlight)
	if res.Error != nil {
		return false, fmt.Errorf("mark in flight: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkDelivered removes the item and records its hash as the device's last
// delivered content.
func (q *Queue) MarkDelivered(ctx context.Context, item model.DownlinkItem) error {
	now := q.now().UTC()
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.DownlinkItem{}, "id = ?", item.ID).Error; err != nil {
			return err
		}
		cursor := model.DownlinkCursor{
			DeviceID:    item.DeviceID,
			ContentHash: item.ContentHash,
			DeliveredAt: now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content_hash", "delivered_at"}),
		}).Create(&cursor).Error
	})
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if q.metrics != nil {
		q.metrics.DeliveredTotal.WithLabelValues(item.GatewayID).Inc()
	}
	return nil
}

// MarkFailed applies the failure transition. A permanent failure dead-letters
// immediately without consuming a retry attempt; a retryable one increments
// the attempt count and reschedules with exponential backoff until the cap,
// after which the item is dead-lettered. A rescheduled item whose device has
// a newer PENDING command by now is superseded: it is dropped rather than
// re-queued, so at most one PENDING item per device ever exists.
func (q *Queue) MarkFailed(ctx context.Context, item model.DownlinkItem, sendErr error, permanent bool) error {
	now := q.now().UTC()
	item.LastError = sendErr.Error()

	if permanent {
		item.Status = model.DownlinkDeadLettered
	} else {
		item.Attempts++
		if item.Attempts >= q.cfg.MaxAttempts {
			item.Status = model.DownlinkDeadLettered
		} else {
			item.Status = model.DownlinkPending
			item.NextEligibleAt = now.Add(q.backoff(item.Attempts))
		}
	}

	superseded := false
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if item.Status == model.DownlinkPending {
			var newer int64
			if err := tx.Model(&model.DownlinkItem{}).
				Where("device_id = ? AND status = ? AND id <> ?",
					item.DeviceID, model.DownlinkPending, item.ID).
				Count(&newer).Error; err != nil {
				return err
			}
			if newer > 0 {
				superseded = true
				return tx.Delete(&model.DownlinkItem{}, "id = ?", item.ID).Error
			}
		}
		return tx.Save(&item).Error
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if q.metrics != nil {
		switch {
		case superseded:
			q.metrics.CoalescedTotal.Inc()
		case item.Status == model.DownlinkDeadLettered:
			q.metrics.DeadLetterTotal.Inc()
		default:
			q.metrics.RetryTotal.WithLabelValues(item.GatewayID).Inc()
		}
	}
	return nil
}

// backoff returns base << attempts capped at the configured maximum, with
// +/-20% jitter to spread retries across a recovering gateway.
func (q *Queue) backoff(attempts int) time.Duration {
	d := q.cfg.BackoffBase << attempts
	if d > q.cfg.BackoffCap || d <= 0 {
		d = q.cfg.BackoffCap
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * jitter)
}

// Requeue moves a dead-lettered item back to PENDING with its attempt count
// reset. This is the only recovery path out of the dead-letter list.
func (q *Queue) Requeue(ctx context.Context, itemID string) error {
	now := q.now().UTC()
	res := q.db.WithContext(ctx).Model(&model.DownlinkItem{}).
		Where("id = ? AND status = ?", itemID, model.DownlinkDeadLettered).
		Updates(map[string]any{
			"status":           model.DownlinkPending,
			"attempts":         0,
			"next_eligible_at": now,
			"last_error":       "",
		})
	if res.Error != nil {
		return fmt.Errorf("requeue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	if q.metrics != nil {
		q.metrics.RequeueTotal.Inc()
	}
	return nil
}

// Purge permanently deletes a dead-lettered item.
func (q *Queue) Purge(ctx context.Context, itemID string) error {
	res := q.db.WithContext(ctx).
		Where("id = ? AND status = ?", itemID, model.DownlinkDeadLettered).
		Delete(&model.DownlinkItem{})
	if res.Error != nil {
		return fmt.Errorf("purge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeadLetters lists the items retained for manual inspection, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]model.DownlinkItem, error) {
	var items []model.DownlinkItem
	err := q.db.WithContext(ctx).
		Where("status = ?", model.DownlinkDeadLettered).
		Order("updated_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return items, nil
}

// Metrics reports queue depth, dead-letter depth, per-gateway token
// availability, and the age of the oldest pending item. It also refreshes the
// Prometheus gauges.
func (q *Queue) Metrics(ctx context.Context) (Stats, error) {
	var stats Stats
	err := q.db.WithContext(ctx).Model(&model.DownlinkItem{}).
		Where("status = ?", model.DownlinkPending).
		Count(&stats.Depth).Error
	if err != nil {
		return stats, fmt.Errorf("queue depth: %w", err)
	}
	if err := q.db.WithContext(ctx).Model(&model.DownlinkItem{}).
		Where("status = ?", model.DownlinkInFlight).
		Count(&stats.InFlight).Error; err != nil {
		return stats, fmt.Errorf("in-flight depth: %w", err)
	}
	if err := q.db.WithContext(ctx).Model(&model.DownlinkItem{}).
		Where("status = ?", model.DownlinkDeadLettered).
		Count(&stats.DeadLetterDepth).Error; err != nil {
		return stats, fmt.Errorf("dead-letter depth: %w", err)
	}

	var oldest model.DownlinkItem
	err = q.db.WithContext(ctx).
		Where("status = ?", model.DownlinkPending).
		Order("created_at ASC").
		Take(&oldest).Error
	if err == nil {
		stats.OldestPendingAge = q.now().UTC().Sub(oldest.CreatedAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return stats, fmt.Errorf("oldest pending: %w", err)
	}

	stats.GatewayTokens = q.limiters.Tokens()

	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(stats.Depth + stats.InFlight))
		q.metrics.DeadLetterDepth.Set(float64(stats.DeadLetterDepth))
		q.metrics.OldestPendingAge.Set(stats.OldestPendingAge.Seconds())
		for gateway, tokens := range stats.GatewayTokens {
			q.metrics.GatewayTokens.WithLabelValues(gateway).Set(tokens)
		}
	}
	return stats, nil
}
