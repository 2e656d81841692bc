package dispatch

import (
	"context"
	"log"
	"time"

	"parking-display-backend/internal/model"
	"parking-display-backend/internal/queue"
)

// Config tunes the dispatch loop.
type Config struct {
	Interval    time.Duration
	SendTimeout time.Duration
	PoolSize    int
	BatchSize   int
}

// Worker drains the downlink queue: it claims due items whose gateway has an
// available token, sends them, and applies the delivered/retry/dead-letter
// transition. It is the only component that blocks on the radio network.
type Worker struct {
	queue  *queue.Queue
	sender GatewaySender
	cfg    Config
	jobs   chan model.DownlinkItem
}

// NewWorker creates a dispatch worker over the given queue and sender.
func NewWorker(q *queue.Queue, sender GatewaySender, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		queue:  q,
		sender: sender,
		cfg:    cfg,
		jobs:   make(chan model.DownlinkItem, cfg.PoolSize),
	}
}

// Run starts the send pool and the tick loop, returning when ctx is done.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("dispatch worker starting: pool=%d interval=%s", w.cfg.PoolSize, w.cfg.Interval)
	for i := 0; i < w.cfg.PoolSize; i++ {
		go w.sendLoop(ctx, i)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("dispatch worker shutting down")
			return
		case <-ticker.C:
			w.TickOnce(ctx)
		}
	}
}

// TickOnce claims every due item with an available gateway token and hands it
// to the send pool. Items whose gateway bucket is empty stay PENDING with
// their attempt count untouched; the next tick re-evaluates them.
func (w *Worker) TickOnce(ctx context.Context) {
	for _, item := range w.claimDue(ctx) {
		select {
		case w.jobs <- item:
		case <-ctx.Done():
			return
		}
	}
	if _, err := w.queue.Metrics(ctx); err != nil {
		log.Printf("dispatch: refreshing queue metrics: %v", err)
	}
}

// DrainOnce claims and sends due items synchronously, returning the number of
// attempts made. Used for manual actuation paths and tests.
func (w *Worker) DrainOnce(ctx context.Context) int {
	items := w.claimDue(ctx)
	for _, item := range items {
		w.process(ctx, item)
	}
	return len(items)
}

// claimDue selects due PENDING items, reserves a gateway token for each, and
// marks the winners IN_FLIGHT. A reservation whose claim loses is cancelled
// so the token goes back to the bucket.
func (w *Worker) claimDue(ctx context.Context) []model.DownlinkItem {
	items, err := w.queue.Due(ctx, time.Now().UTC(), w.cfg.BatchSize)
	if err != nil {
		log.Printf("dispatch: selecting due items: %v", err)
		return nil
	}
	claimed := items[:0]
	for _, item := range items {
		rsv := w.queue.ReserveGateway(item.GatewayID)
		if !rsv.OK() || rsv.Delay() > 0 {
			rsv.Cancel()
			continue
		}
		ok, err := w.queue.MarkInFlight(ctx, item.ID)
		if err != nil || !ok {
			rsv.Cancel()
			if err != nil {
				log.Printf("dispatch: claiming item %s: %v", item.ID, err)
			}
			continue
		}
		item.Status = model.DownlinkInFlight
		claimed = append(claimed, item)
	}
	return claimed
}

func (w *Worker) sendLoop(ctx context.Context, id int) {
	log.Printf("dispatch sender %d started", id)
	for {
		select {
		case <-ctx.Done():
			log.Printf("dispatch sender %d shutting down", id)
			return
		case item := <-w.jobs:
			w.process(ctx, item)
		}
	}
}

// process performs one send attempt and records the outcome.
func (w *Worker) process(ctx context.Context, item model.DownlinkItem) {
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	err := w.sender.Send(sendCtx, SendRequest{
		DeviceID:  item.DeviceID,
		GatewayID: item.GatewayID,
		Payload:   item.Payload,
		FPort:     item.FPort,
	})
	cancel()

	switch {
	case err == nil:
		if derr := w.queue.MarkDelivered(ctx, item); derr != nil {
			log.Printf("dispatch: recording delivery of %s: %v", item.ID, derr)
		}
	case IsPermanent(err):
		log.Printf("dispatch: permanent failure for device %s: %v", item.DeviceID, err)
		if ferr := w.queue.MarkFailed(ctx, item, err, true); ferr != nil {
			log.Printf("dispatch: dead-lettering %s: %v", item.ID, ferr)
		}
	default:
		log.Printf("dispatch: retryable failure for device %s (attempt %d): %v", item.DeviceID, item.Attempts+1, err)
		if ferr := w.queue.MarkFailed(ctx, item, err, false); ferr != nil {
			log.Printf("dispatch: rescheduling %s: %v", item.ID, ferr)
		}
	}
}
