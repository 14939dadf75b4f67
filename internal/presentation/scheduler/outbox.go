package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	dbs "github.com/Builder-Lawyers/hub-provisioner/pkg/db"
	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
)

type OutboxPoller struct {
	processors *application.Processors
	uowFactory *dbs.UOWFactory
	cfg        *OutboxConfig
	stop       chan struct{}
	inFlight   sync.WaitGroup
}

type OutboxConfig struct {
	limit    int
	interval time.Duration
}

func NewOutboxConfig() *OutboxConfig {
	return &OutboxConfig{
		limit:    env.GetEnvInt("SCHEDULER_LIMIT", 5),
		interval: env.GetEnvDuration("SCHEDULER_INTERVAL", 5*time.Second),
	}
}

func NewOutboxPoller(processors *application.Processors, uowFactory *dbs.UOWFactory, cfg *OutboxConfig) *OutboxPoller {
	return &OutboxPoller{processors: processors, uowFactory: uowFactory, cfg: cfg, stop: make(chan struct{})}
}

// Start polls until ctx is done or Stop is called, then waits for the
// claimed events to finish.
func (o *OutboxPoller) Start(ctx context.Context) {
	slog.Info("Starting outbox poller...", "interval", o.cfg.interval, "limit", o.cfg.limit)
	ticker := time.NewTicker(o.cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.pollTable(ctx); err != nil {
				slog.Error("error in poller", "err", err)
			}
		case <-o.stop:
			slog.Info("Poller stopped, waiting for running events")
			o.inFlight.Wait()
			return
		case <-ctx.Done():
			slog.Info("Cancelling current execution")
			o.inFlight.Wait()
			return
		}
	}
}

// pollTable claims up to limit pending events and dispatches them without
// waiting for them to finish.
func (o *OutboxPoller) pollTable(ctx context.Context) error {
	claimed, err := o.claim(ctx)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		slog.Debug("no events to process")
		return nil
	}

	for _, event := range claimed {
		o.inFlight.Add(1)
		go func(ev db.Outbox) {
			defer o.inFlight.Done()
			if err := o.handleEvent(ctx, ev); err != nil {
				slog.Error("handler error", "event", ev.ID, "err", err)
			}
		}(event)
	}
	return nil
}

// claim moves pending rows to processing in one transaction. SKIP LOCKED lets
// several replicas poll the same table.
func (o *OutboxPoller) claim(ctx context.Context) (claimed []db.Outbox, err error) {
	uow := o.uowFactory.GetUoW()
	tx, err := uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Finalize(ctx, &err)

	rows, err := tx.Query(ctx, `SELECT id, event, status, payload, created_at FROM control.outbox
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`, consts.NotProcessed, o.cfg.limit)
	if err != nil {
		return nil, fmt.Errorf("error selecting events, %w", err)
	}
	defer rows.Close()

	var eventIDs []int64
	for rows.Next() {
		var event db.Outbox
		if err = rows.Scan(&event.ID, &event.Event, &event.Status, &event.Payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning event, %w", err)
		}
		eventIDs = append(eventIDs, int64(event.ID))
		claimed = append(claimed, event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading result sets, %w", err)
	}
	rows.Close()
	if len(claimed) == 0 {
		return nil, nil
	}

	if _, err = tx.Exec(ctx, "UPDATE control.outbox SET status = $1 WHERE id = ANY($2)", consts.Processing, eventIDs); err != nil {
		return nil, fmt.Errorf("error setting events status to processing, %w", err)
	}
	return claimed, nil
}

func (o *OutboxPoller) handleEvent(ctx context.Context, outbox db.Outbox) error {
	slog.Info("Handling event", "event", outbox.Event, "id", outbox.ID)

	err := o.dispatch(ctx, outbox)
	status := consts.Processed
	if err != nil {
		var r errs.RetryableError
		if errors.As(err, &r) {
			slog.Warn("event will be retried", "event", outbox.Event, "id", outbox.ID, "err", err)
			status = consts.NotProcessed
		} else {
			slog.Error("error in handler", "event", outbox.Event, "id", outbox.ID, "err", err)
			status = consts.InError
		}
	}

	// the status must land even when shutdown cancelled the handler
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := o.uowFactory.Pool.Exec(saveCtx, "UPDATE control.outbox SET status = $1 WHERE id = $2", status, outbox.ID); err != nil {
		return fmt.Errorf("error updating event status, %w", err)
	}

	slog.Info("processed event", "id", outbox.ID, "status", status)
	return nil
}

func (o *OutboxPoller) dispatch(ctx context.Context, outbox db.Outbox) error {
	switch outbox.Event {
	case events.ProvisionCustomer{}.GetType():
		event, err := db.MapOutboxModelToProvisionCustomer(outbox)
		if err != nil {
			return err
		}
		return o.processors.ProvisionCustomer.Handle(ctx, event)
	case events.DeprovisionCustomer{}.GetType():
		event, err := db.MapOutboxModelToDeprovisionCustomer(outbox)
		if err != nil {
			return err
		}
		return o.processors.DeprovisionCustomer.Handle(ctx, event)
	default:
		return fmt.Errorf("unknown event type %q", outbox.Event)
	}
}

func (o *OutboxPoller) Stop() {
	slog.Info("Stopping poller")
	close(o.stop)
}
