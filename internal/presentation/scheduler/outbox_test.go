package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db/repo"
	"github.com/Builder-Lawyers/hub-provisioner/internal/testinfra"
	dbs "github.com/Builder-Lawyers/hub-provisioner/pkg/db"
	"github.com/stretchr/testify/require"
)

type provisionFunc func(ctx context.Context, event events.ProvisionCustomer) error

func (f provisionFunc) Handle(ctx context.Context, event events.ProvisionCustomer) error {
	return f(ctx, event)
}

type deprovisionFunc func(ctx context.Context, event events.DeprovisionCustomer) error

func (f deprovisionFunc) Handle(ctx context.Context, event events.DeprovisionCustomer) error {
	return f(ctx, event)
}

func statusOf(t *testing.T, factory *dbs.UOWFactory, paymentID string) consts.OutboxStatus {
	t.Helper()
	var status consts.OutboxStatus
	err := factory.Pool.QueryRow(context.Background(),
		"SELECT status FROM control.outbox WHERE payload->>'paymentCustomerID' = $1", paymentID).Scan(&status)
	require.NoError(t, err)
	return status
}

func TestPollerDispatchesAndRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	pool := testinfra.Pool(t)
	factory := dbs.NewUoWFactory(pool)
	eventRepo := repo.NewEventRepo(pool)

	require.NoError(t, eventRepo.InsertEvent(ctx, events.ProvisionCustomer{PaymentCustomerID: "cus_ok", Email: "ok@example.com"}))
	require.NoError(t, eventRepo.InsertEvent(ctx, events.ProvisionCustomer{PaymentCustomerID: "cus_broken", Email: "b@example.com"}))
	require.NoError(t, eventRepo.InsertEvent(ctx, events.DeprovisionCustomer{PaymentCustomerID: "cus_busy"}))

	var (
		mu   sync.Mutex
		seen []string
	)
	processors := &application.Processors{
		ProvisionCustomer: provisionFunc(func(_ context.Context, e events.ProvisionCustomer) error {
			mu.Lock()
			seen = append(seen, e.PaymentCustomerID)
			mu.Unlock()
			if e.PaymentCustomerID == "cus_broken" {
				return errors.New("compute failed")
			}
			return nil
		}),
		DeprovisionCustomer: deprovisionFunc(func(_ context.Context, e events.DeprovisionCustomer) error {
			mu.Lock()
			seen = append(seen, e.PaymentCustomerID)
			mu.Unlock()
			return errs.RetryableError{Err: errors.New("still provisioning")}
		}),
	}
	poller := NewOutboxPoller(processors, factory, &OutboxConfig{limit: 10, interval: time.Hour})

	require.NoError(t, poller.pollTable(ctx))
	poller.inFlight.Wait()

	require.ElementsMatch(t, []string{"cus_ok", "cus_broken", "cus_busy"}, seen)
	require.Equal(t, consts.Processed, statusOf(t, factory, "cus_ok"))
	require.Equal(t, consts.InError, statusOf(t, factory, "cus_broken"))
	require.Equal(t, consts.NotProcessed, statusOf(t, factory, "cus_busy"))

	// only the retryable event is claimed again
	seen = nil
	require.NoError(t, poller.pollTable(ctx))
	poller.inFlight.Wait()
	require.Equal(t, []string{"cus_busy"}, seen)
}

func TestPollerStops(t *testing.T) {
	poller := NewOutboxPoller(&application.Processors{}, &dbs.UOWFactory{}, &OutboxConfig{limit: 1, interval: time.Hour})
	done := make(chan struct{})
	go func() {
		poller.Start(context.Background())
		close(done)
	}()
	poller.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
