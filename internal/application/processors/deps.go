package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/compute"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/metrics"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/secrets"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/storage"
	"github.com/google/uuid"
)

type CustomerStore interface {
	GetByPaymentID(ctx context.Context, paymentCustomerID string) (*entity.Customer, error)
	SlugsWithBase(ctx context.Context, base string) ([]string, error)
	Create(ctx context.Context, customer *entity.Customer) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to consts.CustomerStatus, lastError string) error
	SetRouting(ctx context.Context, id uuid.UUID, targetGroupARN, listenerRuleARN string) error
	SetLastError(ctx context.Context, id uuid.UUID, lastError string) error
	RecordStep(ctx context.Context, customerID uuid.UUID, runID string, step consts.Step, outcome consts.StepOutcome, detail string) error
}

type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, name, password string) error
	DropDatabase(ctx context.Context, name string) error
}

type ComputeProvisioner interface {
	CreateService(ctx context.Context, t compute.Tenant) (compute.Routing, error)
	DeleteService(ctx context.Context, slug, targetGroupARN string) error
}

type DNSProvisioner interface {
	CreateRecord(ctx context.Context, slug string) error
	DeleteRecord(ctx context.Context, slug string) error
}

type Notifier interface {
	SendWelcome(ctx context.Context, email, slug, passphrase string) error
}

type Archiver interface {
	PutManifest(ctx context.Context, m storage.Manifest) (string, error)
}

// Deps is everything a provisioning run touches. All fields are required
// except Archiver.
type Deps struct {
	Cfg      *config.ProvisionConfig
	Store    CustomerStore
	Secrets  secrets.Generator
	Database DatabaseProvisioner
	Compute  ComputeProvisioner
	DNS      DNSProvisioner
	Notifier Notifier
	Archiver Archiver
	Metrics  *metrics.Metrics
}

// bookkeeping writes must land even when the run's context is cancelled
const bookkeepingTimeout = 10 * time.Second

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// run is one execution of a workflow against one customer.
type run struct {
	*Deps
	id       string
	workflow string
	customer *entity.Customer
	log      *slog.Logger
}

// step runs fn under the per-step timeout and records its outcome.
func (r *run) step(ctx context.Context, step consts.Step, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.Cfg.StepTimeout)
	started := time.Now()
	err := fn(stepCtx)
	cancel()
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", r.Cfg.StepTimeout, err)
	}

	outcome, detail := consts.StepSucceeded, ""
	if err != nil {
		outcome, detail = consts.StepFailed, err.Error()
	}
	r.Metrics.ObserveStep(string(step), string(outcome), started)

	recCtx, recCancel := detached(ctx)
	defer recCancel()
	if recErr := r.Store.RecordStep(recCtx, r.customer.ID, r.id, step, outcome, detail); recErr != nil {
		r.log.Error("recording step", "step", step, "err", recErr)
	}

	if err != nil {
		r.log.Error("step failed", "step", step, "took", time.Since(started), "err", err)
		return err
	}
	r.log.Info("step done", "step", step, "took", time.Since(started))
	return nil
}

// archive writes the run manifest. Failures are logged only.
// transition mirrors a status write that already landed in the store.
func (r *run) transition(next consts.CustomerStatus) {
	if err := r.customer.Transition(next); err != nil {
		r.log.Error("status out of sync with store", "err", err)
	}
}

func (r *run) archive(ctx context.Context) {
	if r.Archiver == nil {
		return
	}
	c := r.customer
	m := storage.Manifest{
		Workflow:        r.workflow,
		RunID:           r.id,
		Slug:            c.Slug,
		DatabaseName:    c.DatabaseName,
		TargetGroupARN:  c.TargetGroupARN,
		ListenerRuleARN: c.ListenerRuleARN,
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt,
		ArchivedAt:      time.Now().UTC(),
	}
	_ = r.step(ctx, consts.StepArchiveResults, func(ctx context.Context) error {
		key, err := r.Archiver.PutManifest(ctx, m)
		if err == nil && key != "" {
			r.log.Info("manifest archived", "key", key)
		}
		return err
	})
}
