package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appconsts "github.com/Builder-Lawyers/hub-provisioner/internal/application/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/slug"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/compute"
	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
)

const (
	// enough to get through a burst of signups sharing one local part
	maxSlugAttempts = 50

	maxActivationRetries    = 4
	activationRetryInterval = 100 * time.Millisecond
)

type ProvisionCustomer struct {
	deps *Deps
}

func NewProvisionCustomer(deps *Deps) *ProvisionCustomer {
	return &ProvisionCustomer{deps: deps}
}

// Handle turns a paid subscription into a running deployment. It is safe to
// deliver the same event more than once: a customer that already exists, in
// any status, is left alone.
func (c *ProvisionCustomer) Handle(ctx context.Context, event events.ProvisionCustomer) error {
	r := &run{
		Deps:     c.deps,
		id:       ulid.Make().String(),
		workflow: string(appconsts.WorkflowProvision),
	}
	r.log = slog.With("workflow", r.workflow, "runID", r.id, "paymentCustomerID", event.PaymentCustomerID)

	outcome, err := c.provision(ctx, r, event)
	c.deps.Metrics.ObserveRun(r.workflow, string(outcome))
	return err
}

func (c *ProvisionCustomer) provision(ctx context.Context, r *run, event events.ProvisionCustomer) (appconsts.RunOutcome, error) {
	existing, err := c.deps.Store.GetByPaymentID(ctx, event.PaymentCustomerID)
	if err == nil {
		r.log.Info("customer already exists, skipping", "status", existing.Status, "slug", existing.Slug)
		return appconsts.OutcomeSkipped, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return appconsts.OutcomeRetry, errs.RetryableError{Err: err}
	}

	creds, err := c.deps.Secrets.Generate()
	if err != nil {
		return appconsts.OutcomeFailed, err
	}
	customer := entity.NewCustomer(event.PaymentCustomerID, event.SubscriptionID, event.Email)
	customer.DatabasePassword = creds.DatabasePassword
	customer.AccessPassphrase = creds.Passphrase
	r.customer = customer

	err = c.allocate(ctx, r)
	if errs.IsConflictOn(err, errs.FieldPaymentCustomerID) {
		r.log.Info("customer created by a concurrent run, skipping")
		return appconsts.OutcomeSkipped, nil
	}
	if err != nil {
		return appconsts.OutcomeFailed, fmt.Errorf("allocating customer: %w", err)
	}
	r.log = r.log.With("slug", customer.Slug)
	r.log.Info("customer allocated", "database", customer.DatabaseName)

	if err = r.step(ctx, consts.StepDatabase, func(ctx context.Context) error {
		return c.deps.Database.CreateDatabase(ctx, customer.DatabaseName, customer.DatabasePassword)
	}); err != nil {
		return appconsts.OutcomeFailed, c.fail(ctx, r, consts.StepDatabase, err)
	}

	if err = r.step(ctx, consts.StepCompute, func(ctx context.Context) error {
		routing, err := c.deps.Compute.CreateService(ctx, compute.Tenant{
			Slug:             customer.Slug,
			DatabaseName:     customer.DatabaseName,
			DatabasePassword: customer.DatabasePassword,
			SecretKey:        creds.SecretKey,
			Passphrase:       customer.AccessPassphrase,
		})
		// keep whatever handles exist so teardown can find them
		if routing.TargetGroupARN != "" {
			customer.TargetGroupARN, customer.ListenerRuleARN = routing.TargetGroupARN, routing.RuleARN
			saveCtx, cancel := detached(ctx)
			defer cancel()
			if saveErr := c.deps.Store.SetRouting(saveCtx, customer.ID, routing.TargetGroupARN, routing.RuleARN); saveErr != nil {
				r.log.Error("saving routing handles", "err", saveErr)
				if err == nil {
					err = saveErr
				}
			}
		}
		return err
	}); err != nil {
		return appconsts.OutcomeFailed, c.fail(ctx, r, consts.StepCompute, err)
	}

	if err = r.step(ctx, consts.StepDNS, func(ctx context.Context) error {
		return c.deps.DNS.CreateRecord(ctx, customer.Slug)
	}); err != nil {
		return appconsts.OutcomeFailed, c.fail(ctx, r, consts.StepDNS, err)
	}

	if err = r.step(ctx, consts.StepNotify, func(ctx context.Context) error {
		return c.deps.Notifier.SendWelcome(ctx, customer.Email, customer.Slug, customer.AccessPassphrase)
	}); err != nil {
		r.log.Warn("welcome mail not delivered, continuing", "err", err)
	}

	if err = c.activate(ctx, r); err != nil {
		return appconsts.OutcomeFailed, c.fail(ctx, r, consts.StepActivate, fmt.Errorf("activating customer: %w", err))
	}
	r.log.Info("customer active", "url", customer.URL(c.deps.Cfg.Domain))

	r.archive(ctx)
	return appconsts.OutcomeSucceeded, nil
}

// allocate picks the lowest free slug and inserts the customer, retrying when
// a concurrent run claims the same slug first.
func (c *ProvisionCustomer) allocate(ctx context.Context, r *run) error {
	customer := r.customer
	base := slug.Base(customer.Email)
	var lost []string

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		taken, err := c.deps.Store.SlugsWithBase(ctx, base)
		if err != nil {
			return err
		}
		customer.Slug = slug.FirstFree(base, append(taken, lost...))
		customer.DatabaseName = slug.DatabaseName(c.deps.Cfg.DatabasePrefix, customer.Slug)

		err = c.deps.Store.Create(ctx, customer)
		if err == nil {
			return nil
		}
		if errs.IsConflictOn(err, errs.FieldSlug) || errs.IsConflictOn(err, errs.FieldDatabaseName) {
			r.log.Debug("slug taken, retrying", "slug", customer.Slug, "attempt", attempt)
			lost = append(lost, customer.Slug)
			continue
		}
		return err
	}
	return fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}

// activate retries the provisioning -> active write. A write that landed but
// whose reply was lost shows up as an already active customer.
func (c *ProvisionCustomer) activate(ctx context.Context, r *run) error {
	saveCtx, cancel := detached(ctx)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = activationRetryInterval
	b.MaxInterval = time.Second
	err := backoff.Retry(func() error {
		return c.deps.Store.UpdateStatus(saveCtx, r.customer.ID, consts.CustomerStatusProvisioning, consts.CustomerStatusActive, "")
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxActivationRetries), saveCtx))
	if err != nil {
		current, getErr := c.deps.Store.GetByPaymentID(saveCtx, r.customer.PaymentCustomerID)
		if getErr != nil || current.Status != consts.CustomerStatusActive {
			return err
		}
	}
	r.transition(consts.CustomerStatusActive)
	return nil
}

// fail marks the customer failed. Resources from earlier steps stay in place
// for an operator or a later deprovision to clean up.
func (c *ProvisionCustomer) fail(ctx context.Context, r *run, step consts.Step, cause error) error {
	stepErr := errs.StepError{Step: step, Err: cause}
	saveCtx, cancel := detached(ctx)
	defer cancel()
	if err := c.deps.Store.UpdateStatus(saveCtx, r.customer.ID, consts.CustomerStatusProvisioning, consts.CustomerStatusFailed, stepErr.Error()); err != nil {
		r.log.Error("marking customer failed", "err", err)
	} else {
		r.transition(consts.CustomerStatusFailed)
	}
	return stepErr
}
