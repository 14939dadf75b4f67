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
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
)

const abandonedProvision = "provision abandoned before completion"

type DeprovisionCustomer struct {
	deps *Deps
}

func NewDeprovisionCustomer(deps *Deps) *DeprovisionCustomer {
	return &DeprovisionCustomer{deps: deps}
}

// Handle cancels the customer and tears its deployment down. Every teardown
// step runs even when an earlier one fails; the errors come back together.
func (c *DeprovisionCustomer) Handle(ctx context.Context, event events.DeprovisionCustomer) error {
	r := &run{
		Deps:     c.deps,
		id:       ulid.Make().String(),
		workflow: string(appconsts.WorkflowDeprovision),
	}
	r.log = slog.With("workflow", r.workflow, "runID", r.id, "paymentCustomerID", event.PaymentCustomerID)

	outcome, err := c.deprovision(ctx, r, event)
	c.deps.Metrics.ObserveRun(r.workflow, string(outcome))
	return err
}

func (c *DeprovisionCustomer) deprovision(ctx context.Context, r *run, event events.DeprovisionCustomer) (appconsts.RunOutcome, error) {
	customer, err := c.deps.Store.GetByPaymentID(ctx, event.PaymentCustomerID)
	if errors.Is(err, errs.ErrNotFound) {
		r.log.Info("unknown customer, nothing to tear down")
		return appconsts.OutcomeSkipped, nil
	}
	if err != nil {
		return appconsts.OutcomeRetry, errs.RetryableError{Err: err}
	}
	r.customer = customer
	r.log = r.log.With("slug", customer.Slug, "status", customer.Status, "reason", event.Reason)

	switch customer.Status {
	case consts.CustomerStatusProvisioning:
		idle := time.Since(customer.UpdatedAt)
		if idle < c.deps.Cfg.StaleAfter {
			return appconsts.OutcomeRetry, errs.RetryableError{
				Err: fmt.Errorf("customer %s is still provisioning", customer.PaymentCustomerID),
			}
		}
		// the provision run died without settling the status
		r.log.Warn("provision run abandoned, marking failed", "idle", idle)
		if err = c.deps.Store.UpdateStatus(ctx, customer.ID, consts.CustomerStatusProvisioning, consts.CustomerStatusFailed, abandonedProvision); err != nil {
			return appconsts.OutcomeRetry, errs.RetryableError{Err: fmt.Errorf("failing abandoned customer: %w", err)}
		}
		r.transition(consts.CustomerStatusFailed)
	case consts.CustomerStatusActive:
		if err = c.deps.Store.UpdateStatus(ctx, customer.ID, consts.CustomerStatusActive, consts.CustomerStatusCancelled, ""); err != nil {
			return appconsts.OutcomeRetry, errs.RetryableError{Err: fmt.Errorf("cancelling customer: %w", err)}
		}
		r.transition(consts.CustomerStatusCancelled)
		r.log.Info("customer cancelled")
	default:
		// failed and cancelled keep their status; teardown still clears leftovers
		r.log.Info("tearing down without status change")
	}

	var result *multierror.Error
	teardown := []struct {
		step consts.Step
		fn   func(ctx context.Context) error
	}{
		{consts.StepDeleteCompute, func(ctx context.Context) error {
			return c.deps.Compute.DeleteService(ctx, customer.Slug, customer.TargetGroupARN)
		}},
		{consts.StepDropDatabase, func(ctx context.Context) error {
			return c.deps.Database.DropDatabase(ctx, customer.DatabaseName)
		}},
		{consts.StepDeleteDNS, func(ctx context.Context) error {
			return c.deps.DNS.DeleteRecord(ctx, customer.Slug)
		}},
	}
	for _, t := range teardown {
		if err := r.step(ctx, t.step, t.fn); err != nil {
			result = multierror.Append(result, errs.StepError{Step: t.step, Err: err})
		}
	}

	r.archive(ctx)

	if err := result.ErrorOrNil(); err != nil {
		saveCtx, cancel := detached(ctx)
		defer cancel()
		if saveErr := c.deps.Store.SetLastError(saveCtx, customer.ID, err.Error()); saveErr != nil {
			r.log.Error("saving teardown error", "err", saveErr)
		}
		return appconsts.OutcomeFailed, err
	}
	r.log.Info("customer torn down")
	return appconsts.OutcomeSucceeded, nil
}
