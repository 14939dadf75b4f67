package query

import (
	"context"
	"log/slog"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db/repo"
)

type ManifestLister interface {
	ListManifests(ctx context.Context, slug string) ([]string, error)
}

type GetCustomer struct {
	cfg       *config.ProvisionConfig
	store     *repo.Store
	manifests ManifestLister
}

// NewGetCustomer builds the operator query. manifests may be nil.
func NewGetCustomer(cfg *config.ProvisionConfig, store *repo.Store, manifests ManifestLister) *GetCustomer {
	return &GetCustomer{cfg: cfg, store: store, manifests: manifests}
}

// Query returns the customer with its step log. errs.ErrNotFound when unknown.
func (c *GetCustomer) Query(ctx context.Context, paymentCustomerID string) (dto.CustomerResponse, error) {
	customer, err := c.store.GetByPaymentID(ctx, paymentCustomerID)
	if err != nil {
		return dto.CustomerResponse{}, err
	}
	steps, err := c.store.ListSteps(ctx, customer.ID)
	if err != nil {
		return dto.CustomerResponse{}, err
	}

	resp := dto.CustomerResponse{
		ID:                customer.ID.String(),
		PaymentCustomerID: customer.PaymentCustomerID,
		SubscriptionID:    customer.SubscriptionID,
		Email:             customer.Email,
		Slug:              customer.Slug,
		URL:               customer.URL(c.cfg.Domain),
		DatabaseName:      customer.DatabaseName,
		Status:            string(customer.Status),
		TargetGroupARN:    customer.TargetGroupARN,
		ListenerRuleARN:   customer.ListenerRuleARN,
		LastError:         customer.LastError,
		CreatedAt:         customer.CreatedAt,
		UpdatedAt:         customer.UpdatedAt,
		Steps:             make([]dto.CustomerStep, 0, len(steps)),
	}
	for _, s := range steps {
		resp.Steps = append(resp.Steps, dto.CustomerStep{
			RunID:     s.RunID,
			Step:      s.Step,
			Outcome:   s.Outcome,
			Detail:    s.Detail,
			CreatedAt: s.CreatedAt,
		})
	}

	if c.manifests != nil {
		keys, err := c.manifests.ListManifests(ctx, customer.Slug)
		if err != nil {
			slog.Warn("listing manifests", "slug", customer.Slug, "err", err)
		}
		resp.Manifests = keys
	}
	return resp, nil
}
