package application

import (
	"context"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
)

type ProvisionHandler interface {
	Handle(ctx context.Context, event events.ProvisionCustomer) error
}

type DeprovisionHandler interface {
	Handle(ctx context.Context, event events.DeprovisionCustomer) error
}

type PaymentHandler interface {
	CreateSession(ctx context.Context) (string, error)
	Webhook(ctx context.Context, req []byte, stripeHeader string) error
}

type CustomerQuery interface {
	Query(ctx context.Context, paymentCustomerID string) (dto.CustomerResponse, error)
}

// Processors consume outbox events.
type Processors struct {
	ProvisionCustomer   ProvisionHandler
	DeprovisionCustomer DeprovisionHandler
}

// Handlers serve the HTTP surface.
type Handlers struct {
	Payment     PaymentHandler
	GetCustomer CustomerQuery
}
