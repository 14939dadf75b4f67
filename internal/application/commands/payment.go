package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	shared "github.com/Builder-Lawyers/hub-provisioner/pkg/interfaces"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	subscriptionDeletedReason = "subscription deleted"
)

type Publisher interface {
	Publish(ctx context.Context, event shared.Event) error
}

type PaymentConfig struct {
	apiKey     string
	webhookKey string
	priceID    string
	baseURL    string
}

func NewPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		apiKey:     env.GetEnv("STRIPE_KEY", ""),
		webhookKey: env.GetEnv("STRIPE_WEBHOOK", ""),
		priceID:    env.GetEnv("STRIPE_PRICE_ID", ""),
		baseURL:    env.GetEnv("BASE_URL", "https://crimata.com"),
	}
}

type Payment struct {
	cfg        *PaymentConfig
	publisher  Publisher
	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewPayment(cfg *PaymentConfig, publisher Publisher) *Payment {
	stripe.Key = cfg.apiKey
	stripe.SetHTTPClient(&http.Client{Timeout: 10 * time.Second})
	return &Payment{
		cfg:        cfg,
		publisher:  publisher,
		newSession: session.New,
	}
}

// CreateSession opens a hosted subscription checkout and returns its URL.
func (c *Payment) CreateSession(_ context.Context) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.baseURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.cfg.baseURL + "/"),
	}

	s, err := c.newSession(params)
	if err != nil {
		return "", errs.BadRequestError{Err: fmt.Errorf("error creating session: %w", err)}
	}
	slog.Info("checkout session created", "session", s.ID)
	return s.URL, nil
}

// Webhook verifies a payment provider callback and queues the matching
// workflow. Event types other than checkout completion and subscription
// deletion are acknowledged and dropped.
func (c *Payment) Webhook(ctx context.Context, req []byte, stripeHeader string) error {
	event, err := webhook.ConstructEventWithOptions(req, stripeHeader, c.cfg.webhookKey, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return errs.BadRequestError{Err: fmt.Errorf("invalid webhook: %w", err)}
	}

	slog.Info("Handling event", "type", event.Type, "id", event.ID)

	switch event.Type {
	case eventCheckoutCompleted:
		return c.handleCheckoutCompleted(ctx, event)
	case eventSubscriptionDeleted:
		return c.handleSubscriptionDeleted(ctx, event)
	default:
		slog.Info("ignoring event", "type", event.Type)
		return nil
	}
}

func (c *Payment) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return errs.BadRequestError{Err: fmt.Errorf("error parsing checkout session, %w", err)}
	}

	provision := events.ProvisionCustomer{CreatedAt: time.Now().UTC()}
	if s.Customer != nil {
		provision.PaymentCustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		provision.SubscriptionID = s.Subscription.ID
	}
	if s.CustomerDetails != nil {
		provision.Email = s.CustomerDetails.Email
	}
	if provision.PaymentCustomerID == "" || provision.SubscriptionID == "" || provision.Email == "" {
		return errs.BadRequestError{Err: errors.New("checkout session is missing customer, subscription or email")}
	}

	if err := c.publisher.Publish(ctx, provision); err != nil {
		return fmt.Errorf("queueing provision, %w", err)
	}
	slog.Info("provision queued", "paymentCustomerID", provision.PaymentCustomerID, "subscriptionID", provision.SubscriptionID)
	return nil
}

func (c *Payment) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return errs.BadRequestError{Err: fmt.Errorf("error parsing subscription, %w", err)}
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return errs.BadRequestError{Err: errors.New("subscription is missing customer")}
	}

	deprovision := events.DeprovisionCustomer{
		PaymentCustomerID: sub.Customer.ID,
		Reason:            subscriptionDeletedReason,
		CreatedAt:         time.Now().UTC(),
	}
	if err := c.publisher.Publish(ctx, deprovision); err != nil {
		return fmt.Errorf("queueing deprovision, %w", err)
	}
	slog.Info("deprovision queued", "paymentCustomerID", deprovision.PaymentCustomerID, "subscriptionID", sub.ID)
	return nil
}
