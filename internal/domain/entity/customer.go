package entity

import (
	"fmt"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/google/uuid"
)

// Customer is one tenant. The record outlives the deployment it describes.
type Customer struct {
	ID                uuid.UUID
	PaymentCustomerID string
	SubscriptionID    string
	Email             string
	Slug              string
	DatabaseName      string
	DatabasePassword  string
	AccessPassphrase  string
	Status            consts.CustomerStatus
	TargetGroupARN    string
	ListenerRuleARN   string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewCustomer(paymentCustomerID, subscriptionID, email string) *Customer {
	now := time.Now().UTC()
	return &Customer{
		ID:                uuid.New(),
		PaymentCustomerID: paymentCustomerID,
		SubscriptionID:    subscriptionID,
		Email:             email,
		Status:            consts.CustomerStatusProvisioning,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Transition moves the customer forward, refusing any edge outside the lifecycle.
func (c *Customer) Transition(next consts.CustomerStatus) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("customer %s: illegal status transition %s -> %s", c.PaymentCustomerID, c.Status, next)
	}
	c.Status = next
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *Customer) Host(domain string) string {
	return c.Slug + "." + domain
}

func (c *Customer) URL(domain string) string {
	return "https://" + c.Host(domain)
}
