package db

import (
	"encoding/json"
	"fmt"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/events"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/entity"
)

func MapCustomerModelToEntity(m Customer) *entity.Customer {
	return &entity.Customer{
		ID:                m.ID,
		PaymentCustomerID: m.PaymentCustomerID,
		SubscriptionID:    m.SubscriptionID,
		Email:             m.Email,
		Slug:              m.Slug,
		DatabaseName:      m.DatabaseName,
		DatabasePassword:  m.DatabasePassword,
		AccessPassphrase:  m.AccessPassphrase,
		Status:            consts.CustomerStatus(m.Status),
		TargetGroupARN:    m.TargetGroupARN,
		ListenerRuleARN:   m.ListenerRuleARN,
		LastError:         m.LastError,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func MapCustomerEntityToModel(c *entity.Customer) Customer {
	return Customer{
		ID:                c.ID,
		PaymentCustomerID: c.PaymentCustomerID,
		SubscriptionID:    c.SubscriptionID,
		Email:             c.Email,
		Slug:              c.Slug,
		DatabaseName:      c.DatabaseName,
		DatabasePassword:  c.DatabasePassword,
		AccessPassphrase:  c.AccessPassphrase,
		Status:            string(c.Status),
		TargetGroupARN:    c.TargetGroupARN,
		ListenerRuleARN:   c.ListenerRuleARN,
		LastError:         c.LastError,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func MapOutboxModelToProvisionCustomer(outbox Outbox) (events.ProvisionCustomer, error) {
	var event events.ProvisionCustomer
	if err := json.Unmarshal(outbox.Payload, &event); err != nil {
		return events.ProvisionCustomer{}, fmt.Errorf("error unmarshaling event %d, %w", outbox.ID, err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = outbox.CreatedAt
	}
	return event, nil
}

func MapOutboxModelToDeprovisionCustomer(outbox Outbox) (events.DeprovisionCustomer, error) {
	var event events.DeprovisionCustomer
	if err := json.Unmarshal(outbox.Payload, &event); err != nil {
		return events.DeprovisionCustomer{}, fmt.Errorf("error unmarshaling event %d, %w", outbox.ID, err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = outbox.CreatedAt
	}
	return event, nil
}
