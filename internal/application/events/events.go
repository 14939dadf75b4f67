package events

import "time"

type ProvisionCustomer struct {
	PaymentCustomerID string    `json:"paymentCustomerID"`
	SubscriptionID    string    `json:"subscriptionID"`
	Email             string    `json:"email"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (e ProvisionCustomer) GetType() string {
	return "ProvisionCustomer"
}

type DeprovisionCustomer struct {
	PaymentCustomerID string    `json:"paymentCustomerID"`
	Reason            string    `json:"reason"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (e DeprovisionCustomer) GetType() string {
	return "DeprovisionCustomer"
}
