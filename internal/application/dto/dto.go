package dto

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type CreateSessionResponse struct {
	URL string `json:"url"`
}

type CustomerStep struct {
	RunID     string    `json:"runID"`
	Step      string    `json:"step"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomerResponse is the operator view of a customer. It never carries secrets.
type CustomerResponse struct {
	ID                string         `json:"id"`
	PaymentCustomerID string         `json:"paymentCustomerID"`
	SubscriptionID    string         `json:"subscriptionID"`
	Email             string         `json:"email"`
	Slug              string         `json:"slug"`
	URL               string         `json:"url"`
	DatabaseName      string         `json:"databaseName"`
	Status            string         `json:"status"`
	TargetGroupARN    string         `json:"targetGroupArn,omitempty"`
	ListenerRuleARN   string         `json:"listenerRuleArn,omitempty"`
	LastError         string         `json:"lastError,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	Steps             []CustomerStep `json:"steps"`
	Manifests         []string       `json:"manifests,omitempty"`
}
