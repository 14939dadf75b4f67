package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID                uuid.UUID `db:"id"`
	PaymentCustomerID string    `db:"payment_customer_id"`
	SubscriptionID    string    `db:"subscription_id"`
	Email             string    `db:"email"`
	Slug              string    `db:"slug"`
	DatabaseName      string    `db:"database_name"`
	DatabasePassword  string    `db:"database_password"`
	AccessPassphrase  string    `db:"access_passphrase"`
	Status            string    `db:"status"`
	TargetGroupARN    string    `db:"target_group_arn"`
	ListenerRuleARN   string    `db:"listener_rule_arn"`
	LastError         string    `db:"last_error"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type CustomerStep struct {
	ID         int64     `db:"id"`
	CustomerID uuid.UUID `db:"customer_id"`
	RunID      string    `db:"run_id"`
	Step       string    `db:"step"`
	Outcome    string    `db:"outcome"`
	Detail     string    `db:"detail"`
	CreatedAt  time.Time `db:"created_at"`
}

type Outbox struct {
	ID        uint64          `db:"id"`
	Event     string          `db:"event"`
	Status    int             `db:"status"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}
