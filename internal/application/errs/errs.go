package errs

import (
	"errors"
	"fmt"

	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
)

var ErrNotFound = errors.New("not found")

type PermissionsError struct {
	Err error
}

func (t PermissionsError) Error() string {
	return fmt.Sprintf("error in permissions: %v", t.Err)
}

func (t PermissionsError) Unwrap() error {
	return t.Err
}

type RetryableError struct {
	Err error
}

func (t RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %v", t.Err)
}

func (t RetryableError) Unwrap() error {
	return t.Err
}

// StepError is a fatal failure of one provisioning step.
type StepError struct {
	Step consts.Step
	Err  error
}

func (t StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", t.Step, t.Err)
}

func (t StepError) Unwrap() error {
	return t.Err
}

// ConflictError reports a unique violation on one customer field.
type ConflictError struct {
	Field string
	Err   error
}

func (t ConflictError) Error() string {
	return fmt.Sprintf("customer %s already taken: %v", t.Field, t.Err)
}

func (t ConflictError) Unwrap() error {
	return t.Err
}

const (
	FieldPaymentCustomerID = "payment_customer_id"
	FieldSubscriptionID    = "subscription_id"
	FieldSlug              = "slug"
	FieldDatabaseName      = "database_name"
)

func IsConflictOn(err error, field string) bool {
	var c ConflictError
	return errors.As(err, &c) && c.Field == field
}

// BadRequestError marks input the caller must fix; retrying will not help.
type BadRequestError struct {
	Err error
}

func (t BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %v", t.Err)
}

func (t BadRequestError) Unwrap() error {
	return t.Err
}
