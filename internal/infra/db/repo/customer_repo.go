package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const customerColumns = `id, payment_customer_id, subscription_id, email, slug, database_name, database_password,
	access_passphrase, status, target_group_arn, listener_rule_arn, last_error, created_at, updated_at`

type CustomerRepo struct {
	tx DBTX
}

func NewCustomerRepo(tx DBTX) *CustomerRepo {
	return &CustomerRepo{tx: tx}
}

func (r *CustomerRepo) GetByPaymentID(ctx context.Context, paymentCustomerID string) (*entity.Customer, error) {
	var m db.Customer
	err := r.tx.QueryRow(ctx, "SELECT "+customerColumns+" FROM control.customers WHERE payment_customer_id = $1",
		paymentCustomerID).Scan(&m.ID, &m.PaymentCustomerID, &m.SubscriptionID, &m.Email, &m.Slug, &m.DatabaseName,
		&m.DatabasePassword, &m.AccessPassphrase, &m.Status, &m.TargetGroupARN, &m.ListenerRuleARN, &m.LastError,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("err getting customer %s, %w", paymentCustomerID, err)
	}
	return db.MapCustomerModelToEntity(m), nil
}

// Create inserts the customer. Unique violations come back as errs.ConflictError.
func (r *CustomerRepo) Create(ctx context.Context, customer *entity.Customer) error {
	m := db.MapCustomerEntityToModel(customer)
	_, err := r.tx.Exec(ctx, "INSERT INTO control.customers ("+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.PaymentCustomerID, m.SubscriptionID, m.Email, m.Slug, m.DatabaseName, m.DatabasePassword,
		m.AccessPassphrase, m.Status, m.TargetGroupARN, m.ListenerRuleARN, m.LastError, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *CustomerRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM control.customers WHERE slug = $1)", slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("err checking slug, %w", err)
	}
	return exists, nil
}

// SlugsWithBase lists the slugs equal to base or shaped like base-<anything>.
func (r *CustomerRepo) SlugsWithBase(ctx context.Context, base string) ([]string, error) {
	rows, err := r.tx.Query(ctx, "SELECT slug FROM control.customers WHERE slug = $1 OR slug LIKE $2", base, base+"-%")
	if err != nil {
		return nil, fmt.Errorf("err listing slugs, %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}

// UpdateStatus is a compare-and-set on status so concurrent runs cannot move a
// customer backwards.
func (r *CustomerRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to consts.CustomerStatus, lastError string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE control.customers SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND status = $5`, to, lastError, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("err updating customer status, %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s is no longer %s", id, from)
	}
	return nil
}

func (r *CustomerRepo) SetRouting(ctx context.Context, id uuid.UUID, targetGroupARN, listenerRuleARN string) error {
	_, err := r.tx.Exec(ctx, `UPDATE control.customers SET target_group_arn = $1, listener_rule_arn = $2, updated_at = $3
		WHERE id = $4`, targetGroupARN, listenerRuleARN, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("err saving routing handles, %w", err)
	}
	return nil
}

// SetLastError records an error without touching status.
func (r *CustomerRepo) SetLastError(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.tx.Exec(ctx, "UPDATE control.customers SET last_error = $1, updated_at = $2 WHERE id = $3",
		lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("err saving last error, %w", err)
	}
	return nil
}
