package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	shared "github.com/Builder-Lawyers/hub-provisioner/pkg/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

var constraintFields = map[string]string{
	"customers_payment_customer_id_key": errs.FieldPaymentCustomerID,
	"customers_subscription_id_key":     errs.FieldSubscriptionID,
	"customers_slug_key":                errs.FieldSlug,
	"customers_database_name_key":       errs.FieldDatabaseName,
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if field, ok := constraintFields[pgErr.ConstraintName]; ok {
			return errs.ConflictError{Field: field, Err: err}
		}
	}
	return err
}

type EventRepo struct {
	tx DBTX
}

func NewEventRepo(tx DBTX) *EventRepo {
	return &EventRepo{tx: tx}
}

func (e *EventRepo) InsertEvent(ctx context.Context, event shared.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("err marshalling event payload, %w", err)
	}
	outbox := db.Outbox{
		Event:     event.GetType(),
		Status:    int(consts.NotProcessed),
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now(),
	}
	_, err = e.tx.Exec(ctx, "INSERT INTO control.outbox (event, status, payload, created_at) VALUES ($1,$2,$3,$4)",
		outbox.Event, outbox.Status, outbox.Payload, outbox.CreatedAt)
	if err != nil {
		return fmt.Errorf("err inserting a new event, %w", err)
	}

	return nil
}
