package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ interfaces.UoW = (*UOW)(nil)

type UOW struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (u *UOW) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't begin tx, %w", err)
	}
	u.tx = tx
	return u.tx, nil
}

func (u *UOW) GetTx() pgx.Tx {
	return u.tx
}

func (u *UOW) Commit(ctx context.Context) error {
	if u.tx == nil {
		return fmt.Errorf("transaction is not started yet")
	}
	return u.tx.Commit(ctx)
}

func (u *UOW) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return fmt.Errorf("transaction is not started yet")
	}
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Finalize commits when *err is nil and rolls back otherwise.
// Meant to be deferred right after Begin.
func (u *UOW) Finalize(ctx context.Context, err *error) {
	if u.tx == nil {
		return
	}
	if *err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			*err = errors.Join(*err, rbErr)
		}
		return
	}
	if cErr := u.Commit(ctx); cErr != nil {
		*err = fmt.Errorf("error commiting, %w", cErr)
	}
}

type UOWFactory struct {
	Pool *pgxpool.Pool
}

func (u *UOWFactory) GetUoW() *UOW {
	return &UOW{
		pool: u.Pool,
	}
}

func NewUoWFactory(pool *pgxpool.Pool) *UOWFactory {
	return &UOWFactory{
		Pool: pool,
	}
}
