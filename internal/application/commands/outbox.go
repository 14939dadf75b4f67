package commands

import (
	"context"

	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/hub-provisioner/pkg/db"
	shared "github.com/Builder-Lawyers/hub-provisioner/pkg/interfaces"
)

// OutboxPublisher hands events to the scheduler through control.outbox.
type OutboxPublisher struct {
	uowFactory *dbs.UOWFactory
}

func NewOutboxPublisher(uowFactory *dbs.UOWFactory) *OutboxPublisher {
	return &OutboxPublisher{uowFactory: uowFactory}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event shared.Event) (err error) {
	uow := p.uowFactory.GetUoW()
	tx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Finalize(ctx, &err)

	return repo.NewEventRepo(tx).InsertEvent(ctx, event)
}
