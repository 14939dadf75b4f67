package processors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/compute"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/metrics"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/secrets"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/storage"
	"github.com/google/uuid"
)

type stepRecord struct {
	runID   string
	step    consts.Step
	outcome consts.StepOutcome
	detail  string
}

// memStore enforces the same unique constraints as control.customers.
type memStore struct {
	mu        sync.Mutex
	customers map[uuid.UUID]entity.Customer
	steps     map[uuid.UUID][]stepRecord
}

func newMemStore() *memStore {
	return &memStore{customers: map[uuid.UUID]entity.Customer{}, steps: map[uuid.UUID][]stepRecord{}}
}

func (s *memStore) GetByPaymentID(_ context.Context, id string) (*entity.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.PaymentCustomerID == id {
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *memStore) SlugsWithBase(_ context.Context, base string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.customers {
		if c.Slug == base || len(c.Slug) > len(base) && c.Slug[:len(base)+1] == base+"-" {
			out = append(out, c.Slug)
		}
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, customer *entity.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		switch {
		case c.PaymentCustomerID == customer.PaymentCustomerID:
			return errs.ConflictError{Field: errs.FieldPaymentCustomerID, Err: errors.New("duplicate")}
		case c.SubscriptionID == customer.SubscriptionID:
			return errs.ConflictError{Field: errs.FieldSubscriptionID, Err: errors.New("duplicate")}
		case c.Slug == customer.Slug:
			return errs.ConflictError{Field: errs.FieldSlug, Err: errors.New("duplicate")}
		case c.DatabaseName == customer.DatabaseName:
			return errs.ConflictError{Field: errs.FieldDatabaseName, Err: errors.New("duplicate")}
		}
	}
	s.customers[customer.ID] = *customer
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to consts.CustomerStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || c.Status != from || !from.CanTransitionTo(to) {
		return fmt.Errorf("customer %s is no longer %s", id, from)
	}
	c.Status, c.LastError, c.UpdatedAt = to, lastError, time.Now().UTC()
	s.customers[id] = c
	return nil
}

func (s *memStore) SetRouting(_ context.Context, id uuid.UUID, tg, rule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.customers[id]
	c.TargetGroupARN, c.ListenerRuleARN = tg, rule
	s.customers[id] = c
	return nil
}

func (s *memStore) SetLastError(_ context.Context, id uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.customers[id]
	c.LastError = lastError
	s.customers[id] = c
	return nil
}

func (s *memStore) RecordStep(_ context.Context, id uuid.UUID, runID string, step consts.Step, outcome consts.StepOutcome, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[id] = append(s.steps[id], stepRecord{runID, step, outcome, detail})
	return nil
}

// touchedAt backdates the last write on a customer.
func (s *memStore) touchedAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.customers[id]
	c.UpdatedAt = at
	s.customers[id] = c
}

// flakyStore fails the next n status writes into failTo. With landed set the
// write is applied before the error comes back, like a reply lost in transit.
type flakyStore struct {
	*memStore
	mu       sync.Mutex
	failTo   consts.CustomerStatus
	failures int
	landed   bool
}

func (s *flakyStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to consts.CustomerStatus, lastError string) error {
	s.mu.Lock()
	fail := to == s.failTo && s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if !fail {
		return s.memStore.UpdateStatus(ctx, id, from, to, lastError)
	}
	if s.landed {
		_ = s.memStore.UpdateStatus(ctx, id, from, to, lastError)
	}
	return errors.New("connection reset")
}

func (s *memStore) get(paymentID string) entity.Customer {
	c, err := s.GetByPaymentID(context.Background(), paymentID)
	if err != nil {
		panic(err)
	}
	return *c
}

func (s *memStore) stepsOf(id uuid.UUID) []stepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stepRecord(nil), s.steps[id]...)
}

// effects fakes every external system and logs calls in order.
type effects struct {
	mu    sync.Mutex
	calls []string

	failOn    map[string]error
	blockOn   map[string]bool
	routing   compute.Routing
	tenants   []compute.Tenant
	mails     []string
	manifests []storage.Manifest
}

func newEffects() *effects {
	return &effects{
		failOn:  map[string]error{},
		blockOn: map[string]bool{},
		routing: compute.Routing{TargetGroupARN: "arn:tg/1", RuleARN: "arn:rule/1"},
	}
}

func (e *effects) call(ctx context.Context, name string) error {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	err, block := e.failOn[name], e.blockOn[name]
	e.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (e *effects) callLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *effects) CreateDatabase(ctx context.Context, _, _ string) error {
	return e.call(ctx, "createDatabase")
}

func (e *effects) DropDatabase(ctx context.Context, _ string) error {
	return e.call(ctx, "dropDatabase")
}

func (e *effects) CreateService(ctx context.Context, t compute.Tenant) (compute.Routing, error) {
	e.mu.Lock()
	e.tenants = append(e.tenants, t)
	e.mu.Unlock()
	if err := e.call(ctx, "createService"); err != nil {
		return compute.Routing{TargetGroupARN: e.routing.TargetGroupARN}, err
	}
	return e.routing, nil
}

func (e *effects) DeleteService(ctx context.Context, _, targetGroupARN string) error {
	return e.call(ctx, "deleteService:"+targetGroupARN)
}

func (e *effects) CreateRecord(ctx context.Context, _ string) error {
	return e.call(ctx, "createRecord")
}

func (e *effects) DeleteRecord(ctx context.Context, _ string) error {
	return e.call(ctx, "deleteRecord")
}

func (e *effects) SendWelcome(ctx context.Context, email, slug, passphrase string) error {
	e.mu.Lock()
	e.mails = append(e.mails, email+" "+slug+" "+passphrase)
	e.mu.Unlock()
	return e.call(ctx, "sendWelcome")
}

func (e *effects) PutManifest(_ context.Context, m storage.Manifest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manifests = append(e.manifests, m)
	return storage.ManifestKey(m), nil
}

type fixedSecrets struct{}

func (fixedSecrets) Generate() (secrets.Credentials, error) {
	return secrets.Credentials{DatabasePassword: "db-pw", SecretKey: "secret-key", Passphrase: "pass-phrase"}, nil
}

func newDeps(store CustomerStore, fx *effects) *Deps {
	return &Deps{
		Cfg: &config.ProvisionConfig{
			Domain:         "crimata.com",
			NamePrefix:     "crimata",
			DatabasePrefix: "crimata_",
			StepTimeout:    time.Second,
			StaleAfter:     time.Minute,
		},
		Store:    store,
		Secrets:  fixedSecrets{},
		Database: fx,
		Compute:  fx,
		DNS:      fx,
		Notifier: fx,
		Archiver: fx,
		Metrics:  metrics.New(),
	}
}
