package repo

// Store is the customer store the orchestrator writes through. Every call runs
// in its own statement so progress survives a crash mid-run.
type Store struct {
	*CustomerRepo
	*StepRepo
}

func NewStore(tx DBTX) *Store {
	return &Store{
		CustomerRepo: NewCustomerRepo(tx),
		StepRepo:     NewStepRepo(tx),
	}
}
