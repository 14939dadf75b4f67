package consts

type CustomerStatus string

const (
	CustomerStatusProvisioning CustomerStatus = "provisioning"
	CustomerStatusActive       CustomerStatus = "active"
	CustomerStatusFailed       CustomerStatus = "failed"
	CustomerStatusCancelled    CustomerStatus = "cancelled"
)

// allowed forward edges of the customer lifecycle
var transitions = map[CustomerStatus][]CustomerStatus{
	CustomerStatusProvisioning: {CustomerStatusActive, CustomerStatusFailed},
	CustomerStatusActive:       {CustomerStatusCancelled},
}

func (s CustomerStatus) CanTransitionTo(next CustomerStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s CustomerStatus) IsTerminal() bool {
	return s == CustomerStatusFailed || s == CustomerStatusCancelled
}

type Step string

const (
	StepDatabase       Step = "database"
	StepCompute        Step = "compute"
	StepDNS            Step = "dns"
	StepNotify         Step = "notify"
	StepActivate       Step = "activate"
	StepDeleteCompute  Step = "delete_compute"
	StepDropDatabase   Step = "drop_database"
	StepDeleteDNS      Step = "delete_dns"
	StepArchiveResults Step = "archive"
)

type StepOutcome string

const (
	StepSucceeded StepOutcome = "succeeded"
	StepFailed    StepOutcome = "failed"
)
