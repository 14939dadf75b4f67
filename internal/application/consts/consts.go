package consts

type OutboxStatus int

const (
	NotProcessed OutboxStatus = iota
	Processing
	Processed
	InError
)

type Workflow string

const (
	WorkflowProvision   Workflow = "provision"
	WorkflowDeprovision Workflow = "deprovision"
)

type RunOutcome string

const (
	OutcomeSucceeded RunOutcome = "succeeded"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeSkipped   RunOutcome = "skipped"
	OutcomeRetry     RunOutcome = "retry"
)
