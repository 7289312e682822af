// Package events defines the two message shapes carried on the
// Orchestrator's MPSC channels: Event (Listener -> Orchestrator) and
// Result (Worker -> Orchestrator). Kept dependency-free of
// pkg/orchestrator, pkg/listener and pkg/worker so all three can import
// it without a cycle.
package events

import "math/big"

// SetupStatus is the one-time message a Listener's setup phase emits.
type SetupStatus string

const (
	SetupSucceeded SetupStatus = "SETUP_SUCCEEDED"
	SetupFailed    SetupStatus = "SETUP_FAILED"
)

// Event is a message on the event channel. Exactly one of the two
// variants applies: a setup-status message (HasStatus true) or a
// commitment batch (Commitments non-nil).
type Event struct {
	Address string

	HasStatus bool
	Status    SetupStatus
	DebugMsg  string

	Commitments []*big.Int
}

// StatusEvent builds a setup-status event.
func StatusEvent(address string, status SetupStatus, debugMsg string) Event {
	return Event{Address: address, HasStatus: true, Status: status, DebugMsg: debugMsg}
}

// CommitmentEvent builds a commitment-batch event.
func CommitmentEvent(address string, commitments []*big.Int) Event {
	return Event{Address: address, Commitments: commitments}
}

// ExecutionResult is the outcome tag a Worker's pipeline terminates
// with.
type ExecutionResult string

const (
	Success             ExecutionResult = "SUCCESS"
	Fail                ExecutionResult = "FAIL"
	FailedToPrepare     ExecutionResult = "FAILED_TO_PREPARE"
	FailedToGenerateProof ExecutionResult = "FAILED_TO_GENERATE_PROOF"
	FailedToSubmitProof ExecutionResult = "FAILED_TO_SUBMIT_PROOF"
	FailedToDecrypt     ExecutionResult = "FAILED_TO_DECRYPT"
	MissExecutionInfo   ExecutionResult = "MISS_EXECUTION_INFO"
	InvalidCommitments  ExecutionResult = "INVALID_COMMITMENTS"
	HashNotMatch        ExecutionResult = "HASH_NOT_MATCH"
)

// IsSuccess reports whether r represents a successful execution.
func (r ExecutionResult) IsSuccess() bool { return r == Success }

// Result is a message on the result channel.
type Result struct {
	Address     string
	ExecutionID uint64
	Result      ExecutionResult
	DebugMsg    string
}
