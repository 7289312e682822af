// Package status defines the per-contract lifecycle tag and the
// read-only projection external observers see (StatusView). The
// Orchestrator is the sole writer of this state; this package only
// carries its shape and transition rules.
package status

// Tag is the lifecycle state of a registered contract.
type Tag string

const (
	Registering       Tag = "REGISTERING"
	FailedToRegister  Tag = "FAILED_TO_REGISTER"
	Listening         Tag = "LISTENING"
	Executing         Tag = "EXECUTING"
	Finished          Tag = "FINISHED"
	Unregistering     Tag = "UNREGISTERING"
	Unregistered      Tag = "UNREGISTERED"
)

// TaskStatus is one contract's lifecycle snapshot.
type TaskStatus struct {
	Address        string
	Status         Tag
	FinishedTask   int
	SuccessfulTask int
	Progress       float64
	FailedTasks    map[uint64]string
	Info           string

	// executionCount and completedResults back Progress; kept alongside
	// so the Orchestrator doesn't need a second bookkeeping struct.
	executionCount   int
	completedResults int
}

// NewRegistering returns the initial status for a freshly registered
// address.
func NewRegistering(address string) TaskStatus {
	return TaskStatus{
		Address:     address,
		Status:      Registering,
		FailedTasks: map[uint64]string{},
	}
}

// WithFailedToRegister transitions REGISTERING -> FAILED_TO_REGISTER.
func (s TaskStatus) WithFailedToRegister(debugMsg string) TaskStatus {
	s.Status = FailedToRegister
	s.Info = debugMsg
	return s
}

// WithListening transitions REGISTERING -> LISTENING, or re-enters
// LISTENING after a batch FINISHED while the Listener is still live.
func (s TaskStatus) WithListening() TaskStatus {
	s.Status = Listening
	s.Info = ""
	return s
}

// WithBatchStarted transitions LISTENING -> EXECUTING for a newly
// dispatched batch of n executions.
func (s TaskStatus) WithBatchStarted(n int) TaskStatus {
	s.Status = Executing
	s.executionCount = n
	s.completedResults = 0
	s.FailedTasks = map[uint64]string{}
	s.Info = ""
	s.recomputeProgress()
	return s
}

// WithResult records one execution's completion, refreshing progress
// and the failed-tasks view. ok is false when the result kind was not
// SUCCESS; debugMsg is "<result_kind> (debug_msg)" in that case.
func (s TaskStatus) WithResult(executionID uint64, ok bool, debugMsg string) TaskStatus {
	s.completedResults++
	if !ok {
		if s.FailedTasks == nil {
			s.FailedTasks = map[uint64]string{}
		}
		s.FailedTasks[executionID] = debugMsg
	}
	s.recomputeProgress()
	return s
}

// BatchComplete reports whether every dispatched execution in the
// current batch has reported a result.
func (s TaskStatus) BatchComplete() bool {
	return s.executionCount > 0 && s.completedResults == s.executionCount
}

// WithFinished transitions EXECUTING -> FINISHED and resets per-batch
// counters. listenerLive controls whether the contract immediately
// re-enters LISTENING. SuccessfulTask counts only a batch that dispatched
// executions and recorded no failure; a batch that never dispatched
// (invalid length, unknown size) is finished but not successful.
func (s TaskStatus) WithFinished(listenerLive bool) TaskStatus {
	s.FinishedTask++
	if s.executionCount > 0 && len(s.FailedTasks) == 0 {
		s.SuccessfulTask++
	}
	s.Status = Finished
	s.executionCount = 0
	s.completedResults = 0
	s.FailedTasks = map[uint64]string{}
	if listenerLive {
		s.Status = Listening
	}
	return s
}

// WithUnregistering transitions any status -> UNREGISTERING.
func (s TaskStatus) WithUnregistering() TaskStatus {
	s.Status = Unregistering
	return s
}

// WithUnregistered transitions UNREGISTERING -> UNREGISTERED.
func (s TaskStatus) WithUnregistered() TaskStatus {
	s.Status = Unregistered
	return s
}

func (s *TaskStatus) recomputeProgress() {
	if s.executionCount == 0 {
		s.Progress = 0
		return
	}
	s.Progress = float64(s.completedResults) / float64(s.executionCount)
}

// View is a read-only projection over the status map, implemented by
// the Orchestrator.
type View interface {
	GetAllTaskStatus() map[string]TaskStatus
}
