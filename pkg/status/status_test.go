package status

import "testing"

func TestBatchLifecycle(t *testing.T) {
	s := NewRegistering("0xabc")
	if s.Status != Registering {
		t.Fatalf("expected REGISTERING, got %s", s.Status)
	}

	s = s.WithListening()
	if s.Status != Listening {
		t.Fatalf("expected LISTENING, got %s", s.Status)
	}

	s = s.WithBatchStarted(2)
	if s.Status != Executing || s.Progress != 0 {
		t.Fatalf("expected EXECUTING with zero progress, got %s / %f", s.Status, s.Progress)
	}

	s = s.WithResult(0, true, "")
	if s.Progress != 0.5 {
		t.Fatalf("expected progress 0.5, got %f", s.Progress)
	}
	if s.BatchComplete() {
		t.Fatalf("batch should not yet be complete")
	}

	s = s.WithResult(1, false, "HASH_NOT_MATCH (mismatch)")
	if !s.BatchComplete() {
		t.Fatalf("batch should be complete after both results")
	}
	if len(s.FailedTasks) != 1 {
		t.Fatalf("expected one failed task, got %d", len(s.FailedTasks))
	}

	s = s.WithFinished(true)
	if s.Status != Listening {
		t.Fatalf("expected re-entry into LISTENING, got %s", s.Status)
	}
	if s.FinishedTask != 1 {
		t.Fatalf("expected finished_task=1, got %d", s.FinishedTask)
	}
	if s.SuccessfulTask != 0 {
		t.Fatalf("expected successful_task=0 (batch had a failure), got %d", s.SuccessfulTask)
	}
}

func TestWithFinishedIncrementsSuccessfulOnCleanBatch(t *testing.T) {
	s := NewRegistering("0xabc").WithListening().WithBatchStarted(1)
	s = s.WithResult(0, true, "")
	s = s.WithFinished(false)

	if s.SuccessfulTask != 1 {
		t.Fatalf("expected successful_task=1, got %d", s.SuccessfulTask)
	}
	if s.Status != Finished {
		t.Fatalf("expected FINISHED when listener is not live, got %s", s.Status)
	}
	if len(s.FailedTasks) != 0 {
		t.Fatalf("expected failed_tasks reset to empty, got %v", s.FailedTasks)
	}
}

func TestInvalidBatchLengthEndsFinishedWithoutDispatch(t *testing.T) {
	// A misconfigured batch (length not a multiple of size*9) never
	// sets an execution count, so BatchComplete is false and the
	// contract should be moved straight to FINISHED with an empty
	// failed_tasks map and successful_task unchanged.
	s := NewRegistering("0xabc").WithListening()
	s = s.WithFinished(true)
	if s.FinishedTask != 1 || s.SuccessfulTask != 0 {
		t.Fatalf("expected finished_task=1, successful_task=0, got %d/%d", s.FinishedTask, s.SuccessfulTask)
	}
}
