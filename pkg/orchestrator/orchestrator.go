// Package orchestrator owns the registration table, the Listener and
// Worker pools, the event/result channels, and the status map. It is
// the single-threaded dispatcher the rest of the system reports to:
// Listeners push onto the event channel, Workers push onto the result
// channel, and this package is the only writer of TaskStatus.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/certen/exec-orchestrator/pkg/artifactstore"
	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/decryptor"
	"github.com/certen/exec-orchestrator/pkg/events"
	"github.com/certen/exec-orchestrator/pkg/listener"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
	"github.com/certen/exec-orchestrator/pkg/status"
	"github.com/certen/exec-orchestrator/pkg/worker"
)

// Deps are the collaborators shared by every Listener and Worker this
// Orchestrator constructs. One chain gateway, proof engine, artifact
// store and decryptor serve every registered contract.
type Deps struct {
	Gateway         chaingateway.ChainGateway
	ProofEngine     proofengine.Engine
	Artifacts       *artifactstore.Store
	Decryptor       decryptor.Decryptor
	Paths           listener.Paths
	UseExistingData bool
	Probe           listener.ChainProbe
	PollInterval    time.Duration

	// WorkerSpacing is the delay between successive worker starts
	// within one dispatched batch. Defaults to 10s; tests override it
	// to keep runs fast.
	WorkerSpacing time.Duration

	// SettlementRetries and SettlementBackoff override each Worker's
	// await-settlement retry policy (stage 9); zero means use
	// pkg/worker's own defaults.
	SettlementRetries int
	SettlementBackoff time.Duration

	Metrics *status.Metrics
	Logger  *log.Logger
}

type registration struct {
	address     string
	info        map[string]interface{}
	listener    *listener.Listener
	status      status.TaskStatus
	liveWorkers map[uint64]struct{}
	workersWG   sync.WaitGroup
}

// Orchestrator is the main-loop dispatcher described by §4.5/§4.6: a
// single goroutine drains the event and result channels, one second at
// a time when idle, and applies every event- and result-driven
// TaskStatus update. RegisterContract and UnregisterContract set the
// registering/unregistering tags from the caller's goroutine; all
// mutations happen under mu.
type Orchestrator struct {
	deps Deps

	mu            sync.Mutex
	registrations map[string]*registration

	eventCh  chan events.Event
	resultCh chan events.Result

	submitLock sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	logger *log.Logger
}

// New constructs an Orchestrator and starts its dispatcher loop.
func New(deps Deps) *Orchestrator {
	if deps.WorkerSpacing == 0 {
		deps.WorkerSpacing = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.Writer(), "[Orchestrator] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:          deps,
		registrations: make(map[string]*registration),
		eventCh:       make(chan events.Event, 64),
		resultCh:      make(chan events.Result, 64),
		ctx:           ctx,
		cancel:        cancel,
		doneCh:        make(chan struct{}),
		logger:        deps.Logger,
	}
	go o.dispatchLoop()
	return o
}

// RegisterContract registers addr with the given contract-info seed,
// constructs its Listener, and starts it. Rejects duplicates unless
// the prior registration's status is UNREGISTERED.
func (o *Orchestrator) RegisterContract(address string, info map[string]interface{}) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if reg, ok := o.registrations[address]; ok && reg.status.Status != status.Unregistered {
		return false
	}

	info = cloneInfo(info)
	reg := &registration{
		address:     address,
		info:        info,
		status:      status.NewRegistering(address),
		liveWorkers: make(map[uint64]struct{}),
	}
	reg.listener = listener.New(
		address, o.deps.Gateway, o.deps.ProofEngine, o.deps.Artifacts, o.deps.Paths,
		o.deps.UseExistingData, o.deps.Probe, o.deps.PollInterval,
		o.eventCh, o.UpdateContractInfo,
	)
	o.registrations[address] = reg
	reg.listener.Start(o.ctx)
	return true
}

// UnregisterContract stops addr's Listener and waits for every live
// Worker to return, then removes its local artifacts and marks it
// UNREGISTERED. Workers are not signalled to stop: each runs its
// pipeline to completion before the wait ends.
func (o *Orchestrator) UnregisterContract(address string) bool {
	o.mu.Lock()
	reg, ok := o.registrations[address]
	if !ok {
		o.mu.Unlock()
		return false
	}
	reg.status = reg.status.WithUnregistering()
	o.mu.Unlock()

	reg.listener.Stop()
	reg.workersWG.Wait()

	o.unregisterCleanUp(address)
	if o.deps.Metrics != nil {
		o.deps.Metrics.Forget(address)
	}

	o.mu.Lock()
	reg.info = map[string]interface{}{}
	reg.liveWorkers = make(map[uint64]struct{})
	reg.status = reg.status.WithUnregistered()
	o.mu.Unlock()
	return true
}

// unregisterCleanUp deletes the four local artifact files and the
// compiled artifact for address. Missing files are not an error.
func (o *Orchestrator) unregisterCleanUp(address string) {
	paths := []string{
		filepath.Join(o.deps.Paths.ABIDir, address+".abi"),
		filepath.Join(o.deps.Paths.CodeDir, address+".code"),
		filepath.Join(o.deps.Paths.ProvingKeyDir, address+".pk"),
		filepath.Join(o.deps.Paths.VariablesDir, address+".var"),
		o.deps.Paths.CompiledOutPath(address),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			o.logger.Printf("unregister cleanup: remove %s: %v", p, err)
		}
	}
}

// UpdateContractInfo is the Listener callback path: a no-op if address
// is not registered.
func (o *Orchestrator) UpdateContractInfo(address, key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reg, ok := o.registrations[address]
	if !ok {
		return
	}
	reg.info[key] = value
}

// GetAllTaskStatus returns a snapshot of the status map. Each
// TaskStatus's FailedTasks map is cloned so callers can read it after
// the lock is released without racing the dispatcher's in-place writes
// to the live map.
func (o *Orchestrator) GetAllTaskStatus() map[string]status.TaskStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]status.TaskStatus, len(o.registrations))
	for addr, reg := range o.registrations {
		s := reg.status
		if s.FailedTasks != nil {
			cloned := make(map[uint64]string, len(s.FailedTasks))
			for k, v := range s.FailedTasks {
				cloned[k] = v
			}
			s.FailedTasks = cloned
		}
		out[addr] = s
	}
	return out
}

// Stop cooperatively shuts down the dispatcher main loop. Every
// Listener and Worker context derives from the dispatcher's, so they
// are cancelled too; Stop does not wait for them to return.
func (o *Orchestrator) Stop() {
	o.cancel()
	<-o.doneCh
}

func (o *Orchestrator) dispatchLoop() {
	defer close(o.doneCh)
	for {
		select {
		case <-o.ctx.Done():
			return
		case evt := <-o.eventCh:
			o.handleEvent(evt)
		case res := <-o.resultCh:
			o.handleResult(res)
		case <-time.After(time.Second):
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.Observe(o.GetAllTaskStatus())
		}
	}
}

func (o *Orchestrator) handleEvent(evt events.Event) {
	o.mu.Lock()
	reg, ok := o.registrations[evt.Address]
	if !ok {
		o.mu.Unlock()
		return
	}

	if evt.HasStatus {
		switch evt.Status {
		case events.SetupSucceeded:
			reg.status = reg.status.WithListening()
		case events.SetupFailed:
			reg.status = reg.status.WithFailedToRegister(evt.DebugMsg)
		}
		o.mu.Unlock()
		return
	}

	sizeVal, ok := reg.info["single_execution_commitment_size"]
	if !ok {
		reg.status = reg.status.WithFinished(reg.listener.State() == listener.RunningState)
		o.mu.Unlock()
		return
	}
	size, ok := sizeVal.(uint64)
	if !ok || size == 0 || len(evt.Commitments) == 0 || len(evt.Commitments)%(int(size)*9) != 0 {
		reg.status = reg.status.WithFinished(reg.listener.State() == listener.RunningState)
		o.mu.Unlock()
		return
	}
	n := uint64(len(evt.Commitments)) / (size * 9)
	reg.status = reg.status.WithBatchStarted(int(n))
	o.mu.Unlock()

	o.dispatchBatch(evt.Address, evt.Commitments, size, n)
}

// dispatchBatch starts n Workers for address, one per execution,
// staggered by WorkerSpacing to limit proving-toolchain concurrency
// pressure. Runs in its own goroutine so the dispatcher loop stays
// free to drain the result channel while a batch is still starting.
func (o *Orchestrator) dispatchBatch(address string, commitments []*big.Int, size, n uint64) {
	go func() {
		tuple := size * 9
		for i := uint64(0); i < n; i++ {
			if i > 0 {
				select {
				case <-o.ctx.Done():
					return
				case <-time.After(o.deps.WorkerSpacing):
				}
			}
			slice := commitments[i*tuple : (i+1)*tuple]
			o.startWorker(address, i, size, slice)
		}
	}()
}

func (o *Orchestrator) startWorker(address string, executionID, size uint64, commitments []*big.Int) {
	o.mu.Lock()
	reg, ok := o.registrations[address]
	if !ok {
		o.mu.Unlock()
		return
	}
	if _, live := reg.liveWorkers[executionID]; live {
		o.mu.Unlock()
		o.logger.Printf("rejecting re-dispatch of %s execution %d: already live", address, executionID)
		return
	}
	reg.liveWorkers[executionID] = struct{}{}
	reg.workersWG.Add(1)
	o.mu.Unlock()

	desc := worker.Descriptor{
		Address:     address,
		ExecutionID: executionID,
		Commitments: commitments,
		Size:        size,
		WorkingDir:  o.deps.Paths.WorkingDir,
		Artifacts: worker.Artifacts{
			CompiledCodePath: o.deps.Paths.CompiledOutPath(address),
			ProvingKeyPath:   filepath.Join(o.deps.Paths.ProvingKeyDir, address+".pk"),
			VariablesPath:    filepath.Join(o.deps.Paths.VariablesDir, address+".var"),
		},
		Decryptor:         o.deps.Decryptor,
		ProofEngine:       o.deps.ProofEngine,
		Gateway:           o.deps.Gateway,
		SubmitLock:        &o.submitLock,
		SettlementRetries: o.deps.SettlementRetries,
		SettlementBackoff: o.deps.SettlementBackoff,
	}

	go func() {
		res := worker.Run(o.ctx, desc)

		o.mu.Lock()
		delete(reg.liveWorkers, executionID)
		o.mu.Unlock()
		reg.workersWG.Done()

		o.resultCh <- res
	}()
}

func (o *Orchestrator) handleResult(res events.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	reg, ok := o.registrations[res.Address]
	if !ok || reg.status.Status == status.Unregistering || reg.status.Status == status.Unregistered {
		o.logger.Printf("dropping result for unregistered contract %s execution %d", res.Address, res.ExecutionID)
		return
	}

	debugMsg := ""
	if !res.Result.IsSuccess() {
		debugMsg = fmt.Sprintf("%s (%s)", res.Result, res.DebugMsg)
	}
	reg.status = reg.status.WithResult(res.ExecutionID, res.Result.IsSuccess(), debugMsg)

	if reg.status.BatchComplete() {
		reg.status = reg.status.WithFinished(reg.listener.State() == listener.RunningState)
	}
}

func cloneInfo(info map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}
