// Package listener implements the one-per-contract setup-then-watch
// state machine: download and verify the four proving artifacts,
// compile the circuit, then hand off to a pluggable ChainProbe that
// discovers commitment batches and forwards them to the Orchestrator.
package listener

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/certen/exec-orchestrator/pkg/artifactstore"
	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/events"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
)

// State is the Listener's lifecycle tag.
type State int32

const (
	Created State = iota
	SettingUp
	SetupFailed
	RunningState
	Stopped
)

// Paths collects the directories setup artifacts are staged in and read
// from, mirroring the filesystem layout in the protocol surface.
type Paths struct {
	ABIDir        string
	ProvingKeyDir string
	VariablesDir  string
	CodeDir       string
	WorkingDir    string
}

// CompiledOutPath is where the compiled circuit for address is staged,
// both by setup's Prepare call and by every Worker's scratch-directory
// copy.
func (p Paths) CompiledOutPath(address string) string {
	return filepath.Join(p.WorkingDir, "compiled_code", address+"_out")
}

// Listener is the one-per-contract setup-and-watch task.
type Listener struct {
	Address         string
	Gateway         chaingateway.ChainGateway
	ProofEngine     proofengine.Engine
	Artifacts       *artifactstore.Store
	Paths           Paths
	UseExistingData bool
	Probe           ChainProbe
	PollInterval    time.Duration

	EventCh            chan<- events.Event
	UpdateContractInfo func(address, key string, value interface{})

	Logger *log.Logger

	cancel    context.CancelFunc
	state     atomic.Int32
	runningWG chan struct{}
}

// New constructs a Listener. Callers must call Start to begin its setup
// and run phases.
func New(address string, gw chaingateway.ChainGateway, engine proofengine.Engine, store *artifactstore.Store, paths Paths, useExisting bool, probe ChainProbe, pollInterval time.Duration, eventCh chan<- events.Event, updateContractInfo func(address, key string, value interface{})) *Listener {
	if probe == nil {
		probe = EventDrivenProbe{}
	}
	l := &Listener{
		Address:            address,
		Gateway:            gw,
		ProofEngine:        engine,
		Artifacts:          store,
		Paths:              paths,
		UseExistingData:    useExisting,
		Probe:              probe,
		PollInterval:       pollInterval,
		EventCh:            eventCh,
		UpdateContractInfo: updateContractInfo,
		Logger:             log.New(log.Writer(), fmt.Sprintf("[Listener %s] ", address), log.LstdFlags),
		runningWG:          make(chan struct{}),
	}
	l.state.Store(int32(Created))
	return l
}

// State returns the Listener's current lifecycle tag.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Start runs the setup phase and, on success, the run phase, both in a
// background goroutine. It returns immediately; callers observe
// progress via the event channel.
func (l *Listener) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.run(runCtx)
}

// Stop signals the Listener to exit at its next cancellation check
// point and blocks until its task has returned.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.runningWG
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.runningWG)

	l.state.Store(int32(SettingUp))
	if err := l.setup(ctx); err != nil {
		l.state.Store(int32(SetupFailed))
		l.Logger.Printf("setup failed: %v", err)
		l.EventCh <- events.StatusEvent(l.Address, events.SetupFailed, err.Error())
		return
	}

	l.state.Store(int32(RunningState))
	l.EventCh <- events.StatusEvent(l.Address, events.SetupSucceeded, "")

	onBatch := func(commitments []*big.Int) {
		l.EventCh <- events.CommitmentEvent(l.Address, commitments)
	}

	if err := l.Probe.Run(ctx, l.Gateway, l.Address, onBatch, l.PollInterval); err != nil && ctx.Err() == nil {
		l.Logger.Printf("probe exited with error: %v", err)
	}
	l.state.Store(int32(Stopped))
}

// setup runs the four-step setup phase from §4.3: query the batch
// tuple size, download and verify the four artifacts, then compile the
// circuit.
func (l *Listener) setup(ctx context.Context) error {
	size, err := l.Gateway.GetSingleExecutionCommitmentSize(ctx, l.Address)
	if err != nil {
		return fmt.Errorf("query single_execution_commitment_size: %w", err)
	}
	l.UpdateContractInfo(l.Address, "single_execution_commitment_size", size)

	abiPath := filepath.Join(l.Paths.ABIDir, l.Address+".abi")
	codePath := filepath.Join(l.Paths.CodeDir, l.Address+".code")
	pkPath := filepath.Join(l.Paths.ProvingKeyDir, l.Address+".pk")
	varPath := filepath.Join(l.Paths.VariablesDir, l.Address+".var")

	if err := l.fetchArtifact(ctx, abiPath, l.Gateway.GetABIPath, l.Gateway.GetABISha2); err != nil {
		return err
	}
	if err := l.fetchArtifact(ctx, codePath, l.Gateway.GetCodePath, l.Gateway.GetCodeSha2); err != nil {
		return err
	}
	if err := l.fetchArtifact(ctx, pkPath, l.Gateway.GetProvingKeyPath, l.Gateway.GetProvingKeySha2); err != nil {
		return err
	}
	if err := l.fetchArtifact(ctx, varPath, l.Gateway.GetVariablesPath, l.Gateway.GetVariablesSha2); err != nil {
		return err
	}

	outPath := l.Paths.CompiledOutPath(l.Address)
	if err := l.ProofEngine.Prepare(ctx, codePath, outPath); err != nil {
		return fmt.Errorf("compile code artifact: %w", err)
	}
	return nil
}

func (l *Listener) fetchArtifact(ctx context.Context, destPath string, pathFn func(context.Context, string) (string, error), sha2Fn func(context.Context, string) (*big.Int, error)) error {
	url, err := pathFn(ctx, l.Address)
	if err != nil {
		return fmt.Errorf("query artifact path: %w", err)
	}
	sha2, err := sha2Fn(ctx, l.Address)
	if err != nil {
		return fmt.Errorf("query artifact checksum: %w", err)
	}
	if err := l.Artifacts.FetchAndVerify(ctx, url, destPath, sha2, l.UseExistingData); err != nil {
		return fmt.Errorf("fetch %s: %w", destPath, err)
	}
	return nil
}
