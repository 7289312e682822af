package listener

import (
	"context"
	"crypto/sha256"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/certen/exec-orchestrator/pkg/artifactstore"
	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/events"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
)

// fakeGateway serves every artifact from one test server and checks
// each against the sha256 of a fixed per-kind payload, so setup's
// fetch/verify pairing is exercised end to end without a real chain.
type fakeGateway struct {
	chaingateway.ChainGateway
	srv     *httptest.Server
	size    uint64
	sizeErr error
	batches [][]*big.Int
}

func digestOf(payload string) *big.Int {
	sum := sha256.Sum256([]byte(payload))
	return new(big.Int).SetBytes(sum[:])
}

func (g *fakeGateway) GetSingleExecutionCommitmentSize(ctx context.Context, address string) (uint64, error) {
	return g.size, g.sizeErr
}
func (g *fakeGateway) GetABIPath(ctx context.Context, address string) (string, error) {
	return g.srv.URL + "/abi", nil
}
func (g *fakeGateway) GetABISha2(ctx context.Context, address string) (*big.Int, error) {
	return digestOf("abi-bytes"), nil
}
func (g *fakeGateway) GetCodePath(ctx context.Context, address string) (string, error) {
	return g.srv.URL + "/code", nil
}
func (g *fakeGateway) GetCodeSha2(ctx context.Context, address string) (*big.Int, error) {
	return digestOf("code-bytes"), nil
}
func (g *fakeGateway) GetProvingKeyPath(ctx context.Context, address string) (string, error) {
	return g.srv.URL + "/pk", nil
}
func (g *fakeGateway) GetProvingKeySha2(ctx context.Context, address string) (*big.Int, error) {
	return digestOf("pk-bytes"), nil
}
func (g *fakeGateway) GetVariablesPath(ctx context.Context, address string) (string, error) {
	return g.srv.URL + "/var", nil
}
func (g *fakeGateway) GetVariablesSha2(ctx context.Context, address string) (*big.Int, error) {
	return digestOf("var-bytes"), nil
}

func (g *fakeGateway) WaitForCommitmentOpen(ctx context.Context, address string, onEvent func([]*big.Int), pollInterval time.Duration) error {
	for _, batch := range g.batches {
		onEvent(batch)
	}
	<-ctx.Done()
	return nil
}

func newFakeArtifactServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/abi":
			w.Write([]byte("abi-bytes"))
		case "/code":
			w.Write([]byte("code-bytes"))
		case "/pk":
			w.Write([]byte("pk-bytes"))
		case "/var":
			w.Write([]byte("var-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
}

// fakeEngine is a minimal proofengine.Engine whose Prepare records that
// it ran and otherwise does nothing; Worker-stage tests live in
// pkg/worker and exercise ComputeWitness/GenerateProof there.
type fakeEngine struct {
	prepareCalled bool
	prepareErr    error
}

func (f *fakeEngine) Prepare(ctx context.Context, codePath, outPath string) error {
	f.prepareCalled = true
	return f.prepareErr
}
func (f *fakeEngine) ComputeWitness(ctx context.Context, workDir, args string) error {
	return nil
}
func (f *fakeEngine) GenerateProof(ctx context.Context, workDir string) (proofengine.Proof, error) {
	return proofengine.Proof{}, nil
}

var _ proofengine.Engine = (*fakeEngine)(nil)

func newTestPaths(t *testing.T) Paths {
	root := t.TempDir()
	paths := Paths{
		ABIDir:        filepath.Join(root, "abi"),
		ProvingKeyDir: filepath.Join(root, "pk"),
		VariablesDir:  filepath.Join(root, "var"),
		CodeDir:       filepath.Join(root, "code"),
		WorkingDir:    root,
	}
	for _, d := range []string{paths.ABIDir, paths.ProvingKeyDir, paths.VariablesDir, paths.CodeDir, filepath.Join(root, "compiled_code")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", d, err)
		}
	}
	return paths
}

func TestSetupFetchesVerifiesAndCompiles(t *testing.T) {
	srv := newFakeArtifactServer()
	defer srv.Close()

	gw := &fakeGateway{srv: srv, size: 7}
	paths := newTestPaths(t)
	engine := &fakeEngine{}

	var infoKey string
	var infoVal interface{}
	l := New("0xabc", gw, engine, artifactstore.New(), paths, false, nil, 0,
		make(chan events.Event, 8),
		func(addr, key string, val interface{}) { infoKey, infoVal = key, val })

	if err := l.setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if infoKey != "single_execution_commitment_size" || infoVal.(uint64) != 7 {
		t.Errorf("expected UpdateContractInfo(size=7), got %s=%v", infoKey, infoVal)
	}
	if !engine.prepareCalled {
		t.Errorf("expected Prepare to be called")
	}
	for _, want := range []string{
		filepath.Join(paths.ABIDir, "0xabc.abi"),
		filepath.Join(paths.CodeDir, "0xabc.code"),
		filepath.Join(paths.ProvingKeyDir, "0xabc.pk"),
		filepath.Join(paths.VariablesDir, "0xabc.var"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Errorf("expected artifact at %s: %v", want, err)
		}
	}
}

func TestSetupFailsOnChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	gw := &fakeGateway{srv: srv, size: 1}
	paths := newTestPaths(t)
	engine := &fakeEngine{}

	l := New("0xabc", gw, engine, artifactstore.New(), paths, false, nil, 0,
		make(chan events.Event, 8), func(string, string, interface{}) {})

	if err := l.setup(context.Background()); err == nil {
		t.Fatalf("expected checksum mismatch to fail setup")
	}
	if engine.prepareCalled {
		t.Errorf("Prepare should not run after a failed artifact fetch")
	}
}

func TestRunEmitsSetupFailedStatusOnBrokenGateway(t *testing.T) {
	gw := &fakeGateway{srv: httptest.NewServer(http.NotFoundHandler()), size: 0, sizeErr: context.DeadlineExceeded}
	defer gw.srv.Close()

	paths := newTestPaths(t)
	ch := make(chan events.Event, 4)
	l := New("0xdead", gw, &fakeEngine{}, artifactstore.New(), paths, false, nil, time.Millisecond,
		ch, func(string, string, interface{}) {})

	l.Start(context.Background())
	evt := <-ch
	if !evt.HasStatus || evt.Status != events.SetupFailed {
		t.Fatalf("expected a SETUP_FAILED status event, got %+v", evt)
	}
	if l.State() != SetupFailed {
		t.Errorf("expected State()==SetupFailed, got %v", l.State())
	}
	l.Stop()
}

func TestRunEmitsCommitmentBatchesFromProbe(t *testing.T) {
	srv := newFakeArtifactServer()
	defer srv.Close()

	batch := []*big.Int{big.NewInt(4), big.NewInt(0)}
	gw := &fakeGateway{srv: srv, size: 2, batches: [][]*big.Int{batch}}
	paths := newTestPaths(t)
	ch := make(chan events.Event, 4)

	l := New("0xabc", gw, &fakeEngine{}, artifactstore.New(), paths, false, EventDrivenProbe{}, time.Millisecond,
		ch, func(string, string, interface{}) {})

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)

	setupEvt := <-ch
	if !setupEvt.HasStatus || setupEvt.Status != events.SetupSucceeded {
		t.Fatalf("expected SETUP_SUCCEEDED first, got %+v", setupEvt)
	}
	batchEvt := <-ch
	if batchEvt.HasStatus || len(batchEvt.Commitments) != 2 {
		t.Fatalf("expected a 2-element commitment batch, got %+v", batchEvt)
	}

	cancel()
	l.Stop()
}
