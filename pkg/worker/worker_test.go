package worker

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/commitment"
	"github.com/certen/exec-orchestrator/pkg/decryptor"
	"github.com/certen/exec-orchestrator/pkg/events"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
)

// buildRawSlice assembles a single-execution, single-tuple (size=1)
// commitment batch from a plaintext commitment/random pair, in the
// on-wire 4+4+1 field-element shape. With the Null decryptor this is
// also the "encrypted" form the pipeline reads off the chain.
func buildRawSlice(t *testing.T, commitmentVal, randomVal int64) []*big.Int {
	t.Helper()
	elems := func(n *big.Int) []*big.Int {
		return []*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0), n}
	}
	hash := commitment.ComputeHash(big.NewInt(commitmentVal), big.NewInt(randomVal))
	raw := append(elems(big.NewInt(commitmentVal)), elems(big.NewInt(randomVal))...)
	raw = append(raw, hash)
	return raw
}

type fakeGateway struct {
	chaingateway.ChainGateway
	invokeErr error
	waitErr   error
	settleOK  bool
}

// SettlementFilter carries an unexported method, so only chaingateway
// itself can produce a concrete value; a nil handle is sufficient here
// since the fake's WaitForVerifyAndSettleEvent never inspects it.
func (g *fakeGateway) InitVerifyAndSettleEventListener(ctx context.Context, address string) (chaingateway.SettlementFilter, error) {
	return nil, nil
}

func (g *fakeGateway) InvokeVerifyAndSettle(ctx context.Context, address string, executionID uint64, proof chaingateway.ProofData) error {
	return g.invokeErr
}

func (g *fakeGateway) WaitForVerifyAndSettleEvent(ctx context.Context, filter chaingateway.SettlementFilter, executionID uint64, onResult func(bool), pollInterval time.Duration) error {
	if g.waitErr != nil {
		return g.waitErr
	}
	onResult(g.settleOK)
	return nil
}

type fakeEngine struct {
	computeWitnessErr error
	generateProofErr  error
	gotArgs           string
}

func (f *fakeEngine) Prepare(ctx context.Context, codePath, outPath string) error { return nil }
func (f *fakeEngine) ComputeWitness(ctx context.Context, workDir, args string) error {
	f.gotArgs = args
	return f.computeWitnessErr
}
func (f *fakeEngine) GenerateProof(ctx context.Context, workDir string) (proofengine.Proof, error) {
	if f.generateProofErr != nil {
		return proofengine.Proof{}, f.generateProofErr
	}
	return proofengine.Proof{Inputs: []*big.Int{big.NewInt(1)}}, nil
}

func writeArtifactFiles(t *testing.T) Artifacts {
	t.Helper()
	dir := t.TempDir()
	a := Artifacts{
		CompiledCodePath: filepath.Join(dir, "out"),
		ProvingKeyPath:   filepath.Join(dir, "pk"),
		VariablesPath:    filepath.Join(dir, "var"),
	}
	for _, p := range []string{a.CompiledCodePath, a.ProvingKeyPath, a.VariablesPath} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile(%s): %v", p, err)
		}
	}
	return a
}

func TestRunInvalidCommitmentsLength(t *testing.T) {
	d := Descriptor{
		Address:     "0xabc",
		ExecutionID: 0,
		Commitments: make([]*big.Int, 17), // not a multiple of size*9
		Size:        2,
		Decryptor:   decryptor.Null{},
		SubmitLock:  &sync.Mutex{},
	}
	for i := range d.Commitments {
		d.Commitments[i] = big.NewInt(0)
	}

	res := Run(context.Background(), d)
	if res.Result != events.InvalidCommitments {
		t.Fatalf("expected INVALID_COMMITMENTS, got %s (%s)", res.Result, res.DebugMsg)
	}
}

func TestRunHashMismatch(t *testing.T) {
	raw := buildRawSlice(t, 4, 1)
	raw[8] = new(big.Int).Xor(raw[8], big.NewInt(1)) // tamper with the published hash

	d := Descriptor{
		Address:     "0xabc",
		ExecutionID: 0,
		Commitments: raw,
		Size:        1,
		Decryptor:   decryptor.Null{},
		SubmitLock:  &sync.Mutex{},
	}
	res := Run(context.Background(), d)
	if res.Result != events.HashNotMatch {
		t.Fatalf("expected HASH_NOT_MATCH, got %s (%s)", res.Result, res.DebugMsg)
	}
}

func TestRunFailedToDecrypt(t *testing.T) {
	raw := buildRawSlice(t, 4, 1)
	d := Descriptor{
		Address:     "0xabc",
		ExecutionID: 0,
		Commitments: raw,
		Size:        1,
		Decryptor:   alwaysFailDecryptor{},
		SubmitLock:  &sync.Mutex{},
	}
	res := Run(context.Background(), d)
	if res.Result != events.FailedToDecrypt {
		t.Fatalf("expected FAILED_TO_DECRYPT, got %s (%s)", res.Result, res.DebugMsg)
	}
}

type alwaysFailDecryptor struct{}

func (alwaysFailDecryptor) Decrypt(*big.Int) (*big.Int, error) {
	return nil, errors.New("boom")
}

func TestRunSkippedEntryBypassesHashCheck(t *testing.T) {
	sentinel := big.NewInt(42)
	raw := []*big.Int{
		big.NewInt(0), big.NewInt(0), big.NewInt(0), sentinel, // encCommitment
		big.NewInt(0), big.NewInt(0), big.NewInt(0), sentinel, // encRandom
		sentinel, // hash
	}
	d := Descriptor{
		Address:     "0xabc",
		ExecutionID: 0,
		Commitments: raw,
		Size:        1,
		WorkingDir:  t.TempDir(),
		Artifacts:   writeArtifactFiles(t),
		Decryptor:   decryptor.Null{},
		ProofEngine: &fakeEngine{},
		Gateway:     &fakeGateway{settleOK: true},
		SubmitLock:  &sync.Mutex{},
	}
	res := Run(context.Background(), d)
	if res.Result != events.Success {
		t.Fatalf("expected SUCCESS for a skipped-only batch, got %s (%s)", res.Result, res.DebugMsg)
	}
}
