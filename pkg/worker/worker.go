// Package worker implements the per-execution pipeline: validate the
// raw commitment slice, decrypt it, check its hash against the
// on-chain published digest, drive the proving toolchain, submit the
// resulting proof, and await its on-chain settlement. Exactly one
// typed ExecutionResult is emitted per execution, win or lose; no
// stage panics or returns a bare error to its caller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/commitment"
	"github.com/certen/exec-orchestrator/pkg/decryptor"
	"github.com/certen/exec-orchestrator/pkg/events"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
)

const (
	encryptedInputSize  = 4
	encryptedRandomSize = 4
	hashSize            = 1
	tupleWidth          = encryptedInputSize + encryptedRandomSize + hashSize // 9

	settlementRetries = 3
	settlementBackoff = 5 * time.Second
)

// ErrInvalidCommitments marks a batch slice that fails structural
// validation in stage 1.
var ErrInvalidCommitments = errors.New("worker: invalid commitments slice")

// Artifacts is the compiled-code/proving-key/variables triple staged
// into a Worker's scratch directory. Paths are absolute.
type Artifacts struct {
	CompiledCodePath string
	ProvingKeyPath   string
	VariablesPath    string
}

// Descriptor is everything one Worker needs to run its pipeline.
type Descriptor struct {
	Address         string
	ExecutionID     uint64
	Commitments     []*big.Int // this execution's contiguous slice of the batch
	Size            uint64     // single_execution_commitment_size
	WorkingDir      string     // scratch directories are created under here
	Artifacts       Artifacts
	Decryptor       decryptor.Decryptor
	ProofEngine     proofengine.Engine
	Gateway         chaingateway.ChainGateway
	SubmitLock      *sync.Mutex

	// SettlementRetries and SettlementBackoff override the default
	// retry policy in stage 9 (awaitSettlement); zero means use the
	// package defaults.
	SettlementRetries int
	SettlementBackoff time.Duration
}

// Run executes the 10-stage pipeline and returns exactly one Result.
// It never panics and never returns a bare Go error; every failure
// mode is mapped onto an events.ExecutionResult.
func Run(ctx context.Context, d Descriptor) events.Result {
	result := func(kind events.ExecutionResult, debugMsg string) events.Result {
		return events.Result{Address: d.Address, ExecutionID: d.ExecutionID, Result: kind, DebugMsg: debugMsg}
	}

	encCommitments, encRandoms, hashes, skip, err := splitAndValidate(d.Commitments, d.Size)
	if err != nil {
		return result(events.InvalidCommitments, err.Error())
	}

	commitments, randoms, err := decryptAll(d.Decryptor, encCommitments, encRandoms, skip)
	if err != nil {
		return result(events.FailedToDecrypt, err.Error())
	}

	for i := range commitments {
		if skip[i] {
			continue
		}
		if !commitment.VerifyHash(commitments[i], randoms[i], hashes[i]) {
			return result(events.HashNotMatch, fmt.Sprintf("execution %d: hash mismatch at index %d", d.ExecutionID, i))
		}
	}

	scratchDir := filepath.Join(d.WorkingDir, fmt.Sprintf("%s_%d", d.Address, d.ExecutionID))
	if err := prepareScratch(scratchDir, d.Artifacts); err != nil {
		return result(events.FailedToPrepare, err.Error())
	}
	defer os.RemoveAll(scratchDir)

	args, err := commitment.BuildWitnessArgs(commitments, randoms, hashes)
	if err != nil {
		return result(events.FailedToPrepare, err.Error())
	}
	if err := d.ProofEngine.ComputeWitness(ctx, scratchDir, args); err != nil {
		return result(events.FailedToPrepare, err.Error())
	}

	proof, err := d.ProofEngine.GenerateProof(ctx, scratchDir)
	if err != nil {
		return result(events.FailedToGenerateProof, err.Error())
	}

	filter, err := submitProof(ctx, d, proof)
	if err != nil {
		return result(events.FailedToSubmitProof, err.Error())
	}

	success, err := awaitSettlement(ctx, d, filter)
	if err != nil {
		return result(events.Fail, err.Error())
	}
	if !success {
		return result(events.Fail, "on-chain verify returned false")
	}
	return result(events.Success, "")
}

// splitAndValidate implements stages 1-2: the raw slice must be
// nonzero and a multiple of size*9; it decomposes into size triples of
// (encCommitment, encRandom, hash), each joined from its constituent
// field elements. skip[i] marks a sentinel pass-through entry.
func splitAndValidate(raw []*big.Int, size uint64) (encCommitments, encRandoms, hashes []*big.Int, skip []bool, err error) {
	if size == 0 || len(raw) == 0 || uint64(len(raw))%(size*tupleWidth) != 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: length %d not a multiple of size(%d)*9", ErrInvalidCommitments, len(raw), size)
	}
	n := uint64(len(raw)) / tupleWidth
	if n != size {
		return nil, nil, nil, nil, fmt.Errorf("%w: got %d tuples, want %d", ErrInvalidCommitments, n, size)
	}

	encCommitments = make([]*big.Int, size)
	encRandoms = make([]*big.Int, size)
	hashes = make([]*big.Int, size)
	skip = make([]bool, size)

	for i := uint64(0); i < size; i++ {
		base := raw[i*tupleWidth:]
		encCommitments[i] = joinFieldElements(base[0:encryptedInputSize])
		encRandoms[i] = joinFieldElements(base[encryptedInputSize : encryptedInputSize+encryptedRandomSize])
		hashes[i] = base[encryptedInputSize+encryptedRandomSize]
		skip[i] = encCommitments[i].Cmp(encRandoms[i]) == 0 && encRandoms[i].Cmp(hashes[i]) == 0
	}
	return encCommitments, encRandoms, hashes, skip, nil
}

// joinFieldElements concatenates four 256-bit field elements,
// most-significant first, into a single 1024-bit integer.
func joinFieldElements(elems []*big.Int) *big.Int {
	buf := make([]byte, 0, len(elems)*commitment.FieldBits/8)
	for _, e := range elems {
		buf = append(buf, commitment.Int2ByteStr(e, commitment.FieldBits)...)
	}
	return commitment.ByteStr2Int(buf)
}

// decryptAll implements stage 3: decrypt every non-skipped encrypted
// commitment/random, leaving skipped entries untouched.
func decryptAll(dec decryptor.Decryptor, encCommitments, encRandoms []*big.Int, skip []bool) (commitments, randoms []*big.Int, err error) {
	commitments = make([]*big.Int, len(encCommitments))
	randoms = make([]*big.Int, len(encRandoms))
	for i := range encCommitments {
		if skip[i] {
			commitments[i] = encCommitments[i]
			randoms[i] = encRandoms[i]
			continue
		}
		c, err := dec.Decrypt(encCommitments[i])
		if err != nil {
			return nil, nil, fmt.Errorf("decrypt commitment %d: %w", i, err)
		}
		r, err := dec.Decrypt(encRandoms[i])
		if err != nil {
			return nil, nil, fmt.Errorf("decrypt random %d: %w", i, err)
		}
		commitments[i] = c
		randoms[i] = r
	}
	return commitments, randoms, nil
}

// prepareScratch implements stage 5: create the per-worker scratch
// directory and copy in the three proving artifacts.
func prepareScratch(dir string, a Artifacts) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir scratch dir: %w", err)
	}
	for _, pair := range []struct{ src, name string }{
		{a.CompiledCodePath, "code"},
		{a.ProvingKeyPath, "proving.key"},
		{a.VariablesPath, "variables"},
	} {
		if err := copyFile(pair.src, filepath.Join(dir, pair.name)); err != nil {
			return fmt.Errorf("stage %s: %w", pair.name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// submitProof implements stage 8: the settlement transaction is
// submitted under the Orchestrator-owned submit lock, the event
// filter created first so the settlement event can't be missed.
func submitProof(ctx context.Context, d Descriptor, proof proofengine.Proof) (chaingateway.SettlementFilter, error) {
	d.SubmitLock.Lock()
	defer d.SubmitLock.Unlock()

	filter, err := d.Gateway.InitVerifyAndSettleEventListener(ctx, d.Address)
	if err != nil {
		return nil, fmt.Errorf("init settlement filter: %w", err)
	}

	pd := chaingateway.ProofData{
		A: proof.A, Ap: proof.Ap, B: proof.B, Bp: proof.Bp,
		C: proof.C, Cp: proof.Cp, H: proof.H, K: proof.K, Inputs: proof.Inputs,
	}
	if err := d.Gateway.InvokeVerifyAndSettle(ctx, d.Address, d.ExecutionID, pd); err != nil {
		return nil, fmt.Errorf("invoke verify_and_settle: %w", err)
	}
	return filter, nil
}

// awaitSettlement implements stage 9: poll the settlement filter
// created during submitProof, retrying transient failures (by default
// 3 times with a 5-second backoff, overridable via Descriptor) in
// place of a bounded wait.
func awaitSettlement(ctx context.Context, d Descriptor, filter chaingateway.SettlementFilter) (bool, error) {
	retries := d.SettlementRetries
	if retries == 0 {
		retries = settlementRetries
	}
	backoff := d.SettlementBackoff
	if backoff == 0 {
		backoff = settlementBackoff
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var success bool
		var got bool
		err := d.Gateway.WaitForVerifyAndSettleEvent(ctx, filter, d.ExecutionID, func(ok bool) {
			success = ok
			got = true
		}, time.Second)
		if err == nil && got {
			return success, nil
		}
		if err != nil && !chaingateway.IsTransient(err) {
			return false, err
		}
		lastErr = err
	}
	return false, fmt.Errorf("await settlement: exhausted retries: %w", lastErr)
}
