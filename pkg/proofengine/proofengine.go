// Package proofengine adapts the external zero-knowledge proving
// toolchain to the three operations a Listener/Worker pipeline needs:
// compile a contract's circuit once at setup, compute a witness from a
// commitment batch, and generate the resulting proof. The toolchain
// itself is an external binary (excluded collaborator); this package
// only shells out to it and parses its file outputs.
package proofengine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Proof is the zk-SNARK proof object plus the ordered public inputs
// derived from witness outputs, ready for submission to verifyAndSettle.
type Proof struct {
	A      []*big.Int
	Ap     []*big.Int
	B      [][2]*big.Int
	Bp     []*big.Int
	C      []*big.Int
	Cp     []*big.Int
	H      []*big.Int
	K      []*big.Int
	Inputs []*big.Int
}

// Engine is the capability a Worker depends on: compile once per
// contract, then compute-witness/generate-proof once per execution.
// The default implementation shells out to an external binary; tests
// substitute an in-memory fake.
type Engine interface {
	// Prepare compiles codePath into outPath, for staging in
	// {working}/compiled_code/{addr}_out during Listener setup.
	Prepare(ctx context.Context, codePath, outPath string) error
	// ComputeWitness invokes compute-witness inside workDir with the
	// argument string from commitment.BuildWitnessArgs. Missing witness
	// file after the call is reported as an error.
	ComputeWitness(ctx context.Context, workDir, args string) error
	// GenerateProof invokes generate-proof inside workDir, then reads
	// proof.json and witness from that directory.
	GenerateProof(ctx context.Context, workDir string) (Proof, error)
}

// Exec is the default Engine: it shells out to the toolchain binary.
type Exec struct {
	BinaryPath string
}

// NewExec returns an Exec engine invoking binaryPath for every stage.
func NewExec(binaryPath string) *Exec {
	return &Exec{BinaryPath: binaryPath}
}

func (e *Exec) Prepare(ctx context.Context, codePath, outPath string) error {
	cmd := exec.CommandContext(ctx, e.BinaryPath, "compile", codePath, outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("proofengine: compile %s: %w: %s", codePath, err, out)
	}
	return nil
}

func (e *Exec) ComputeWitness(ctx context.Context, workDir, args string) error {
	cmdArgs := append([]string{"compute-witness"}, strings.Fields(args)...)
	cmd := exec.CommandContext(ctx, e.BinaryPath, cmdArgs...)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("proofengine: compute-witness: %w: %s", err, out)
	}
	if _, err := os.Stat(filepath.Join(workDir, "witness")); err != nil {
		return fmt.Errorf("proofengine: compute-witness produced no witness file: %w", err)
	}
	return nil
}

func (e *Exec) GenerateProof(ctx context.Context, workDir string) (Proof, error) {
	cmd := exec.CommandContext(ctx, e.BinaryPath, "generate-proof")
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return Proof{}, fmt.Errorf("proofengine: generate-proof: %w: %s", err, out)
	}
	return ReadProofArtifacts(workDir)
}

// ReadProofArtifacts parses proof.json and witness from dir into a
// Proof. Exported so tests and the default Exec engine share one
// parsing path.
func ReadProofArtifacts(dir string) (Proof, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "proof.json"))
	if err != nil {
		return Proof{}, fmt.Errorf("proofengine: read proof.json: %w", err)
	}

	var wire struct {
		Proof struct {
			A   []string   `json:"A"`
			Ap  []string   `json:"A_p"`
			B   [][]string `json:"B"`
			Bp  []string   `json:"B_p"`
			C   []string   `json:"C"`
			Cp  []string   `json:"C_p"`
			H   []string   `json:"H"`
			K   []string   `json:"K"`
		} `json:"proof"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Proof{}, fmt.Errorf("proofengine: malformed proof.json: %w", err)
	}

	a, err := parseIntStrings(wire.Proof.A)
	if err != nil {
		return Proof{}, err
	}
	ap, err := parseIntStrings(wire.Proof.Ap)
	if err != nil {
		return Proof{}, err
	}
	bp, err := parseIntStrings(wire.Proof.Bp)
	if err != nil {
		return Proof{}, err
	}
	c, err := parseIntStrings(wire.Proof.C)
	if err != nil {
		return Proof{}, err
	}
	cp, err := parseIntStrings(wire.Proof.Cp)
	if err != nil {
		return Proof{}, err
	}
	h, err := parseIntStrings(wire.Proof.H)
	if err != nil {
		return Proof{}, err
	}
	k, err := parseIntStrings(wire.Proof.K)
	if err != nil {
		return Proof{}, err
	}

	b := make([][2]*big.Int, len(wire.Proof.B))
	for i, pair := range wire.Proof.B {
		if len(pair) != 2 {
			return Proof{}, fmt.Errorf("proofengine: proof.json B[%d] has %d elements, want 2", i, len(pair))
		}
		parsed, err := parseIntStrings(pair)
		if err != nil {
			return Proof{}, err
		}
		b[i] = [2]*big.Int{parsed[0], parsed[1]}
	}

	outputs, err := readWitnessOutputs(filepath.Join(dir, "witness"))
	if err != nil {
		return Proof{}, err
	}

	return Proof{A: a, Ap: ap, B: b, Bp: bp, C: c, Cp: cp, H: h, K: k, Inputs: outputs}, nil
}

func parseIntStrings(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, s := range values {
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
		if !ok {
			return nil, fmt.Errorf("proofengine: cannot parse integer %q", s)
		}
		out[i] = n
	}
	return out, nil
}

// readWitnessOutputs collects all "~out_<k>" lines from the witness
// file as ordered public inputs, keyed by their numeric suffix k.
func readWitnessOutputs(path string) ([]*big.Int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proofengine: open witness: %w", err)
	}
	defer f.Close()

	outputs := map[int]*big.Int{}
	maxK := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "~out_") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		var k int
		if _, err := fmt.Sscanf(fields[0], "~out_%d", &k); err != nil {
			continue
		}
		n, ok := new(big.Int).SetString(fields[1], 0)
		if !ok {
			continue
		}
		outputs[k] = n
		if k > maxK {
			maxK = k
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proofengine: scan witness: %w", err)
	}

	ordered := make([]*big.Int, maxK+1)
	for k, v := range outputs {
		ordered[k] = v
	}
	return ordered, nil
}

var _ Engine = (*Exec)(nil)
