package proofengine

import (
	"context"
	"math/big"
)

// Fake is an in-memory Engine stand-in for tests, per the design note
// that the toolchain subprocess boundary should be substitutable
// (§9: "default implementation shells out, but tests substitute an
// in-memory fake").
type Fake struct {
	PrepareErr       error
	ComputeWitnessErr error
	GenerateProofErr error
	Proof            Proof

	PreparedCodePaths []string
	WitnessArgs       []string
}

func (f *Fake) Prepare(_ context.Context, codePath, _ string) error {
	f.PreparedCodePaths = append(f.PreparedCodePaths, codePath)
	return f.PrepareErr
}

func (f *Fake) ComputeWitness(_ context.Context, _ string, args string) error {
	f.WitnessArgs = append(f.WitnessArgs, args)
	return f.ComputeWitnessErr
}

func (f *Fake) GenerateProof(_ context.Context, _ string) (Proof, error) {
	if f.GenerateProofErr != nil {
		return Proof{}, f.GenerateProofErr
	}
	return f.Proof, nil
}

// NewSuccessfulFake returns a Fake configured to succeed at every stage
// with a minimal, well-formed proof.
func NewSuccessfulFake() *Fake {
	one := big.NewInt(1)
	return &Fake{
		Proof: Proof{
			A:      []*big.Int{one, one},
			Ap:     []*big.Int{one, one},
			B:      [][2]*big.Int{{one, one}, {one, one}},
			Bp:     []*big.Int{one, one},
			C:      []*big.Int{one, one},
			Cp:     []*big.Int{one, one},
			H:      []*big.Int{one},
			K:      []*big.Int{one},
			Inputs: []*big.Int{one},
		},
	}
}

var _ Engine = (*Fake)(nil)
