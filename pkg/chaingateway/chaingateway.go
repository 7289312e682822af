// Package chaingateway abstracts chain I/O behind one polymorphic
// interface: read the protocol view functions published on a registered
// contract, watch its two named events, and submit the settlement
// transaction. The concrete chain client (RPC transport, ABI encoding,
// event filter construction) lives one layer down in pkg/ethereum; this
// package adapts that to the commitment/proof domain.
package chaingateway

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// ErrInvalidAddress is fatal to a Listener's setup phase.
var ErrInvalidAddress = errors.New("chaingateway: invalid contract address")

// ErrNotImplemented marks an open extension point: a ChainGateway or
// ABISource variant described by the design but not built out here.
var ErrNotImplemented = errors.New("chaingateway: not implemented")

// TransientError wraps a recoverable RPC failure (connection reset,
// timeout, node temporarily unavailable). Callers retry on this kind and
// treat anything else as fatal to the current operation.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "chaingateway: transient error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// BadFunctionCallOutput marks a view-call decoding failure encountered
// while a Listener is already running. PollThenExitProbe logs it and
// treats it as non-fatal: it keeps polling.
type BadFunctionCallOutput struct {
	Op  string
	Err error
}

func (e *BadFunctionCallOutput) Error() string {
	return "chaingateway: bad function call output in " + e.Op + ": " + e.Err.Error()
}

func (e *BadFunctionCallOutput) Unwrap() error { return e.Err }

// ProofData is the wire shape submitted to verifyAndSettle. Fields A,
// A_p, C, C_p, H, K are integer arrays; B is a 2-D array (pairing curve
// points); Inputs is the plain integer array derived from witness
// outputs.
type ProofData struct {
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

// SettlementFilter is an opaque handle to an already-created
// VerifyAndSettle event filter. It is created by
// InitVerifyAndSettleEventListener, anchored at "latest" block *before*
// the settlement transaction is submitted, and handed to
// WaitForVerifyAndSettleEvent. Concrete gateways define their own
// underlying type; callers never inspect it.
type SettlementFilter interface {
	contractAddress() string
}

// ChainGateway is the polymorphic chain-I/O surface a Listener and
// Worker depend on. Two concrete implementations are expected to exist
// side by side (see ABISource below for where they diverge); both honor
// this same contract.
type ChainGateway interface {
	// WaitForCommitmentOpen blocks until ctx is done, invoking onEvent
	// for every matched CommitmentOpen event. The proactive
	// poll-then-exit variant is not this method: listener.PollThenExitProbe
	// builds it from IsOpenFinished and GetInputAndCommitment.
	WaitForCommitmentOpen(ctx context.Context, address string, onEvent func(commitments []*big.Int), pollInterval time.Duration) error

	// InitVerifyAndSettleEventListener creates a VerifyAndSettle filter
	// anchored at the current chain head. Must be called before
	// InvokeVerifyAndSettle to avoid missing the event it waits for.
	InitVerifyAndSettleEventListener(ctx context.Context, address string) (SettlementFilter, error)

	// WaitForVerifyAndSettleEvent blocks polling filter, filtering by
	// executionID, and invokes onResult exactly once with the event's
	// success flag before returning.
	WaitForVerifyAndSettleEvent(ctx context.Context, filter SettlementFilter, executionID uint64, onResult func(success bool), pollInterval time.Duration) error

	// InvokeVerifyAndSettle submits the settlement transaction and
	// waits for its receipt. The EVM gateway signs locally with the
	// configured private key and returns an error when none is
	// configured; it does not send through the node's default account.
	InvokeVerifyAndSettle(ctx context.Context, address string, executionID uint64, proof ProofData) error

	GetABIPath(ctx context.Context, address string) (string, error)
	GetABISha2(ctx context.Context, address string) (*big.Int, error)
	GetCodePath(ctx context.Context, address string) (string, error)
	GetCodeSha2(ctx context.Context, address string) (*big.Int, error)
	GetProvingKeyPath(ctx context.Context, address string) (string, error)
	GetProvingKeySha2(ctx context.Context, address string) (*big.Int, error)
	GetVariablesPath(ctx context.Context, address string) (string, error)
	GetVariablesSha2(ctx context.Context, address string) (*big.Int, error)

	GetSingleExecutionCommitmentSize(ctx context.Context, address string) (uint64, error)
	IsOpenFinished(ctx context.Context, address string) (bool, error)
	GetInputAndCommitment(ctx context.Context, address string) ([]*big.Int, error)
}

// ABISource resolves the protocol-level ABI used to call the above view
// functions on a given contract address. Two concrete variants are
// expected (design note, §9): one serving ABIs fetched from the chain
// itself (RemoteABISource, an open extension point), one reading a
// local directory of ABI files (LocalABIDirectory).
type ABISource interface {
	ABIFor(ctx context.Context, address string) (string, error)
}
