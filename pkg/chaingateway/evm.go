package chaingateway

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/certen/exec-orchestrator/pkg/ethereum"
)

// Default gas policy, per the protocol surface (§6): a fixed gas limit,
// and 1 gwei gas price when self-signing.
var (
	DefaultGasLimit = uint64(6_000_000)
	DefaultGasPrice = big.NewInt(1_000_000_000)
)

// EVM is the ChainGateway implementation for EVM-compatible chains. It
// wraps pkg/ethereum's plain RPC client with the protocol ABI and the
// commitment/proof domain's call shapes.
type EVM struct {
	client     *ethereum.Client
	abiSource  ABISource
	privateKey string // empty: InvokeVerifyAndSettle returns an error
}

// NewEVM constructs an EVM gateway. privateKeyHex may be empty, in which
// case the view calls work but InvokeVerifyAndSettle returns an error;
// node default-account signing is not supported.
func NewEVM(client *ethereum.Client, abiSource ABISource, privateKeyHex string) *EVM {
	return &EVM{client: client, abiSource: abiSource, privateKey: privateKeyHex}
}

func toAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(address), nil
}

func (g *EVM) callUint256(ctx context.Context, address, method string) (*big.Int, error) {
	addr, err := toAddress(address)
	if err != nil {
		return nil, err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return nil, err
	}
	out, err := g.client.CallContract(ctx, addr, raw, method)
	if err != nil {
		return nil, classifyCallError(method, err)
	}
	if len(out) != 1 {
		return nil, &BadFunctionCallOutput{Op: method, Err: fmt.Errorf("expected 1 output, got %d", len(out))}
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, &BadFunctionCallOutput{Op: method, Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return v, nil
}

func (g *EVM) callString(ctx context.Context, address, method string) (string, error) {
	addr, err := toAddress(address)
	if err != nil {
		return "", err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return "", err
	}
	out, err := g.client.CallContract(ctx, addr, raw, method)
	if err != nil {
		return "", classifyCallError(method, err)
	}
	if len(out) != 1 {
		return "", &BadFunctionCallOutput{Op: method, Err: fmt.Errorf("expected 1 output, got %d", len(out))}
	}
	v, ok := out[0].(string)
	if !ok {
		return "", &BadFunctionCallOutput{Op: method, Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return v, nil
}

func (g *EVM) GetABIPath(ctx context.Context, address string) (string, error) {
	return g.callString(ctx, address, "getAbiPath")
}

func (g *EVM) GetABISha2(ctx context.Context, address string) (*big.Int, error) {
	return g.callUint256(ctx, address, "getAbiSha2")
}

func (g *EVM) GetCodePath(ctx context.Context, address string) (string, error) {
	return g.callString(ctx, address, "getCodePath")
}

func (g *EVM) GetCodeSha2(ctx context.Context, address string) (*big.Int, error) {
	return g.callUint256(ctx, address, "getCodeSha2")
}

func (g *EVM) GetProvingKeyPath(ctx context.Context, address string) (string, error) {
	return g.callString(ctx, address, "getProvingKeyPath")
}

func (g *EVM) GetProvingKeySha2(ctx context.Context, address string) (*big.Int, error) {
	return g.callUint256(ctx, address, "getProvingKeySha2")
}

func (g *EVM) GetVariablesPath(ctx context.Context, address string) (string, error) {
	return g.callString(ctx, address, "getVariablesPath")
}

func (g *EVM) GetVariablesSha2(ctx context.Context, address string) (*big.Int, error) {
	return g.callUint256(ctx, address, "getVariablesSha2")
}

func (g *EVM) GetSingleExecutionCommitmentSize(ctx context.Context, address string) (uint64, error) {
	n, err := g.callUint256(ctx, address, "getSingleExecutionCommitmentSize")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (g *EVM) IsOpenFinished(ctx context.Context, address string) (bool, error) {
	addr, err := toAddress(address)
	if err != nil {
		return false, err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return false, err
	}
	out, err := g.client.CallContract(ctx, addr, raw, "isOpenFinished")
	if err != nil {
		return false, classifyCallError("isOpenFinished", err)
	}
	if len(out) != 1 {
		return false, &BadFunctionCallOutput{Op: "isOpenFinished", Err: fmt.Errorf("expected 1 output, got %d", len(out))}
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, &BadFunctionCallOutput{Op: "isOpenFinished", Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return v, nil
}

func (g *EVM) GetInputAndCommitment(ctx context.Context, address string) ([]*big.Int, error) {
	addr, err := toAddress(address)
	if err != nil {
		return nil, err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return nil, err
	}
	out, err := g.client.CallContract(ctx, addr, raw, "getInputAndCommitment")
	if err != nil {
		return nil, classifyCallError("getInputAndCommitment", err)
	}
	if len(out) != 1 {
		return nil, &BadFunctionCallOutput{Op: "getInputAndCommitment", Err: fmt.Errorf("expected 1 output, got %d", len(out))}
	}
	v, ok := out[0].([]*big.Int)
	if !ok {
		return nil, &BadFunctionCallOutput{Op: "getInputAndCommitment", Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return v, nil
}

// classifyCallError maps a raw RPC error into the transient-error kind
// when it looks recoverable (connection drop, timeout); anything else
// is returned unwrapped and treated as fatal by the caller.
func classifyCallError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "timeout", "i/o timeout", "eof", "connection reset", "no route to host"} {
		if strings.Contains(msg, marker) {
			return &TransientError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("chaingateway: %s: %w", op, err)
}

// evmSettlementFilter is the EVM gateway's SettlementFilter handle: a
// log filter anchored at a starting block, scoped to one contract.
type evmSettlementFilter struct {
	address    common.Address
	abi        abi.ABI
	rawABI     string
	fromBlock  uint64
}

func (f *evmSettlementFilter) contractAddress() string { return f.address.Hex() }

func (g *EVM) InitVerifyAndSettleEventListener(ctx context.Context, address string) (SettlementFilter, error) {
	addr, err := toAddress(address)
	if err != nil {
		return nil, err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return nil, err
	}
	parsedABI, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("chaingateway: parse abi for %s: %w", address, err)
	}
	latest, err := g.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return nil, classifyCallError("init_verify_and_settle_event_listener", err)
	}
	return &evmSettlementFilter{address: addr, abi: parsedABI, rawABI: raw, fromBlock: latest}, nil
}

func (g *EVM) WaitForVerifyAndSettleEvent(ctx context.Context, filterHandle SettlementFilter, executionID uint64, onResult func(success bool), pollInterval time.Duration) error {
	filter, ok := filterHandle.(*evmSettlementFilter)
	if !ok {
		return fmt.Errorf("chaingateway: filter handle from a different gateway implementation")
	}
	eventABI, ok := filter.abi.Events["VerifyAndSettle"]
	if !ok {
		return fmt.Errorf("chaingateway: abi has no VerifyAndSettle event")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		latest, err := g.client.GetLatestBlockNumber(ctx)
		if err != nil {
			return classifyCallError("wait_for_verify_and_settle_event", err)
		}
		if latest < filter.fromBlock {
			continue
		}

		logs, err := g.client.GetClient().FilterLogs(ctx, goethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(filter.fromBlock),
			ToBlock:   new(big.Int).SetUint64(latest),
			Addresses: []common.Address{filter.address},
			Topics:    [][]common.Hash{{eventABI.ID}},
		})
		if err != nil {
			return classifyCallError("wait_for_verify_and_settle_event", err)
		}
		filter.fromBlock = latest + 1

		for _, l := range logs {
			values, err := eventABI.Inputs.Unpack(l.Data)
			if err != nil {
				continue
			}
			gotID, ok := values[0].(*big.Int)
			if !ok || gotID.Uint64() != executionID {
				continue
			}
			success, ok := values[1].(bool)
			if !ok {
				continue
			}
			onResult(success)
			return nil
		}
	}
}

func (g *EVM) WaitForCommitmentOpen(ctx context.Context, address string, onEvent func(commitments []*big.Int), pollInterval time.Duration) error {
	addr, err := toAddress(address)
	if err != nil {
		return err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return err
	}
	parsedABI, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return fmt.Errorf("chaingateway: parse abi for %s: %w", address, err)
	}
	eventABI, ok := parsedABI.Events["CommitmentOpen"]
	if !ok {
		return fmt.Errorf("chaingateway: abi has no CommitmentOpen event")
	}

	fromBlock, err := g.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return classifyCallError("wait_for_commitment_open", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		latest, err := g.client.GetLatestBlockNumber(ctx)
		if err != nil {
			return classifyCallError("wait_for_commitment_open", err)
		}
		if latest < fromBlock {
			continue
		}

		logs, err := g.client.GetClient().FilterLogs(ctx, goethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(latest),
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{eventABI.ID}},
		})
		if err != nil {
			return classifyCallError("wait_for_commitment_open", err)
		}
		fromBlock = latest + 1

		for _, l := range logs {
			values, err := eventABI.Inputs.Unpack(l.Data)
			if err != nil {
				continue
			}
			commitments, ok := values[0].([]*big.Int)
			if !ok {
				continue
			}
			onEvent(commitments)
		}
	}
}

func (g *EVM) InvokeVerifyAndSettle(ctx context.Context, address string, executionID uint64, proof ProofData) error {
	addr, err := toAddress(address)
	if err != nil {
		return err
	}
	raw, err := g.abiSource.ABIFor(ctx, address)
	if err != nil {
		return err
	}

	bPacked := make([][2]*big.Int, len(proof.B))
	copy(bPacked, proof.B)

	privateKey := g.privateKey
	if privateKey == "" {
		return fmt.Errorf("chaingateway: node default-account signing not supported by this client; configure a private key")
	}

	_, err = g.client.SendContractTransaction(ctx, addr, raw, privateKey, "verifyAndSettle", DefaultGasLimit, DefaultGasPrice,
		new(big.Int).SetUint64(executionID), proof.A, proof.Ap, bPacked, proof.Bp, proof.C, proof.Cp, proof.H, proof.K, proof.Inputs)
	if err != nil {
		return classifyCallError("invoke_verify_and_settle", err)
	}
	return nil
}

var _ ChainGateway = (*EVM)(nil)
