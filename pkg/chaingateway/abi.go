package chaingateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// protocolABI is the interface every registered contract implements:
// the view functions a ChainGateway needs to discover proving artifacts
// and batch state, the two named events, and the writable settlement
// call. It is the fallback copy: the {address}.abi artifact a Listener
// downloads into the ABI directory is the file LocalABIDirectory reads,
// so once setup has staged it, that file is used instead.
const protocolABI = `[
  {"type":"function","name":"getProvingKeyPath","inputs":[],"outputs":[{"type":"string"}],"stateMutability":"view"},
  {"type":"function","name":"getCodePath","inputs":[],"outputs":[{"type":"string"}],"stateMutability":"view"},
  {"type":"function","name":"getAbiPath","inputs":[],"outputs":[{"type":"string"}],"stateMutability":"view"},
  {"type":"function","name":"getVariablesPath","inputs":[],"outputs":[{"type":"string"}],"stateMutability":"view"},
  {"type":"function","name":"getProvingKeySha2","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"getCodeSha2","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"getAbiSha2","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"getVariablesSha2","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"isOpenFinished","inputs":[],"outputs":[{"type":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"getInputAndCommitment","inputs":[],"outputs":[{"type":"uint256[]"}],"stateMutability":"view"},
  {"type":"function","name":"getSingleExecutionCommitmentSize","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"verifyAndSettle","inputs":[
    {"name":"execution_id","type":"uint256"},
    {"name":"A","type":"uint256[]"},
    {"name":"A_p","type":"uint256[]"},
    {"name":"B","type":"uint256[2][]"},
    {"name":"B_p","type":"uint256[]"},
    {"name":"C","type":"uint256[]"},
    {"name":"C_p","type":"uint256[]"},
    {"name":"H","type":"uint256[]"},
    {"name":"K","type":"uint256[]"},
    {"name":"inputs","type":"uint256[]"}
  ],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"event","name":"CommitmentOpen","inputs":[{"name":"commitments","type":"uint256[]","indexed":false}],"anonymous":false},
  {"type":"event","name":"VerifyAndSettle","inputs":[{"name":"execution_id","type":"uint256","indexed":false},{"name":"success","type":"bool","indexed":false}],"anonymous":false}
]`

// LocalABIDirectory serves the protocol ABI from a local directory of
// per-contract ABI files, {dir}/{address}.abi, rather than hardcoding a
// single ABI for every contract. Falls back to the embedded protocol
// ABI when no per-contract file exists, so a freshly registered
// contract works without an operator pre-seeding a file for it.
type LocalABIDirectory struct {
	Dir string
}

// ABIFor implements ABISource.
func (l LocalABIDirectory) ABIFor(_ context.Context, address string) (string, error) {
	path := filepath.Join(l.Dir, address+".abi")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return protocolABI, nil
		}
		return "", fmt.Errorf("chaingateway: read local abi %s: %w", path, err)
	}
	return string(data), nil
}

// RemoteABISource is the on-chain-served ABI fetch variant: it would
// resolve a contract's calling ABI via a chain-published pointer rather
// than a local file. Left as an open extension point; no contract in
// this deployment's registry needs anything but the fixed protocol ABI
// or a locally staged override.
type RemoteABISource struct{}

// ABIFor implements ABISource.
func (RemoteABISource) ABIFor(context.Context, string) (string, error) {
	return "", ErrNotImplemented
}
