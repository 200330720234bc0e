package deployflow

import (
	"context"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contract is a handle to a deployed contract: its address, interface and
// the client it acts through. Contract is immutable; Bind returns a new handle.
type Contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	client  Client

	deployTx    common.Hash
	deployBlock uint64
}

// NewContract creates a handle for an already deployed contract.
func NewContract(name string, address common.Address, contractABI abi.ABI, client Client) *Contract {
	return &Contract{
		name:    name,
		address: address,
		abi:     contractABI,
		client:  client,
	}
}

// Name returns the artifact name the contract was deployed from.
func (c *Contract) Name() string {
	return c.name
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Client returns the client the handle acts through.
func (c *Contract) Client() Client {
	return c.client
}

// DeployTx returns the hash of the deployment transaction, if known.
func (c *Contract) DeployTx() common.Hash {
	return c.deployTx
}

// DeployBlock returns the block the contract was deployed in, if known.
func (c *Contract) DeployBlock() uint64 {
	return c.deployBlock
}

// Bind returns a handle to the same contract acting through client.
func (c *Contract) Bind(client Client) *Contract {
	clone := *c
	clone.client = client
	return &clone
}

// HasMethod returns true if the contract has a method with the given name.
func (c *Contract) HasMethod(methodName string) bool {
	_, ok := c.abi.Methods[methodName]
	return ok
}

// MethodNames returns all method names in the contract ABI, sorted.
func (c *Contract) MethodNames() []string {
	names := make([]string, 0, len(c.abi.Methods))
	for name := range c.abi.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Contract) pack(methodName string, args []any) ([]byte, error) {
	method, ok := c.abi.Methods[methodName]
	if !ok {
		return nil, &MethodNotFoundError{Contract: c.address, Method: methodName}
	}
	packed, err := packArgs(methodName, method.Inputs, args)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(method.ID)+len(packed))
	data = append(data, method.ID...)
	return append(data, packed...), nil
}

// Submit packs and submits a state-changing call without waiting for it.
// A rejection at submission (including a revert during gas estimation) is
// reported as a *TxError.
func (c *Contract) Submit(ctx context.Context, methodName string, args ...any) (*Pending, error) {
	data, err := c.pack(methodName, args)
	if err != nil {
		return nil, err
	}
	tx, err := c.client.SendTransaction(ctx, &c.address, nil, data)
	if err != nil {
		return nil, &TxError{Contract: c.address, Method: methodName, Err: err}
	}
	return &Pending{contract: c, method: methodName, tx: tx}, nil
}

// Transact submits a state-changing call and waits for it to be confirmed.
func (c *Contract) Transact(ctx context.Context, methodName string, args ...any) (*Result, error) {
	pending, err := c.Submit(ctx, methodName, args...)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Call executes a read-only method and returns its unpacked outputs.
func (c *Contract) Call(ctx context.Context, methodName string, args ...any) ([]any, error) {
	data, err := c.pack(methodName, args)
	if err != nil {
		return nil, err
	}
	out, err := c.client.CallContract(ctx, c.address, data)
	if err != nil {
		return nil, err
	}
	return c.abi.Unpack(methodName, out)
}

// ParseABI parses a JSON ABI string into an abi.ABI.
func ParseABI(abiJSON string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

func deployedContract(art *Artifact, client Client, receipt *types.Receipt) *Contract {
	c := NewContract(art.Name, receipt.ContractAddress, art.ABI, client)
	c.deployTx = receipt.TxHash
	if receipt.BlockNumber != nil {
		c.deployBlock = receipt.BlockNumber.Uint64()
	}
	return c
}
