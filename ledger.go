package deployflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// transferGas is the intrinsic gas of a plain value transfer.
const transferGas = 21000

// Client is a ledger client bound to one signing identity.
type Client interface {
	// Address returns the signing identity's address.
	Address() common.Address

	// SendTransaction signs and submits a transaction. A nil recipient
	// creates a contract from data. It returns once the node has accepted
	// the transaction, not once it is included.
	SendTransaction(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error)

	// CallContract executes a read-only call against the latest state.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// WaitMined blocks until tx is included and returns its receipt.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Network is a connection to one RPC endpoint from which signing clients are derived.
type Network interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NewClient(id *Identity, chainID *big.Int) (Client, error)

	// Fund transfers value from the network's pre-funded source account to
	// the recipient and waits for confirmation.
	Fund(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error)

	Close()
}

// Dialer acquires a Network for the workflow's Connect stage.
type Dialer func(ctx context.Context) (Network, error)

// Backend is the go-ethereum surface EthNetwork needs. Both *ethclient.Client
// and simulated.Client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// EthNetwork implements Network over a go-ethereum backend.
type EthNetwork struct {
	backend Backend
	rpc     *rpc.Client
	cfg     *networkConfig

	mu      sync.Mutex
	chainID *big.Int

	fundMu sync.Mutex // serializes funding submissions
	funder Client
}

// Dial connects to an RPC endpoint and resolves its chain identifier.
func Dial(ctx context.Context, url string, opts ...NetworkOption) (*EthNetwork, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEndpointUnreachable, url, err)
	}
	n := NewEthNetwork(ethclient.NewClient(rc), opts...)
	n.rpc = rc
	if _, err := n.ChainID(ctx); err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrEndpointUnreachable, url, err)
	}
	return n, nil
}

// NewEthNetwork wraps an existing backend. Without an RPC handle the
// node-unlocked account list is unavailable, so funding requires WithFunder.
func NewEthNetwork(backend Backend, opts ...NetworkOption) *EthNetwork {
	cfg := defaultNetworkConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &EthNetwork{backend: backend, cfg: cfg}
}

// Backend returns the underlying go-ethereum backend.
func (n *EthNetwork) Backend() Backend {
	return n.backend
}

// ChainID returns the network's chain identifier, cached after the first call.
func (n *EthNetwork) ChainID(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.chainID != nil {
		return new(big.Int).Set(n.chainID), nil
	}
	id, err := n.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	n.chainID = id
	return new(big.Int).Set(id), nil
}

// Accounts returns the endpoint's account list (eth_accounts).
func (n *EthNetwork) Accounts(ctx context.Context) ([]common.Address, error) {
	if n.rpc == nil {
		return nil, errors.New("deployflow: account list requires an RPC endpoint")
	}
	var accounts []common.Address
	if err := n.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// NewClient binds a signing client for id on chainID.
func (n *EthNetwork) NewClient(id *Identity, chainID *big.Int) (Client, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(id.Key, chainID)
	if err != nil {
		return nil, err
	}
	if n.cfg.gasLimit > 0 {
		opts.GasLimit = n.cfg.gasLimit
	}
	return &EthClient{network: n, id: id, opts: opts}, nil
}

// Fund sends value to the recipient from the configured funder key, or from
// account 0 of the endpoint's unlocked accounts.
func (n *EthNetwork) Fund(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error) {
	receipt, err := n.fund(ctx, to, value)
	if err != nil {
		return nil, &FundingError{Recipient: to, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &FundingError{Recipient: to, Err: fmt.Errorf("tx %s: status %d", receipt.TxHash.Hex(), receipt.Status)}
	}
	return receipt, nil
}

func (n *EthNetwork) fund(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error) {
	if n.cfg.funder != nil {
		client, tx, err := n.sendFromFunder(ctx, to, value)
		if err != nil {
			return nil, err
		}
		return client.WaitMined(ctx, tx)
	}

	hash, err := n.sendFromUnlocked(ctx, to, value)
	if err != nil {
		return nil, err
	}
	return waitReceipt(ctx, n.backend, hash, n.cfg.pollInterval)
}

// sendFromFunder submits a value transfer signed by the configured funder
// key. The funder client is created once so every submission shares its
// nonce lock.
func (n *EthNetwork) sendFromFunder(ctx context.Context, to common.Address, value *big.Int) (Client, *types.Transaction, error) {
	n.fundMu.Lock()
	defer n.fundMu.Unlock()

	if n.funder == nil {
		chainID, err := n.ChainID(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := n.NewClient(n.cfg.funder, chainID)
		if err != nil {
			return nil, nil, err
		}
		n.funder = client
	}
	tx, err := n.funder.SendTransaction(ctx, &to, value, nil)
	if err != nil {
		return nil, nil, err
	}
	return n.funder, tx, nil
}

// sendFromUnlocked submits a value transfer from the endpoint's first
// unlocked account.
func (n *EthNetwork) sendFromUnlocked(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	accounts, err := n.Accounts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if len(accounts) == 0 {
		return common.Hash{}, errors.New("endpoint has no unlocked accounts")
	}

	n.fundMu.Lock()
	defer n.fundMu.Unlock()
	var hash common.Hash
	err = n.rpc.CallContext(ctx, &hash, "eth_sendTransaction", map[string]any{
		"from":  accounts[0],
		"to":    to,
		"value": (*hexutil.Big)(value),
	})
	return hash, err
}

// Close releases the RPC connection, if any.
func (n *EthNetwork) Close() {
	if n.rpc != nil {
		n.rpc.Close()
	}
}

// EthClient is a Client signing with a local key through go-ethereum's bind package.
type EthClient struct {
	network *EthNetwork
	id      *Identity
	opts    *bind.TransactOpts

	mu sync.Mutex // one submission in flight per identity
}

// Address returns the signing identity's address.
func (c *EthClient) Address() common.Address {
	return c.id.Address
}

// SendTransaction signs and submits a transaction.
func (c *EthClient) SendTransaction(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := *c.opts
	opts.Context = ctx
	opts.Value = value

	backend := c.network.backend
	if to == nil {
		_, tx, _, err := bind.DeployContract(&opts, abi.ABI{}, data, backend)
		return tx, err
	}
	if len(data) == 0 && opts.GasLimit == 0 {
		opts.GasLimit = transferGas
	}
	bound := bind.NewBoundContract(*to, abi.ABI{}, backend, backend, backend)
	return bound.RawTransact(&opts, data)
}

// CallContract executes a read-only call as this identity.
func (c *EthClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.network.backend.CallContract(ctx, ethereum.CallMsg{From: c.id.Address, To: &to, Data: data}, nil)
}

// WaitMined polls for the receipt at the network's poll interval.
func (c *EthClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return waitReceipt(ctx, c.network.backend, tx.Hash(), c.network.cfg.pollInterval)
}

func waitReceipt(ctx context.Context, b bind.DeployBackend, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
