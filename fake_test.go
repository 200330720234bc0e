package deployflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeLedger is an in-memory Network that understands the SimpleToken and
// Deposit interfaces from testdata/artifacts.
//
// Submission validates a transaction against confirmed state, the way gas
// estimation does on a real node, and WaitMined applies it.
type fakeLedger struct {
	mu sync.Mutex

	chainID       *big.Int
	funderBalance *big.Int
	failFunding   bool     // funding receipts report failure
	failMethod    string   // receipts for this method report failure
	balanceOffset *big.Int // added to every balanceOf result
	neverMine     bool     // WaitMined blocks until ctx is done
	stallMethod   string   // WaitMined blocks for this method only
	stallFunding  bool     // Fund blocks until ctx is done
	chainIDErr    error

	tokenABI, depositABI   abi.ABI
	tokenCode, depositCode []byte
	supply                 *big.Int

	eth       map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	tokens    map[common.Address]*fakeToken
	deposits  map[common.Address]bool
	pending   map[common.Hash]func() error
	names     map[common.Hash]string
	receipts  map[common.Hash]*types.Receipt
	block     uint64
	submitted []string
	closed    bool
}

type fakeToken struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func (t *fakeToken) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return new(big.Int)
}

func (t *fakeToken) allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return v
		}
	}
	return new(big.Int)
}

func (t *fakeToken) setAllowance(owner, spender common.Address, amount *big.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *fakeToken) move(from, to common.Address, amount *big.Int) {
	t.balances[from] = new(big.Int).Sub(t.balance(from), amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	token := MustLoadArtifact(filepath.Join("testdata", "artifacts", "SimpleToken"))
	deposit := MustLoadArtifact(filepath.Join("testdata", "artifacts", "Deposit"))
	return &fakeLedger{
		chainID:       big.NewInt(31337),
		funderBalance: new(big.Int).Mul(big.NewInt(100), DefaultFundingValue),
		tokenABI:      token.ABI,
		depositABI:    deposit.ABI,
		tokenCode:     token.Bytecode,
		depositCode:   deposit.Bytecode,
		supply:        new(big.Int).Mul(big.NewInt(1_000_000), DefaultFundingValue),
		eth:           make(map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		tokens:        make(map[common.Address]*fakeToken),
		deposits:      make(map[common.Address]bool),
		pending:       make(map[common.Hash]func() error),
		names:         make(map[common.Hash]string),
		receipts:      make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeLedger) dialer() Dialer {
	return func(ctx context.Context) (Network, error) {
		return f, nil
	}
}

func (f *fakeLedger) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainIDErr != nil {
		return nil, f.chainIDErr
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeLedger) NewClient(id *Identity, chainID *big.Int) (Client, error) {
	if chainID.Cmp(f.chainID) != 0 {
		return nil, fmt.Errorf("chain id mismatch: %s", chainID)
	}
	return &fakeClient{ledger: f, addr: id.Address}, nil
}

func (f *fakeLedger) Fund(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error) {
	f.mu.Lock()
	if f.stallFunding {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, &FundingError{Recipient: to, Err: ctx.Err()}
	}
	defer f.mu.Unlock()

	if f.funderBalance.Cmp(value) < 0 {
		return nil, &FundingError{Recipient: to, Err: errors.New("insufficient funds for transfer")}
	}
	f.block++
	tx := types.NewTx(&types.LegacyTx{Nonce: f.block, To: &to, Value: value, Gas: transferGas, GasPrice: big.NewInt(1)})
	receipt := &types.Receipt{TxHash: tx.Hash(), BlockNumber: new(big.Int).SetUint64(f.block), Status: types.ReceiptStatusSuccessful}
	if f.failFunding {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, &FundingError{Recipient: to, Err: errors.New("status 0")}
	}
	f.funderBalance = new(big.Int).Sub(f.funderBalance, value)
	f.eth[to] = new(big.Int).Add(f.ethBalance(to), value)
	return receipt, nil
}

func (f *fakeLedger) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLedger) ethBalance(a common.Address) *big.Int {
	if b, ok := f.eth[a]; ok {
		return b
	}
	return new(big.Int)
}

func (f *fakeLedger) methodNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

// execute validates (and, if commit is set, applies) a transaction.
func (f *fakeLedger) execute(from common.Address, to *common.Address, data []byte, nonce uint64, commit bool) (string, error) {
	if to == nil {
		var created common.Address
		switch {
		case bytes.Equal(data, f.tokenCode):
			created = crypto.CreateAddress(from, nonce)
			if commit {
				f.tokens[created] = &fakeToken{
					balances:   map[common.Address]*big.Int{from: new(big.Int).Set(f.supply)},
					allowances: make(map[common.Address]map[common.Address]*big.Int),
				}
			}
		case bytes.Equal(data, f.depositCode):
			created = crypto.CreateAddress(from, nonce)
			if commit {
				f.deposits[created] = true
			}
		default:
			return "create", errors.New("execution reverted: unknown bytecode")
		}
		return "create", nil
	}

	if len(data) < 4 {
		return "", errors.New("execution reverted: no selector")
	}
	if tok, ok := f.tokens[*to]; ok {
		method, err := f.tokenABI.MethodById(data[:4])
		if err != nil {
			return "", err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return method.Name, err
		}
		switch method.Name {
		case "transfer":
			recipient, amount := args[0].(common.Address), args[1].(*big.Int)
			if tok.balance(from).Cmp(amount) < 0 {
				return method.Name, errors.New("execution reverted: insufficient balance")
			}
			if commit {
				tok.move(from, recipient, amount)
			}
		case "approve":
			spender, amount := args[0].(common.Address), args[1].(*big.Int)
			if commit {
				tok.setAllowance(from, spender, amount)
			}
		default:
			return method.Name, errors.New("execution reverted: unsupported method")
		}
		return method.Name, nil
	}
	if f.deposits[*to] {
		method, err := f.depositABI.MethodById(data[:4])
		if err != nil {
			return "", err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return method.Name, err
		}
		tokenAddr, amount := args[0].(common.Address), args[1].(*big.Int)
		tok, ok := f.tokens[tokenAddr]
		if !ok {
			return method.Name, errors.New("execution reverted: not a token")
		}
		if tok.allowance(from, *to).Cmp(amount) < 0 {
			return method.Name, errors.New("execution reverted: insufficient allowance")
		}
		if tok.balance(from).Cmp(amount) < 0 {
			return method.Name, errors.New("execution reverted: insufficient balance")
		}
		if commit {
			tok.setAllowance(from, *to, new(big.Int).Sub(tok.allowance(from, *to), amount))
			tok.move(from, *to, amount)
		}
		return method.Name, nil
	}
	return "", errors.New("execution reverted: no code at address")
}

type fakeClient struct {
	ledger *fakeLedger
	addr   common.Address
}

func (c *fakeClient) Address() common.Address {
	return c.addr
}

func (c *fakeClient) SendTransaction(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	f := c.ledger
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ethBalance(c.addr).Sign() == 0 {
		return nil, errors.New("insufficient funds for gas * price + value")
	}
	nonce := f.nonces[c.addr]
	name, err := f.execute(c.addr, to, data, nonce, false)
	f.submitted = append(f.submitted, name)
	if err != nil {
		return nil, err
	}
	f.nonces[c.addr] = nonce + 1

	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, To: to, Value: value, Data: data, Gas: 100000, GasPrice: big.NewInt(1)})
	from := c.addr
	f.names[tx.Hash()] = name
	f.pending[tx.Hash()] = func() error {
		if name == f.failMethod {
			return errors.New("forced failure")
		}
		_, err := f.execute(from, to, data, nonce, true)
		return err
	}
	return tx, nil
}

func (c *fakeClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f := c.ledger
	f.mu.Lock()
	defer f.mu.Unlock()

	tok, ok := f.tokens[to]
	if !ok {
		return nil, errors.New("no code at address")
	}
	method, err := f.tokenABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != "balanceOf" {
		return nil, errors.New("unsupported call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	bal := new(big.Int).Set(tok.balance(args[0].(common.Address)))
	if f.balanceOffset != nil {
		bal.Add(bal, f.balanceOffset)
	}
	return method.Outputs.Pack(bal)
}

func (c *fakeClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f := c.ledger
	f.mu.Lock()
	if f.neverMine || (f.stallMethod != "" && f.names[tx.Hash()] == f.stallMethod) {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()

	if r, ok := f.receipts[tx.Hash()]; ok {
		return r, nil
	}
	apply, ok := f.pending[tx.Hash()]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	delete(f.pending, tx.Hash())

	f.block++
	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.block),
		Status:      types.ReceiptStatusSuccessful,
	}
	if err := apply(); err != nil {
		receipt.Status = types.ReceiptStatusFailed
	}
	if tx.To() == nil && receipt.Status == types.ReceiptStatusSuccessful {
		receipt.ContractAddress = crypto.CreateAddress(c.addr, tx.Nonce())
	}
	f.receipts[tx.Hash()] = receipt
	return receipt, nil
}

// writeArtifact creates an artifact directory under t.TempDir().
func writeArtifact(t *testing.T, name, abiJSON, bin string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if abiJSON != "" {
		if err := os.WriteFile(filepath.Join(dir, ABIFileName), []byte(abiJSON), 0o644); err != nil {
			t.Fatalf("write abi: %v", err)
		}
	}
	if bin != "" {
		if err := os.WriteFile(filepath.Join(dir, BytecodeFileName), []byte(bin), 0o644); err != nil {
			t.Fatalf("write bin: %v", err)
		}
	}
	return dir
}
