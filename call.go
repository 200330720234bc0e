package deployflow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pending is a submitted, not yet confirmed, state-changing call.
type Pending struct {
	contract *Contract
	method   string
	tx       *types.Transaction
}

// Tx returns the submitted transaction.
func (p *Pending) Tx() *types.Transaction {
	return p.tx
}

// Method returns the called method name.
func (p *Pending) Method() string {
	return p.method
}

// Wait blocks until the call is confirmed. A receipt with a failure status
// is returned alongside a *TxError: acceptance by the network does not
// imply successful execution.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	receipt, err := p.contract.client.WaitMined(ctx, p.tx)
	if err != nil {
		return nil, &TxError{Contract: p.contract.address, Method: p.method, TxHash: p.tx.Hash(), Err: err}
	}
	res := &Result{Method: p.method, Receipt: receipt}
	if !res.Succeeded() {
		return res, &TxError{
			Contract: p.contract.address,
			Method:   p.method,
			TxHash:   receipt.TxHash,
			Err:      fmt.Errorf("execution status %d", receipt.Status),
		}
	}
	return res, nil
}

// Result is the confirmed outcome of a state-changing call.
type Result struct {
	Method  string
	Receipt *types.Receipt
}

// Succeeded reports whether the transaction executed successfully.
func (r *Result) Succeeded() bool {
	return r.Receipt != nil && r.Receipt.Status == types.ReceiptStatusSuccessful
}

// TxHash returns the transaction hash.
func (r *Result) TxHash() common.Hash {
	if r.Receipt == nil {
		return common.Hash{}
	}
	return r.Receipt.TxHash
}

// Block returns the block number the transaction was included in.
func (r *Result) Block() uint64 {
	if r.Receipt == nil || r.Receipt.BlockNumber == nil {
		return 0
	}
	return r.Receipt.BlockNumber.Uint64()
}

// Status returns a printable execution status.
func (r *Result) Status() string {
	if r.Succeeded() {
		return "success"
	}
	return "failed"
}
