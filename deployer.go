package deployflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Deploy packs args against the artifact's constructor, submits the creation
// transaction through client and waits for inclusion.
//
// Every call deploys a new contract; nothing is cached. Failures are terminal
// for the attempt and never retried here.
func Deploy[A Args](ctx context.Context, client Client, art *Artifact, args A, opts ...DeployOption) (*Contract, error) {
	cfg := defaultDeployConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	packed, err := packArgs("constructor", art.ABI.Constructor.Inputs, args.Values())
	if err != nil {
		return nil, &DeployError{Contract: art.Name, Kind: ErrDeploymentRejected, Err: err}
	}
	code := make([]byte, 0, len(art.Bytecode)+len(packed))
	code = append(code, art.Bytecode...)
	code = append(code, packed...)

	tx, err := client.SendTransaction(ctx, nil, cfg.value, code)
	if err != nil {
		return nil, &DeployError{Contract: art.Name, Kind: ErrDeploymentRejected, Err: err}
	}

	waitCtx := ctx
	if cfg.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.confirmTimeout)
		defer cancel()
	}
	receipt, err := client.WaitMined(waitCtx, tx)
	if err != nil {
		kind := ErrDeploymentRejected
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrDeploymentTimeout
		}
		return nil, &DeployError{Contract: art.Name, TxHash: tx.Hash(), Kind: kind, Err: err}
	}
	if err := checkDeployReceipt(receipt); err != nil {
		return nil, &DeployError{Contract: art.Name, TxHash: tx.Hash(), Kind: ErrDeploymentRejected, Err: err}
	}

	return deployedContract(art, client, receipt), nil
}

func checkDeployReceipt(receipt *types.Receipt) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("constructor reverted (status %d)", receipt.Status)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return errors.New("receipt carries no contract address")
	}
	return nil
}
