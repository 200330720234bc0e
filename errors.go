package deployflow

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors identifying the failure kind. Structured errors below wrap
// exactly one of these, so callers can branch with errors.Is.
var (
	// ErrArtifactNotFound indicates the interface descriptor or bytecode file is absent.
	ErrArtifactNotFound = errors.New("deployflow: artifact not found")

	// ErrArtifactMalformed indicates invalid descriptor JSON or non-hex bytecode.
	ErrArtifactMalformed = errors.New("deployflow: artifact malformed")

	// ErrDeploymentRejected indicates the network rejected or reverted a deployment.
	ErrDeploymentRejected = errors.New("deployflow: deployment rejected")

	// ErrDeploymentTimeout indicates deployment confirmation did not arrive in time.
	ErrDeploymentTimeout = errors.New("deployflow: deployment confirmation timed out")

	// ErrTransactionFailed indicates a state-changing call was rejected or failed on execution.
	ErrTransactionFailed = errors.New("deployflow: transaction failed")

	// ErrFundingFailed indicates an identity could not be funded.
	ErrFundingFailed = errors.New("deployflow: funding failed")

	// ErrVerificationFailed indicates the final ledger state does not match expectations.
	ErrVerificationFailed = errors.New("deployflow: verification failed")

	// ErrEndpointUnreachable indicates the RPC endpoint could not be reached.
	ErrEndpointUnreachable = errors.New("deployflow: endpoint unreachable")
)

// ArtifactError reports which artifact file could not be loaded.
type ArtifactError struct {
	Name string
	Path string
	Kind error
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Name, e.Path)
	}
	return fmt.Sprintf("%v: %s (%s): %v", e.Kind, e.Name, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// DeployError wraps a failed deployment attempt.
type DeployError struct {
	Contract string
	TxHash   common.Hash
	Kind     error
	Err      error
}

func (e *DeployError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Contract)
	if e.TxHash != (common.Hash{}) {
		msg += " tx " + e.TxHash.Hex()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeployError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// TxError wraps a failed state-changing call against a deployed contract.
type TxError struct {
	Contract common.Address
	Method   string
	TxHash   common.Hash
	Err      error
}

func (e *TxError) Error() string {
	msg := fmt.Sprintf("%v: %s on %s", ErrTransactionFailed, e.Method, e.Contract.Hex())
	if e.TxHash != (common.Hash{}) {
		msg += " tx " + e.TxHash.Hex()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TxError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// FundingError wraps a failed value transfer to a provisioned identity.
type FundingError struct {
	Recipient common.Address
	Err       error
}

func (e *FundingError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrFundingFailed, e.Recipient.Hex(), e.Err)
}

func (e *FundingError) Unwrap() []error {
	return []error{ErrFundingFailed, e.Err}
}

// VerificationError reports a post-condition mismatch.
type VerificationError struct {
	Subject string
	Want    *big.Int
	Got     *big.Int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%v: %s: want %s, got %s", ErrVerificationFailed, e.Subject, e.Want, e.Got)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}

// MethodNotFoundError indicates the contract doesn't have the requested method.
type MethodNotFoundError struct {
	Contract common.Address
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("deployflow: method %q not found in contract %s", e.Method, e.Contract.Hex())
}

// ArgumentError indicates an issue with a constructor or method argument.
type ArgumentError struct {
	Method string
	Index  int
	Err    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("deployflow: argument %d for %q: %v", e.Index, e.Method, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// StageError tags a workflow failure with the stage (and step, if any) that produced it.
type StageError struct {
	Stage Stage
	Step  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
