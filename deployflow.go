// Package deployflow deploys precompiled contracts to an EVM ledger and drives
// a fixed sequence of dependent transactions against them.
//
// The package is built from three layers:
//   - Artifact loading: LoadArtifact reads an interface descriptor (abi.json)
//     and a hex bytecode file (bin.txt) from a contract's artifact directory.
//   - Deployment: Deploy submits a creation transaction through a Client and
//     waits for it to be confirmed, returning a Contract handle.
//   - Orchestration: Workflow connects, provisions and funds two identities,
//     deploys a token and a deposit contract, then runs transfer, approve and
//     deposit, each confirmed before the next is submitted, and verifies the
//     deposit contract's token balance.
//
// # Basic Usage
//
//	wf := deployflow.NewWorkflow(
//	    func(ctx context.Context) (deployflow.Network, error) {
//	        return deployflow.Dial(ctx, "http://localhost:8545")
//	    },
//	    deployflow.WorkflowConfig{
//	        TokenArtifact:   "./abi/contracts/SimpleToken.sol/SimpleToken",
//	        DepositArtifact: "./abi/contracts/Deposit.sol/Deposit",
//	    },
//	    deployflow.WithLogger(logrus.StandardLogger()),
//	)
//	report, err := wf.Run(ctx)
//	if err != nil {
//	    var se *deployflow.StageError
//	    if errors.As(err, &se) {
//	        log.Fatalf("failed at %s: %v", se.Stage, se.Err)
//	    }
//	}
//	fmt.Println("deposit balance", report.Balance)
//
// # Contract Handles
//
// A Contract binds an address and ABI to the Client it acts through. Bind
// returns a new handle acting as a different identity; the original is
// never modified. Transact waits for confirmation and treats a failed
// execution status as an error, since a transaction accepted by the network
// can still fail when executed.
//
// # Errors
//
// Every failure wraps one of the sentinel errors (ErrArtifactNotFound,
// ErrArtifactMalformed, ErrDeploymentRejected, ErrDeploymentTimeout,
// ErrTransactionFailed, ErrFundingFailed, ErrVerificationFailed,
// ErrEndpointUnreachable). Workflow.Run additionally tags the failure with
// the Stage that produced it through *StageError.
package deployflow
