package deployflow

import (
	"io"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
)

// Default wait policy and workflow parameters.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultRPCURL         = "http://localhost:8545"
)

// NetworkOption configures an EthNetwork.
type NetworkOption func(*networkConfig)

type networkConfig struct {
	pollInterval time.Duration
	gasLimit     uint64
	funder       *Identity
}

func defaultNetworkConfig() *networkConfig {
	return &networkConfig{pollInterval: DefaultPollInterval}
}

// WithPollInterval sets how often receipts are polled while waiting.
// Default is 100ms.
func WithPollInterval(d time.Duration) NetworkOption {
	return func(c *networkConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithGasLimit fixes the gas limit instead of estimating it per transaction.
func WithGasLimit(limit uint64) NetworkOption {
	return func(c *networkConfig) {
		c.gasLimit = limit
	}
}

// WithFunder funds identities from the given key instead of the endpoint's
// first unlocked account.
func WithFunder(id *Identity) NetworkOption {
	return func(c *networkConfig) {
		c.funder = id
	}
}

// DeployOption configures a single Deploy call.
type DeployOption func(*deployConfig)

type deployConfig struct {
	confirmTimeout time.Duration
	value          *big.Int
}

func defaultDeployConfig() *deployConfig {
	return &deployConfig{confirmTimeout: DefaultConfirmTimeout}
}

// WithConfirmTimeout bounds the wait for deployment confirmation.
// Zero disables the bound; the caller's context still applies.
func WithConfirmTimeout(d time.Duration) DeployOption {
	return func(c *deployConfig) {
		c.confirmTimeout = d
	}
}

// WithDeployValue attaches value to the creation transaction (payable constructors).
func WithDeployValue(v *big.Int) DeployOption {
	return func(c *deployConfig) {
		c.value = v
	}
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithLogger sets the logger status lines are written to.
func WithLogger(l logrus.FieldLogger) WorkflowOption {
	return func(w *Workflow) {
		w.log = l
	}
}

// WithRand sets the source identities are derived from.
func WithRand(r io.Reader) WorkflowOption {
	return func(w *Workflow) {
		w.rand = r
	}
}

// WithMetrics records stage and transaction metrics.
func WithMetrics(m *Metrics) WorkflowOption {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithStageHook registers a callback invoked after every stage completes
// successfully, in stage order.
func WithStageHook(fn func(Stage, *Report)) WorkflowOption {
	return func(w *Workflow) {
		w.hooks = append(w.hooks, fn)
	}
}
