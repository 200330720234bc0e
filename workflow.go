package deployflow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage identifies one step of the workflow. Stages run strictly in order.
type Stage uint8

const (
	// StageConnect acquires the network and resolves its chain identifier.
	StageConnect Stage = iota

	// StageProvision derives the deployer and counterparty identities.
	StageProvision

	// StageFund transfers value to both identities.
	StageFund

	// StageDeploy loads the artifacts and deploys token and deposit contracts.
	StageDeploy

	// StageRebind binds counterparty-side contract handles.
	StageRebind

	// StageTransact runs transfer, approve and deposit.
	StageTransact

	// StageVerify checks the deposit contract's token balance.
	StageVerify
)

var stageNames = [...]string{
	StageConnect:   "connect",
	StageProvision: "provision",
	StageFund:      "fund",
	StageDeploy:    "deploy",
	StageRebind:    "rebind",
	StageTransact:  "transact",
	StageVerify:    "verify",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageConnect, StageProvision, StageFund, StageDeploy, StageRebind, StageTransact, StageVerify}
}

// Default workflow parameters.
var (
	DefaultAmount       = big.NewInt(1000)
	DefaultFundingValue = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil) // 1 ether
)

// WorkflowConfig holds the parameters of a run.
type WorkflowConfig struct {
	// TokenArtifact and DepositArtifact are artifact directories.
	TokenArtifact   string
	DepositArtifact string

	// Amount is moved through transfer, approve and deposit.
	Amount *big.Int

	// FundingValue is sent to each provisioned identity.
	FundingValue *big.Int

	// ConfirmTimeout bounds every confirmation wait. Zero means DefaultConfirmTimeout.
	ConfirmTimeout time.Duration
}

// FundingRecord is the outcome of funding one identity.
type FundingRecord struct {
	Role      string
	Recipient common.Address
	TxHash    common.Hash
	Status    uint64
}

// TxRecord is the outcome of one transact step.
type TxRecord struct {
	Step   string
	TxHash common.Hash
	Block  uint64
	Status string
}

// StageTiming records how long a completed stage took.
type StageTiming struct {
	Stage Stage
	Took  time.Duration
}

// Report summarizes a run. On failure it holds everything up to the failing stage.
type Report struct {
	RunID        string
	ChainID      *big.Int
	Deployer     common.Address
	Counterparty common.Address
	Funding      []FundingRecord
	Token        common.Address
	Deposit      common.Address
	Transactions []TxRecord
	Balance      *big.Int
	Stages       []StageTiming
}

// Workflow deploys a token and a deposit contract, moves Amount through
// transfer, approve and deposit, and verifies the deposit contract's balance.
type Workflow struct {
	dial    Dialer
	cfg     WorkflowConfig
	log     logrus.FieldLogger
	rand    io.Reader
	metrics *Metrics
	hooks   []func(Stage, *Report)
}

// NewWorkflow creates a workflow that acquires its network through dial.
func NewWorkflow(dial Dialer, cfg WorkflowConfig, opts ...WorkflowOption) *Workflow {
	if cfg.Amount == nil {
		cfg.Amount = new(big.Int).Set(DefaultAmount)
	}
	if cfg.FundingValue == nil {
		cfg.FundingValue = new(big.Int).Set(DefaultFundingValue)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	w := &Workflow{
		dial: dial,
		cfg:  cfg,
		log:  discard,
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// runState is the mutable state threaded through the stages of one run.
type runState struct {
	log    logrus.FieldLogger
	report *Report

	network Network
	chainID *big.Int

	deployer     *Identity
	counterparty *Identity
	deployerCl   Client
	counterCl    Client

	tokenArt   *Artifact
	depositArt *Artifact

	token          *Contract
	deposit        *Contract
	counterToken   *Contract
	counterDeposit *Contract
}

type stageFunc func(ctx context.Context, st *runState) error

func (w *Workflow) plan() []struct {
	stage Stage
	run   stageFunc
} {
	return []struct {
		stage Stage
		run   stageFunc
	}{
		{StageConnect, w.connect},
		{StageProvision, w.provision},
		{StageFund, w.fund},
		{StageDeploy, w.deploy},
		{StageRebind, w.rebind},
		{StageTransact, w.transact},
		{StageVerify, w.verify},
	}
}

// Run executes every stage in order and stops at the first failure, which
// is returned as a *StageError. No stage starts before the previous stage's
// transactions are confirmed, and nothing is retried.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	st := &runState{
		log:    w.log.WithField("run_id", runID),
		report: &Report{RunID: runID},
	}
	defer func() {
		if st.network != nil {
			st.network.Close()
		}
	}()

	for _, step := range w.plan() {
		log := st.log.WithField("stage", step.stage.String())
		start := time.Now()
		err := step.run(ctx, st)
		took := time.Since(start)
		w.metrics.observeStage(step.stage, took, err)

		if err != nil {
			se, ok := err.(*StageError)
			if !ok {
				se = &StageError{Stage: step.stage, Err: err}
			}
			log.WithError(se.Err).WithField("step", se.Step).Error("stage failed")
			return st.report, se
		}

		st.report.Stages = append(st.report.Stages, StageTiming{Stage: step.stage, Took: took})
		log.WithField("took", took.Round(time.Millisecond)).Info("stage complete")
		for _, hook := range w.hooks {
			hook(step.stage, st.report)
		}
	}
	return st.report, nil
}

func (w *Workflow) connect(ctx context.Context, st *runState) error {
	network, err := w.dial(ctx)
	if err != nil {
		return endpointErr(err)
	}
	st.network = network

	chainID, err := network.ChainID(ctx)
	if err != nil {
		return endpointErr(err)
	}
	st.chainID = chainID
	st.report.ChainID = new(big.Int).Set(chainID)
	st.log.WithField("chain_id", chainID).Info("connected")
	return nil
}

func endpointErr(err error) error {
	if errors.Is(err, ErrEndpointUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
}

func (w *Workflow) provision(ctx context.Context, st *runState) error {
	var err error
	if st.deployer, err = NewIdentity(w.rand); err != nil {
		return &StageError{Stage: StageProvision, Step: "deployer", Err: err}
	}
	if st.counterparty, err = NewIdentity(w.rand); err != nil {
		return &StageError{Stage: StageProvision, Step: "counterparty", Err: err}
	}
	if st.deployerCl, err = st.network.NewClient(st.deployer, st.chainID); err != nil {
		return &StageError{Stage: StageProvision, Step: "deployer", Err: err}
	}
	if st.counterCl, err = st.network.NewClient(st.counterparty, st.chainID); err != nil {
		return &StageError{Stage: StageProvision, Step: "counterparty", Err: err}
	}

	st.report.Deployer = st.deployer.Address
	st.report.Counterparty = st.counterparty.Address
	st.log.WithFields(logrus.Fields{
		"deployer":     st.deployer.Address.Hex(),
		"counterparty": st.counterparty.Address.Hex(),
	}).Info("identities provisioned")
	return nil
}

// fund funds both identities one after another from the same source
// account, so the source's nonce sequence is never contended.
func (w *Workflow) fund(ctx context.Context, st *runState) error {
	recipients := []struct {
		role string
		addr common.Address
	}{
		{"deployer", st.deployer.Address},
		{"counterparty", st.counterparty.Address},
	}
	for _, r := range recipients {
		receipt, err := w.fundOne(ctx, st.network, r.addr)
		if err != nil {
			w.metrics.observeTx(StageFund, r.role, "failed")
			if !errors.Is(err, ErrFundingFailed) {
				err = &FundingError{Recipient: r.addr, Err: err}
			}
			return &StageError{Stage: StageFund, Step: r.role, Err: err}
		}
		w.metrics.observeTx(StageFund, r.role, "success")

		st.report.Funding = append(st.report.Funding, FundingRecord{
			Role:      r.role,
			Recipient: r.addr,
			TxHash:    receipt.TxHash,
			Status:    receipt.Status,
		})
		st.log.WithFields(logrus.Fields{
			"recipient": r.addr.Hex(),
			"tx":        receipt.TxHash.Hex(),
			"status":    receipt.Status,
		}).Info("sent funding tx")
	}
	return nil
}

// fundOne funds one recipient, bounding the confirmation wait by ConfirmTimeout.
func (w *Workflow) fundOne(ctx context.Context, network Network, to common.Address) (*types.Receipt, error) {
	fundCtx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()
	return network.Fund(fundCtx, to, w.cfg.FundingValue)
}

// Methods each artifact must expose for the transact and verify stages.
var (
	tokenMethods   = []string{"transfer", "approve", "balanceOf"}
	depositMethods = []string{"deposit"}
)

// deploy loads both artifacts, then deploys them sequentially from the
// deployer identity. Deposit does not depend on token, but serializing keeps
// the deployer's nonce ordering trivial.
func (w *Workflow) deploy(ctx context.Context, st *runState) error {
	var err error
	if st.tokenArt, err = loadRequired(w.cfg.TokenArtifact, tokenMethods); err != nil {
		return &StageError{Stage: StageDeploy, Step: "load token", Err: err}
	}
	if st.depositArt, err = loadRequired(w.cfg.DepositArtifact, depositMethods); err != nil {
		return &StageError{Stage: StageDeploy, Step: "load deposit", Err: err}
	}

	timeout := WithConfirmTimeout(w.cfg.ConfirmTimeout)
	if st.token, err = Deploy(ctx, st.deployerCl, st.tokenArt, NoArgs{}, timeout); err != nil {
		w.metrics.observeTx(StageDeploy, "token", "failed")
		return &StageError{Stage: StageDeploy, Step: "token", Err: err}
	}
	w.metrics.observeTx(StageDeploy, "token", "success")
	st.report.Token = st.token.Address()
	st.log.WithFields(logrus.Fields{"contract": st.tokenArt.Name, "address": st.token.Address().Hex()}).Info("deployed token")

	if st.deposit, err = Deploy(ctx, st.deployerCl, st.depositArt, NoArgs{}, timeout); err != nil {
		w.metrics.observeTx(StageDeploy, "deposit", "failed")
		return &StageError{Stage: StageDeploy, Step: "deposit", Err: err}
	}
	w.metrics.observeTx(StageDeploy, "deposit", "success")
	st.report.Deposit = st.deposit.Address()
	st.log.WithFields(logrus.Fields{"contract": st.depositArt.Name, "address": st.deposit.Address().Hex()}).Info("deployed deposit")
	return nil
}

func loadRequired(dir string, methods []string) (*Artifact, error) {
	art, err := LoadArtifact(dir)
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if !art.HasMethod(m) {
			return nil, &ArtifactError{
				Name: art.Name,
				Path: dir,
				Kind: ErrArtifactMalformed,
				Err:  fmt.Errorf("interface has no %q method", m),
			}
		}
	}
	return art, nil
}

func (w *Workflow) rebind(ctx context.Context, st *runState) error {
	st.counterToken = st.token.Bind(st.counterCl)
	st.counterDeposit = st.deposit.Bind(st.counterCl)
	st.log.WithField("identity", st.counterparty.Address.Hex()).Info("rebound contract handles")
	return nil
}

// transact runs the three dependent calls. Each is confirmed before the
// next is submitted: approve needs the transferred balance and deposit
// needs the approved allowance.
func (w *Workflow) transact(ctx context.Context, st *runState) error {
	amount := w.cfg.Amount
	steps := []struct {
		name     string
		contract *Contract
		method   string
		args     []any
	}{
		{"transfer", st.token, "transfer", []any{st.counterparty.Address, amount}},
		{"approve", st.counterToken, "approve", []any{st.deposit.Address(), amount}},
		{"deposit", st.counterDeposit, "deposit", []any{st.token.Address(), amount}},
	}

	for _, s := range steps {
		res, err := w.confirm(ctx, s.contract, s.method, s.args)
		status := "rejected"
		if res != nil {
			status = res.Status()
		}
		w.metrics.observeTx(StageTransact, s.name, status)
		if err != nil {
			return &StageError{Stage: StageTransact, Step: s.name, Err: err}
		}

		st.report.Transactions = append(st.report.Transactions, TxRecord{
			Step:   s.name,
			TxHash: res.TxHash(),
			Block:  res.Block(),
			Status: status,
		})
		st.log.WithFields(logrus.Fields{
			"step":   s.name,
			"tx":     res.TxHash().Hex(),
			"status": status,
		}).Info("transaction confirmed")
	}
	return nil
}

func (w *Workflow) confirm(ctx context.Context, c *Contract, method string, args []any) (*Result, error) {
	pending, err := c.Submit(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()
	return pending.Wait(waitCtx)
}

func (w *Workflow) verify(ctx context.Context, st *runState) error {
	out, err := st.token.Call(ctx, "balanceOf", st.deposit.Address())
	if err != nil {
		return &StageError{Stage: StageVerify, Step: "balanceOf", Err: err}
	}
	var balance *big.Int
	if len(out) == 1 {
		balance, _ = out[0].(*big.Int)
	}
	if balance == nil {
		return &StageError{Stage: StageVerify, Step: "balanceOf", Err: fmt.Errorf("unexpected balanceOf output %v", out)}
	}

	st.report.Balance = balance
	st.log.WithFields(logrus.Fields{
		"contract": st.deposit.Address().Hex(),
		"balance":  balance,
	}).Info("balance contract")

	if balance.Cmp(w.cfg.Amount) != 0 {
		return &VerificationError{
			Subject: "token balance of " + st.deposit.Address().Hex(),
			Want:    new(big.Int).Set(w.cfg.Amount),
			Got:     balance,
		}
	}
	return nil
}
