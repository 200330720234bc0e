package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/branched-services/go-deployflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full workflow against RPC_URL",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			envFile, _ := c.Flags().GetString(FlagEnv)
			cfgFile, _ := c.Flags().GetString(FlagConfig)

			cfg, err := LoadConfig(envFile, cfgFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, c.OutOrStdout())
		},
	}
	cmd.Flags().String(FlagConfig, "", "YAML workflow file")
	return cmd
}

func run(ctx context.Context, cfg *Config, out io.Writer) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := deployflow.NewMetrics(reg)
	if err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
				log.WithError(err).Warn("write metrics")
			}
		}()
	}

	netOpts := []deployflow.NetworkOption{
		deployflow.WithPollInterval(cfg.PollInterval),
	}
	if cfg.GasLimit > 0 {
		netOpts = append(netOpts, deployflow.WithGasLimit(cfg.GasLimit))
	}
	if cfg.FunderKey != "" {
		funder, err := deployflow.IdentityFromHex(cfg.FunderKey)
		if err != nil {
			return err
		}
		netOpts = append(netOpts, deployflow.WithFunder(funder))
	}
	dial := func(ctx context.Context) (deployflow.Network, error) {
		return deployflow.Dial(ctx, cfg.RPCURL, netOpts...)
	}

	amount, fundingValue, err := cfg.Values()
	if err != nil {
		return err
	}
	opts := []deployflow.WorkflowOption{
		deployflow.WithLogger(log),
		deployflow.WithMetrics(metrics),
		deployflow.WithStageHook(func(s deployflow.Stage, r *deployflow.Report) {
			fmt.Fprintf(out, "%-10s ok\n", s)
		}),
	}
	if cfg.Seed != 0 {
		opts = append(opts, deployflow.WithRand(rand.New(rand.NewSource(cfg.Seed))))
	}

	wf := deployflow.NewWorkflow(dial, deployflow.WorkflowConfig{
		TokenArtifact:   cfg.TokenArtifact,
		DepositArtifact: cfg.DepositArtifact,
		Amount:          amount,
		FundingValue:    fundingValue,
		ConfirmTimeout:  cfg.ConfirmTimeout,
	}, opts...)

	report, err := wf.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "token    %s\n", report.Token.Hex())
	fmt.Fprintf(out, "deposit  %s\n", report.Deposit.Hex())
	for _, tx := range report.Transactions {
		fmt.Fprintf(out, "%-8s %s %s\n", tx.Step, tx.TxHash.Hex(), tx.Status)
	}
	fmt.Fprintf(out, "balance  %s\n", report.Balance)
	return nil
}

func newLogger(cfg *Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}
	return log, nil
}
