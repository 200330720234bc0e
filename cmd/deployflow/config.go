package main

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is read from the environment, optionally preloaded from a dotenv
// file, and then overlaid with a YAML workflow file.
type Config struct {
	RPCURL          string        `default:"http://localhost:8545" envconfig:"RPC_URL" yaml:"rpc_url"`
	TokenArtifact   string        `default:"./abi/contracts/SimpleToken.sol/SimpleToken" envconfig:"TOKEN_ARTIFACT" yaml:"token_artifact"`
	DepositArtifact string        `default:"./abi/contracts/Deposit.sol/Deposit" envconfig:"DEPOSIT_ARTIFACT" yaml:"deposit_artifact"`
	FunderKey       string        `envconfig:"FUNDER_PRIVATE_KEY" yaml:"-"`
	Amount          string        `default:"1000" envconfig:"AMOUNT" yaml:"amount"`
	FundingValue    string        `default:"1000000000000000000" envconfig:"FUNDING_VALUE" yaml:"funding_value"`
	ConfirmTimeout  time.Duration `default:"2m" envconfig:"CONFIRM_TIMEOUT" yaml:"confirm_timeout"`
	PollInterval    time.Duration `default:"100ms" envconfig:"POLL_INTERVAL" yaml:"poll_interval"`
	GasLimit        uint64        `envconfig:"GAS_LIMIT" yaml:"gas_limit"`
	Seed            int64         `envconfig:"SEED" yaml:"seed"`
	LogLevel        string        `default:"info" envconfig:"LOG_LEVEL" yaml:"log_level"`
	LogFormat       string        `default:"text" envconfig:"LOG_FORMAT" yaml:"log_format"`
	MetricsFile     string        `envconfig:"METRICS_FILE" yaml:"metrics_file"`
}

// LoadConfig builds the run configuration. A missing envFile is ignored; a
// missing cfgFile is an error only when one was named.
func LoadConfig(envFile, cfgFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("read workflow file: %w", err)
		}
		// Fields absent from the file keep their environment values.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse workflow file: %w", err)
		}
	}
	return &cfg, nil
}

// Values parses Amount and FundingValue as positive base-10 integers.
func (c *Config) Values() (amount, fundingValue *big.Int, err error) {
	if amount, err = positive("AMOUNT", c.Amount); err != nil {
		return nil, nil, err
	}
	if fundingValue, err = positive("FUNDING_VALUE", c.FundingValue); err != nil {
		return nil, nil, err
	}
	return amount, fundingValue, nil
}

func positive(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%s: %q is not a positive integer", name, s)
	}
	return v, nil
}
