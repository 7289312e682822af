// Package config loads the executor's YAML configuration: the chain
// connection, the set of contracts registered at startup, the
// filesystem layout setup stages read and write, and the tunables the
// spec otherwise hard-codes (worker spacing, settlement retry count).
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for human-readable YAML values
// ("10s", "5m") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ChainSettings configures the single EVM RPC endpoint every
// ChainGateway call goes through.
type ChainSettings struct {
	RPCURL     string   `yaml:"rpc_url"`
	ChainID    int64    `yaml:"chain_id"`
	PrivateKey string   `yaml:"private_key"` // empty: settlement transactions cannot be sent
	RPCTimeout Duration `yaml:"rpc_timeout"`
}

// GasSettings configures the settlement transaction's gas parameters.
type GasSettings struct {
	GasLimit     uint64 `yaml:"gas_limit"`
	GasPriceGwei int64  `yaml:"gas_price_gwei"`
}

// ContractSettings is one entry in the startup registration list.
type ContractSettings struct {
	Address         string `yaml:"address"`
	UseExistingData bool   `yaml:"use_existing_data"`
}

// PathSettings is the filesystem layout setup/worker stages read from
// and write to.
type PathSettings struct {
	ABIDir        string `yaml:"abi_dir"`
	ProvingKeyDir string `yaml:"proving_key_dir"`
	VariablesDir  string `yaml:"variables_dir"`
	CodeDir       string `yaml:"code_dir"`
	WorkingDir    string `yaml:"working_dir"`
}

// ProvingSettings locates the external proving toolchain binary.
type ProvingSettings struct {
	BinaryPath string `yaml:"binary_path"`
}

// DecryptionSettings selects the decryptor: an RSA private key path,
// or none for the identity (Null) decryptor.
type DecryptionSettings struct {
	RSAPrivateKeyPath string `yaml:"rsa_private_key_path"`
}

// SchedulingSettings overrides the spec's literal constants; zero
// values fall back to those literals in applyDefaults.
type SchedulingSettings struct {
	WorkerSpacing     Duration `yaml:"worker_spacing"`
	SettlementRetries int      `yaml:"settlement_retries"`
	SettlementBackoff Duration `yaml:"settlement_backoff"`
	PollInterval      Duration `yaml:"poll_interval"`
}

// ServerSettings configures the status/metrics HTTP listener.
type ServerSettings struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level executor configuration.
type Config struct {
	Chain      ChainSettings      `yaml:"chain"`
	Gas        GasSettings        `yaml:"gas"`
	Contracts  []ContractSettings `yaml:"contracts"`
	Paths      PathSettings       `yaml:"paths"`
	Proving    ProvingSettings    `yaml:"proving"`
	Decryption DecryptionSettings `yaml:"decryption"`
	Scheduling SchedulingSettings `yaml:"scheduling"`
	Server     ServerSettings     `yaml:"server"`
	LogLevel   string             `yaml:"log_level"`
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads path, substitutes ${VAR}/${VAR:-default} references
// against the process environment, parses the YAML, and applies
// defaults for every unset tunable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the configuration has enough to start the executor.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Paths.WorkingDir == "" {
		return fmt.Errorf("config: paths.working_dir is required")
	}
	if c.Proving.BinaryPath == "" {
		return fmt.Errorf("config: proving.binary_path is required")
	}
	return nil
}

// applyDefaults fills the spec's literal constants into any tunable
// left unset in the YAML.
func (c *Config) applyDefaults() {
	if c.Chain.RPCTimeout == 0 {
		c.Chain.RPCTimeout = Duration(30 * time.Second)
	}
	if c.Gas.GasLimit == 0 {
		c.Gas.GasLimit = 6_000_000
	}
	if c.Gas.GasPriceGwei == 0 {
		c.Gas.GasPriceGwei = 1
	}
	if c.Scheduling.WorkerSpacing == 0 {
		c.Scheduling.WorkerSpacing = Duration(10 * time.Second)
	}
	if c.Scheduling.SettlementRetries == 0 {
		c.Scheduling.SettlementRetries = 3
	}
	if c.Scheduling.SettlementBackoff == 0 {
		c.Scheduling.SettlementBackoff = Duration(5 * time.Second)
	}
	if c.Scheduling.PollInterval == 0 {
		c.Scheduling.PollInterval = Duration(5 * time.Second)
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
