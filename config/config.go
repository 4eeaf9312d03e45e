package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tradevault/crypto"
)

// Config is the daemon configuration. The arbitrator identity and the fixed
// arbitration fee are deployment constants: they are loaded once at startup
// and validated before the engine accepts its first operation.
type Config struct {
	RPCAddress          string `toml:"RPCAddress"`
	DataDir             string `toml:"DataDir"`
	ServiceName         string `toml:"ServiceName"`
	Environment         string `toml:"Environment"`
	LogFile             string `toml:"LogFile"`
	Arbitrator          string `toml:"Arbitrator"`
	ArbitrationFee      string `toml:"ArbitrationFee"`
	ArbitratorKeystore  string `toml:"ArbitratorKeystore"`
	RPCAuthTokenEnv     string `toml:"RPCAuthTokenEnv"`
	MetricsAddress      string `toml:"MetricsAddress"`
}

// Load loads the configuration from the given path, creating a default file
// (and a fresh arbitrator keystore) when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "tradevaultd"
	}
	if strings.TrimSpace(cfg.RPCAuthTokenEnv) == "" {
		cfg.RPCAuthTokenEnv = "TRADEVAULT_RPC_TOKEN"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Arbitrator) == "" {
		return fmt.Errorf("config: Arbitrator address is required")
	}
	if _, err := c.ArbitratorAddress(); err != nil {
		return fmt.Errorf("config: invalid Arbitrator: %w", err)
	}
	fee, err := c.Fee()
	if err != nil {
		return err
	}
	if fee.Sign() <= 0 {
		return fmt.Errorf("config: ArbitrationFee must be positive")
	}
	return nil
}

// ArbitratorAddress decodes the configured bech32 arbitrator identity.
func (c *Config) ArbitratorAddress() ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.Arbitrator))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Fixed(), nil
}

// Fee parses the configured arbitration fee, expressed in the smallest
// currency unit.
func (c *Config) Fee() (*big.Int, error) {
	fee, ok := new(big.Int).SetString(strings.TrimSpace(c.ArbitrationFee), 10)
	if !ok {
		return nil, fmt.Errorf("config: ArbitrationFee %q is not a base-10 integer", c.ArbitrationFee)
	}
	return fee, nil
}

// RPCAuthToken reads the bearer token from the configured environment
// variable. Empty means authentication is disabled.
func (c *Config) RPCAuthToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCAuthTokenEnv))
}

// createDefault creates and saves a default configuration file with a newly
// generated arbitrator key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:         ":8080",
		MetricsAddress:     ":9090",
		DataDir:            "./tradevault-data",
		ServiceName:        "tradevaultd",
		Environment:        "local",
		Arbitrator:         key.PubKey().Address().String(),
		ArbitrationFee:     "1",
		ArbitratorKeystore: keystorePath,
		RPCAuthTokenEnv:    "TRADEVAULT_RPC_TOKEN",
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "arbitrator.keystore")
}
