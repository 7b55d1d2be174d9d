package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration of the escrow node.
type Config struct {
	ListenAddress       string   `toml:"ListenAddress"`
	DataDir             string   `toml:"DataDir"`
	Environment         string   `toml:"Environment"`
	Treasury            string   `toml:"Treasury"`
	Admins              []string `toml:"Admins"`
	Tokens              []string `toml:"Tokens"`
	Blacklist           []string `toml:"Blacklist"`
	ClientFeeBps        uint32   `toml:"ClientFeeBps"`
	ContractorFeeBps    uint32   `toml:"ContractorFeeBps"`
	MaxUnitsPerContract uint64   `toml:"MaxUnitsPerContract"`
	EventHistory        int      `toml:"EventHistory"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:       ":8082",
		DataDir:             "./escrowd-data",
		Environment:         "dev",
		Tokens:              []string{"USDT", "USDC"},
		ClientFeeBps:        300,
		ContractorFeeBps:    500,
		MaxUnitsPerContract: 64,
		EventHistory:        512,
	}
}

// Load loads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown keys: %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString("# escrowd node configuration\n\n"); err != nil {
		return nil, err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("config: at least one supported token required")
	}
	if c.ClientFeeBps > 10_000 || c.ContractorFeeBps > 10_000 {
		return fmt.Errorf("config: fee bps out of range")
	}
	if c.Treasury != "" {
		if _, err := ParseAddress(c.Treasury); err != nil {
			return fmt.Errorf("config: treasury: %w", err)
		}
	}
	for _, admin := range c.Admins {
		if _, err := ParseAddress(admin); err != nil {
			return fmt.Errorf("config: admin %q: %w", admin, err)
		}
	}
	for _, banned := range c.Blacklist {
		if _, err := ParseAddress(banned); err != nil {
			return fmt.Errorf("config: blacklist entry %q: %w", banned, err)
		}
	}
	return nil
}

// TreasuryAddress decodes the configured treasury address; zero when unset.
func (c *Config) TreasuryAddress() ([20]byte, error) {
	if strings.TrimSpace(c.Treasury) == "" {
		return [20]byte{}, nil
	}
	return ParseAddress(c.Treasury)
}

// AdminAddresses decodes the configured admin addresses.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	return parseAddresses(c.Admins)
}

// BlacklistAddresses decodes the configured blacklist.
func (c *Config) BlacklistAddresses() ([][20]byte, error) {
	return parseAddresses(c.Blacklist)
}

func parseAddresses(raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		addr, err := ParseAddress(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// ParseAddress decodes a 20-byte hex address with optional 0x prefix.
func ParseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != 20 {
		return [20]byte{}, fmt.Errorf("invalid address %q: want 20 bytes, got %d", raw, len(decoded))
	}
	var addr [20]byte
	copy(addr[:], decoded)
	return addr, nil
}
