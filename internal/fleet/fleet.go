package fleet

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Slot describes one managed server identity. The set of slots is fixed at
// construction time and never changes at runtime.
type Slot struct {
	Number     int    `toml:"number" mapstructure:"number"`
	Name       string `toml:"name" mapstructure:"name"`
	Port       int    `toml:"port" mapstructure:"port"`
	ConfigFile string `toml:"config" mapstructure:"config"`
}

// Paths locates the external artifacts the supervisor works with.
// Relative paths are resolved against BaseDir.
type Paths struct {
	BaseDir    string `toml:"base_dir" mapstructure:"base_dir"`
	ServerDir  string `toml:"server_dir" mapstructure:"server_dir"`
	LogsDir    string `toml:"logs_dir" mapstructure:"logs_dir"`
	ConfigsDir string `toml:"configs_dir" mapstructure:"configs_dir"`
	KeysDir    string `toml:"keys_dir" mapstructure:"keys_dir"`
}

// Commands are the external build-tool invocations the supervisor passes
// through to. Their output and semantics are owned by the build tool.
type Commands struct {
	Server       string `toml:"server" mapstructure:"server"`
	Build        string `toml:"build" mapstructure:"build"`
	GenerateKeys string `toml:"generate_keys" mapstructure:"generate_keys"`
}

// Config is the immutable fleet configuration handed to the supervisor at
// construction.
type Config struct {
	Host     string   `toml:"host" mapstructure:"host"`
	Slots    []Slot   `toml:"slots" mapstructure:"slots"`
	Paths    Paths    `toml:"paths" mapstructure:"paths"`
	Commands Commands `toml:"commands" mapstructure:"commands"`
}

// Default returns the compiled-in fleet: a bootstrap server and two client
// servers, matching the layout the chat servers are developed against.
func Default() Config {
	return Config{
		Host: "127.0.0.1",
		Slots: []Slot{
			{Number: 1, Name: "Bootstrap Server", Port: 3001, ConfigFile: "server1_config.yaml"},
			{Number: 2, Name: "Client Server 1", Port: 3002, ConfigFile: "server2_config.yaml"},
			{Number: 3, Name: "Client Server 2", Port: 3003, ConfigFile: "server3_config.yaml"},
		},
		Paths: Paths{
			BaseDir:    ".",
			ServerDir:  "../server",
			LogsDir:    "logs",
			ConfigsDir: "configs",
			KeysDir:    "keys",
		},
		Commands: Commands{
			Server:       "cargo run",
			Build:        "cargo build",
			GenerateKeys: "cargo run --bin generate_keys",
		},
	}
}

// Load reads a TOML overlay over Default from path. Fields absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read fleet config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse fleet config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the static invariants: at least one slot, positive slot
// numbers and ports, and uniqueness of both across the fleet.
func (c Config) Validate() error {
	if len(c.Slots) == 0 {
		return fmt.Errorf("fleet config defines no slots")
	}
	nums := make(map[int]struct{}, len(c.Slots))
	ports := make(map[int]struct{}, len(c.Slots))
	for _, s := range c.Slots {
		if s.Number <= 0 {
			return fmt.Errorf("slot number must be positive, got %d", s.Number)
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("slot %d: invalid port %d", s.Number, s.Port)
		}
		if s.Name == "" {
			return fmt.Errorf("slot %d: name is required", s.Number)
		}
		if _, dup := nums[s.Number]; dup {
			return fmt.Errorf("duplicate slot number %d", s.Number)
		}
		if _, dup := ports[s.Port]; dup {
			return fmt.Errorf("slot %d: port %d already used by another slot", s.Number, s.Port)
		}
		nums[s.Number] = struct{}{}
		ports[s.Port] = struct{}{}
	}
	return nil
}

// Slot returns the descriptor for a slot number.
func (c Config) Slot(n int) (Slot, bool) {
	for _, s := range c.Slots {
		if s.Number == n {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotNumbers returns all slot numbers in ascending order. StartAll relies on
// this ordering for its bootstrap sequencing.
func (c Config) SlotNumbers() []int {
	out := make([]int, 0, len(c.Slots))
	for _, s := range c.Slots {
		out = append(out, s.Number)
	}
	sort.Ints(out)
	return out
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.BaseDir, p)
}

// LogsDir returns the resolved directory holding pid records and log sinks.
func (c Config) LogsDir() string { return c.resolve(c.Paths.LogsDir) }

// ServerDir returns the resolved working directory for server invocations.
func (c Config) ServerDir() string { return c.resolve(c.Paths.ServerDir) }

// LogFile returns the per-slot log sink path.
func (c Config) LogFile(slot int) string {
	return filepath.Join(c.LogsDir(), fmt.Sprintf("server%d.log", slot))
}

// ConfigPath returns the resolved server configuration artifact for a slot.
// The content of the file is opaque to the supervisor.
func (c Config) ConfigPath(s Slot) string {
	return filepath.Join(c.resolve(c.Paths.ConfigsDir), s.ConfigFile)
}

// KeyFile returns the resolved private key path for a slot.
func (c Config) KeyFile(slot int) string {
	return filepath.Join(c.resolve(c.Paths.KeysDir), fmt.Sprintf("server%d_private_key.pem", slot))
}
