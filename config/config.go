// Package config loads the YAML configuration of systrace
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/criyle/go-systrace/types"
)

// Config is the root of the configuration file
type Config struct {
	Log    Log    `yaml:"log"`
	Policy Policy `yaml:"policy"`
	Files  Files  `yaml:"files"`
	Runner Runner `yaml:"runner"`
	Tracer Tracer `yaml:"tracer"`
}

// Log configures the logger
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Policy configures the policy record of the root tracee
type Policy struct {
	// Preset "safe" permits the syscalls that need no argument checks
	Preset       string         `yaml:"preset"`
	Default      string         `yaml:"default"`
	DefaultErrno string         `yaml:"default_errno"`
	Permit       []string       `yaml:"permit"`
	Ask          []string       `yaml:"ask"`
	Deny         []DenyRule     `yaml:"deny"`
	Result       []string       `yaml:"result"`
	Count        map[string]int `yaml:"count"`
	Emulation    string         `yaml:"emulation"`
}

// DenyRule denies one syscall, with DefaultErrno if Errno is empty
type DenyRule struct {
	Name  string `yaml:"name"`
	Errno string `yaml:"errno"`
}

// Files restricts the file access syscalls that reach the decider.
// Relative paths name subtrees of the work directory.
type Files struct {
	Defaults bool     `yaml:"defaults"`
	Read     []string `yaml:"read"`
	Write    []string `yaml:"write"`
	Stat     []string `yaml:"stat"`
}

// Runner configures how the tracee is started
type Runner struct {
	Seccomp bool     `yaml:"seccomp"`
	WorkDir string   `yaml:"workdir"`
	Env     []string `yaml:"env"` // the environment is inherited if empty
	Limits  Limits   `yaml:"limits"`
}

// Limits are the resource limits of the root tracee, zero means unlimited
type Limits struct {
	CPU          uint64     `yaml:"cpu"` // in s
	CPUHard      uint64     `yaml:"cpu_hard"`
	Data         types.Size `yaml:"data"`
	Stack        types.Size `yaml:"stack"`
	AddressSpace types.Size `yaml:"address_space"`
	FileSize     types.Size `yaml:"file_size"`
	OpenFiles    uint64     `yaml:"open_files"`
	DisableCore  bool       `yaml:"disable_core"`
}

// Tracer configures the interception state machine
type Tracer struct {
	ForceEndWithoutENOSYS bool `yaml:"force_end_without_enosys"`
}

// Default returns the configuration used without a file
func Default() *Config {
	return &Config{
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Policy: Policy{
			Default:      "ask",
			DefaultErrno: "EPERM",
			Emulation:    EmulationLinux64,
		},
		Runner: Runner{Seccomp: true},
		Tracer: Tracer{ForceEndWithoutENOSYS: true},
	}
}

// Load reads and validates the configuration at path
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a configuration over the defaults. Unknown fields are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values that do not need a syscall table
func (c *Config) Validate() error {
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: negative rotation setting")
	}
	if err := c.Policy.validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Runner.Seccomp && c.Policy.Emulation == EmulationBoth {
		// the prefilter only matches native calls, deny rules would not bind 32-bit ones
		return fmt.Errorf("runner.seccomp requires policy.emulation %s", EmulationLinux64)
	}
	return nil
}
