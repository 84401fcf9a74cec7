// Package config loads rustify.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the config file looked up in the working directory.
const FileName = "rustify.toml"

// Config is the decoded rustify.toml. Keys absent from the file keep their
// Default values.
type Config struct {
	Accelerate Accelerate `toml:"accelerate"`
	Unit       Unit       `toml:"unit"`

	// Path is the file the config was read from; empty for defaults.
	Path string `toml:"-"`
	meta toml.MetaData
}

// Accelerate holds defaults for `rustify accelerate`.
type Accelerate struct {
	Threshold       float32 `toml:"threshold"`
	Iterations      uint32  `toml:"iterations"`
	BenchIterations int     `toml:"bench_iterations"`
	Output          string  `toml:"output"`
	MLMode          bool    `toml:"ml_mode"`
	Python          string  `toml:"python,omitempty"`
	Maturin         string  `toml:"maturin"`
	MaxTargets      int     `toml:"max_targets"`
}

// Unit holds settings for the generated Rust package.
type Unit struct {
	Name         string `toml:"name"`
	PyO3Version  string `toml:"pyo3_version"`
	NumpyVersion string `toml:"numpy_version"`
	Edition      string `toml:"edition"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Accelerate: Accelerate{
			Threshold:       10,
			Iterations:      100,
			BenchIterations: 1000,
			Output:          "dist",
			Maturin:         "maturin",
		},
		Unit: Unit{
			Name:         "rustify_ml_ext",
			PyO3Version:  "0.21",
			NumpyVersion: "0.21",
			Edition:      "2021",
		},
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads the config at path.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	cfg.meta = meta
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find loads dir/rustify.toml when it exists and returns Default otherwise.
func Find(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return Load(path)
}

// IsSet reports whether the file explicitly set the key.
func (c Config) IsSet(key ...string) bool {
	return c.meta.IsDefined(key...)
}

func (c Config) validate() error {
	if c.IsSet("accelerate", "iterations") && c.Accelerate.Iterations == 0 {
		return errors.New("[accelerate].iterations must be at least 1")
	}
	if c.IsSet("accelerate", "max_targets") && c.Accelerate.MaxTargets < 0 {
		return errors.New("[accelerate].max_targets must not be negative")
	}
	if c.IsSet("accelerate", "output") && strings.TrimSpace(c.Accelerate.Output) == "" {
		return errors.New("[accelerate].output must not be empty")
	}
	if c.IsSet("unit", "name") && !identRe.MatchString(c.Unit.Name) {
		return fmt.Errorf("[unit].name %q is not a valid Rust identifier", c.Unit.Name)
	}
	return nil
}

// Encode renders c as TOML, prefixed with a header comment.
func (c Config) Encode() (string, error) {
	var buf bytes.Buffer
	buf.WriteString("# rustify configuration. Command-line flags override these values.\n\n")
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}
