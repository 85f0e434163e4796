// Copyright 2025 Kiln Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the string form carried
// in YAML ("250ms", "5s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config tunes a Backend. Start from DefaultConfig; the zero value fails
// validation.
type Config struct {
	// Workers is the number of goroutines executing scheduled tasks.
	Workers int `yaml:"workers"`

	// GCInterval is the period of the background pass that evicts cell
	// contents of registered tasks. Zero disables the pass; eviction can
	// still be requested explicitly.
	GCInterval Duration `yaml:"gc_interval"`

	// LogLevel is the backend logger's level ("trace", "debug", "info",
	// "warn", "error", "off").
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML config file. Missing keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration, not just the
// first.
func (c Config) Validate() error {
	var merr *multierror.Error
	if c.Workers <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.GCInterval < 0 {
		merr = multierror.Append(merr, fmt.Errorf("gc_interval must not be negative, got %s", time.Duration(c.GCInterval)))
	}
	if c.LogLevel == "" {
		merr = multierror.Append(merr, fmt.Errorf("log_level must not be empty"))
	}
	return merr.ErrorOrNil()
}
