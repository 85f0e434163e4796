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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-quicktest/qt"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.yaml")
	qt.Assert(t, qt.IsNil(os.WriteFile(path, []byte(contents), 0o666)))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
workers: 3
gc_interval: 250ms
log_level: debug
`)
	cfg, err := LoadConfig(path)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(cfg.Workers, 3))
	qt.Assert(t, qt.Equals(time.Duration(cfg.GCInterval), 250*time.Millisecond))
	qt.Assert(t, qt.Equals(cfg.LogLevel, "debug"))
}

func TestLoadConfigDefaults(t *testing.T) {
	// Missing keys keep their defaults.
	path := writeConfig(t, `workers: 2`)
	cfg, err := LoadConfig(path)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(cfg.Workers, 2))
	qt.Assert(t, qt.Equals(time.Duration(cfg.GCInterval), time.Duration(0)))
	qt.Assert(t, qt.Equals(cfg.LogLevel, DefaultConfig().LogLevel))
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `gc_interval: soon`)
	_, err := LoadConfig(path)
	qt.Assert(t, qt.ErrorMatches(err, `(?s).*invalid duration "soon".*`))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	qt.Assert(t, qt.ErrorMatches(err, `reading config: .*`))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Workers: 0, LogLevel: ""}
	err := cfg.Validate()
	qt.Assert(t, qt.IsNotNil(err))
	// Both problems are reported, not just the first.
	qt.Assert(t, qt.ErrorMatches(err, `(?s).*workers must be positive.*`))
	qt.Assert(t, qt.ErrorMatches(err, `(?s).*log_level must not be empty.*`))

	qt.Assert(t, qt.IsNil(DefaultConfig().Validate()))
}
