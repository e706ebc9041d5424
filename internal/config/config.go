/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables and command line flags are read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `koanf:"config_version" yaml:"config_version"`
	General       GeneralConfig   `koanf:"general" yaml:"general"`
	Bridge        BridgeConfig    `koanf:"bridge" yaml:"bridge"`
	Storage       StorageConfig   `koanf:"storage" yaml:"storage"`
	Backup        BackupConfig    `koanf:"backup" yaml:"backup"`
	Logging       LoggingConfig   `koanf:"logging" yaml:"logging"`
	Telemetry     TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

type GeneralConfig struct {
	// DefaultInstallPath is where the install directory picker opens.
	DefaultInstallPath string `koanf:"default_install_path" yaml:"default_install_path"`
	Theme              string `koanf:"theme" yaml:"theme"` // "system" | "light" | "dark"
	ConfirmSave        bool   `koanf:"confirm_save" yaml:"confirm_save"`
}

// BridgeConfig locates the macro executables.
type BridgeConfig struct {
	// BinDir holds the executables; empty means the directory of the running program.
	BinDir    string `koanf:"bin_dir" yaml:"bin_dir"`
	TimeoutMs int    `koanf:"timeout_ms" yaml:"timeout_ms"`
	// Launcher is a command prefix such as "wine", split on spaces.
	Launcher  string `koanf:"launcher" yaml:"launcher"`
	ExportExe string `koanf:"export_exe" yaml:"export_exe"`
	ImportExe string `koanf:"import_exe" yaml:"import_exe"`
	BooksExe  string `koanf:"books_exe" yaml:"books_exe"`
}

type StorageConfig struct {
	// StatePath is the SQLite state database; empty means next to the config file.
	StatePath     string `koanf:"state_path" yaml:"state_path"`
	KeepSnapshots int    `koanf:"keep_snapshots" yaml:"keep_snapshots"`
}

// BackupConfig enables the remote mirror. The DSN is not stored on disk; it lives in the OS keyring.
type BackupConfig struct {
	RemoteEnabled bool `koanf:"remote_enabled" yaml:"remote_enabled"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	Source bool   `koanf:"source" yaml:"source"`
	File   string `koanf:"file" yaml:"file"`
}

type TelemetryConfig struct {
	OptIn     bool   `koanf:"opt_in" yaml:"opt_in"`
	EventsURL string `koanf:"events_url" yaml:"events_url"`
}

// DefaultInstallPath is the usual Windows install location of the game.
const DefaultInstallPath = `C:\Program Files (x86)\PlayOnline\SquareEnix`

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{DefaultInstallPath: DefaultInstallPath, Theme: "system", ConfirmSave: true},
		Bridge: BridgeConfig{
			TimeoutMs: 30000,
			ExportExe: "ximacro_e.exe",
			ImportExe: "ximacro_i.exe",
			BooksExe:  "ximacro_b.exe",
		},
		Storage: StorageConfig{KeepSnapshots: 20},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func defaultsMap() map[string]interface{} {
	d := Defaults()
	return map[string]interface{}{
		"config_version":               d.ConfigVersion,
		"general.default_install_path": d.General.DefaultInstallPath,
		"general.theme":                d.General.Theme,
		"general.confirm_save":         d.General.ConfirmSave,
		"bridge.timeout_ms":            d.Bridge.TimeoutMs,
		"bridge.export_exe":            d.Bridge.ExportExe,
		"bridge.import_exe":            d.Bridge.ImportExe,
		"bridge.books_exe":             d.Bridge.BooksExe,
		"storage.keep_snapshots":       d.Storage.KeepSnapshots,
		"logging.level":                d.Logging.Level,
		"logging.format":               d.Logging.Format,
	}
}

// Env var names used as overrides.
const (
	EnvInstallPath    = "XIM_DEFAULT_INSTALL_PATH"
	EnvBinDir         = "XIM_BIN_DIR"
	EnvTimeoutMs      = "XIM_TIMEOUT_MS"
	EnvLauncher       = "XIM_LAUNCHER"
	EnvStatePath      = "XIM_STATE_PATH"
	EnvKeepSnapshots  = "XIM_KEEP_SNAPSHOTS"
	EnvRemoteEnabled  = "XIM_REMOTE_ENABLED"
	EnvTelemetryOptIn = "XIM_TELEMETRY_OPT_IN"
	EnvTelemetryURL   = "XIM_TELEMETRY_URL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "XIM_LOG_LEVEL"
	EnvLogFormat = "XIM_LOG_FORMAT"
	EnvLogSource = "XIM_LOG_SOURCE"
	EnvLogFile   = "XIM_LOG_FILE"
	// EnvRemoteDSN overrides the keyring DSN; it never reaches the YAML file.
	EnvRemoteDSN = "XIM_PG_DSN"
)

var envKeys = map[string]string{
	EnvInstallPath:    "general.default_install_path",
	EnvBinDir:         "bridge.bin_dir",
	EnvTimeoutMs:      "bridge.timeout_ms",
	EnvLauncher:       "bridge.launcher",
	EnvStatePath:      "storage.state_path",
	EnvKeepSnapshots:  "storage.keep_snapshots",
	EnvRemoteEnabled:  "backup.remote_enabled",
	EnvTelemetryOptIn: "telemetry.opt_in",
	EnvTelemetryURL:   "telemetry.events_url",
	EnvLogLevel:       "logging.level",
	EnvLogFormat:      "logging.format",
	EnvLogSource:      "logging.source",
	EnvLogFile:        "logging.file",
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"bin-dir":   "bridge.bin_dir",
	"timeout":   "bridge.timeout_ms",
	"launcher":  "bridge.launcher",
	"state":     "storage.state_path",
	"log-level": "logging.level",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default is the per-user config.yaml)")
	fs.String("bin-dir", "", "directory holding the macro executables")
	fs.Int("timeout", 0, "executable timeout in milliseconds")
	fs.String("launcher", "", `command prefix for the executables, e.g. "wine"`)
	fs.String("state", "", "state database path")
	fs.String("log-level", "", "debug|info|warn|error")
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "XIMacro")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "XIMacro")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "ximacro")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "ximacro")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load layers defaults, the YAML file at path (the per-user file when empty), XIM_*
// environment variables and the changed flags of fs (may be nil), in that order.
func Load(path string, fs *pflag.FlagSet) (AppConfig, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return Defaults(), fmt.Errorf("failed to load defaults: %w", err)
	}
	if path == "" && fs != nil {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Defaults(), err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return Defaults(), fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("XIM_", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return Defaults(), fmt.Errorf("failed to load env vars: %w", err)
	}
	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return Defaults(), fmt.Errorf("failed to load flags: %w", err)
		}
	}
	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return Defaults(), fmt.Errorf("unable to decode config: %w", err)
	}
	normalize(&cfg, path)
	return cfg, nil
}

func normalize(cfg *AppConfig, path string) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if cfg.Bridge.TimeoutMs <= 0 {
		cfg.Bridge.TimeoutMs = Defaults().Bridge.TimeoutMs
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = filepath.Join(filepath.Dir(path), "state.sqlite")
	}
}

// Save writes the user config YAML to path (the per-user file when empty).
func Save(path string, cfg AppConfig) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for name, k := range envKeys {
		if k == key && os.Getenv(name) != "" {
			return name, true
		}
	}
	return "", false
}

// Timeout returns the executable timeout.
func (b BridgeConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Bridge.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// LauncherArgs splits Launcher into an argument vector.
func (b BridgeConfig) LauncherArgs() []string { return strings.Fields(b.Launcher) }

// Dir returns BinDir, or the directory of the running program when it is empty.
func (b BridgeConfig) Dir() string {
	if b.BinDir != "" {
		return b.BinDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
