// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration for the platform core. A missing file yields defaults;
// a present file is decoded over the defaults so omitted keys keep them.

package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-ftp/api"
)

// Socket backend names.
const (
	BackendAuto  = "auto"
	BackendPosix = "posix"
	BackendIPC   = "ipc"
)

// Config is the full configuration tree.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Socket SocketConfig `yaml:"socket"`
	VFS    VFSConfig    `yaml:"vfs"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig carries the options handed to the protocol engine.
type EngineConfig struct {
	User                 string        `yaml:"user"`
	Pass                 string        `yaml:"pass"`
	Port                 uint16        `yaml:"port"`
	Anon                 bool          `yaml:"anon"`
	ReadOnly             bool          `yaml:"read_only"`
	WriteAccountRequired bool          `yaml:"write_account_required"`
	Timeout              time.Duration `yaml:"timeout"`
}

// SocketConfig selects the socket leaf and poll strategy.
type SocketConfig struct {
	Backend    string `yaml:"backend"` // auto, posix or ipc
	Poll       string `yaml:"poll"`    // auto, native or select
	MaxSockets int    `yaml:"max_sockets"`
}

// VFSConfig describes the devices to register at startup.
type VFSConfig struct {
	FoldCase bool            `yaml:"fold_case"`
	Features api.VFSFeatures `yaml:"features"`
	Devices  []DeviceConfig  `yaml:"devices"`
}

// DeviceConfig is one mount. Path means the host root for fs and stdio
// devices, the database file for save devices and the mount directory for
// external devices. Parts maps partition names to image files for storage
// devices and to directories for game content devices.
type DeviceConfig struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Path     string            `yaml:"path,omitempty"`
	ReadOnly bool              `yaml:"read_only,omitempty"`
	Parts    map[string]string `yaml:"parts,omitempty"`
}

// LogConfig controls the zap logger built at startup.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns a configuration serving the working directory.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Port:    5000,
			Anon:    true,
			Timeout: 5 * time.Minute,
		},
		Socket: SocketConfig{
			Backend:    BackendAuto,
			Poll:       api.PollAuto.String(),
			MaxSockets: 64,
		},
		VFS: VFSConfig{
			Features: api.AllVFSFeatures(),
			Devices: []DeviceConfig{
				{Name: "sd", Kind: api.KindFS.String(), Path: "."},
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path. A missing file returns DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks every enumerated value and the device list.
func (c *Config) Validate() error {
	switch c.Socket.Backend {
	case BackendAuto, BackendPosix, BackendIPC:
	default:
		return fmt.Errorf("socket.backend: unknown backend %q", c.Socket.Backend)
	}
	if _, err := c.Socket.Strategy(); err != nil {
		return err
	}
	if c.Socket.MaxSockets <= 0 {
		return fmt.Errorf("socket.max_sockets: must be positive, got %d", c.Socket.MaxSockets)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout: negative duration %v", c.Engine.Timeout)
	}
	seen := make(map[string]bool, len(c.VFS.Devices))
	for i, d := range c.VFS.Devices {
		if err := d.validate(); err != nil {
			return fmt.Errorf("vfs.devices[%d]: %w", i, err)
		}
		key := d.Name
		if c.VFS.FoldCase {
			key = strings.ToLower(key)
		}
		if seen[key] {
			return fmt.Errorf("vfs.devices[%d]: duplicate name %q", i, d.Name)
		}
		seen[key] = true
	}
	return nil
}

func (d DeviceConfig) validate() error {
	if d.Name == "" {
		return fmt.Errorf("missing name")
	}
	k, err := d.DeviceKind()
	if err != nil {
		return err
	}
	switch k {
	case api.KindFS, api.KindSave, api.KindStdio, api.KindExternal:
		if d.Path == "" {
			return fmt.Errorf("%s device %q: missing path", k, d.Name)
		}
	case api.KindStorage, api.KindGameContent:
		if len(d.Parts) == 0 {
			return fmt.Errorf("%s device %q: no parts", k, d.Name)
		}
	default:
		return fmt.Errorf("device %q: kind %s cannot be configured", d.Name, k)
	}
	return nil
}

// DeviceKind parses the kind name.
func (d DeviceConfig) DeviceKind() (api.Kind, error) {
	k, ok := api.ParseKind(d.Kind)
	if !ok {
		return api.KindNone, fmt.Errorf("device %q: unknown kind %q", d.Name, d.Kind)
	}
	return k, nil
}

// Strategy parses the poll strategy name.
func (s SocketConfig) Strategy() (api.PollStrategy, error) {
	for _, p := range []api.PollStrategy{api.PollAuto, api.PollNative, api.PollSelect} {
		if s.Poll == p.String() {
			return p, nil
		}
	}
	return api.PollAuto, fmt.Errorf("socket.poll: unknown strategy %q", s.Poll)
}

// ZapLevel parses the log level.
func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// HostConfig converts the engine section to the shared engine vocabulary.
func (c *Config) HostConfig() api.HostConfig {
	e := c.Engine
	return api.HostConfig{
		User:                 e.User,
		Pass:                 e.Pass,
		Port:                 e.Port,
		Anon:                 e.Anon,
		ReadOnly:             e.ReadOnly,
		WriteAccountRequired: e.WriteAccountRequired,
		Timeout:              e.Timeout,
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
