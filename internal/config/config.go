// Package config loads the k32w-flasher settings file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bigbag/k32w-flasher/internal/isp"
	"github.com/bigbag/k32w-flasher/internal/protocol"
	"github.com/bigbag/k32w-flasher/internal/serial"
)

// DefaultUSBID is the FTDI FT230X bridge found on K32W061 dongles.
const DefaultUSBID = "0403:6015"

// DefaultResponseTimeout bounds every read of a response.
const DefaultResponseTimeout = 5 * time.Second

// Config holds the k32w-flasher configuration.
type Config struct {
	Port            string        `yaml:"port"`
	Baud            int           `yaml:"baud"`
	Speed           uint32        `yaml:"speed"`
	Transport       string        `yaml:"transport"`
	UnlockKey       string        `yaml:"unlock_key"`
	ChunkSize       int           `yaml:"chunk_size"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	USBIDs          []string      `yaml:"usb_ids"`
	EnterBootloader bool          `yaml:"enter_bootloader"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Baud:            protocol.DefaultBaudRate,
		Transport:       string(serial.KindSerial),
		UnlockKey:       hex.EncodeToString(protocol.DefaultUnlockKey),
		ChunkSize:       protocol.WriteChunkSize,
		ResponseTimeout: DefaultResponseTimeout,
		USBIDs:          []string{DefaultUSBID},
		EnterBootloader: true,
	}
}

// DefaultPath returns the default config file path: ~/.k32w-flasher.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".k32w-flasher.yaml"
	}
	return filepath.Join(home, ".k32w-flasher.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns Default() with no error.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail mid-session.
func (c *Config) Validate() error {
	switch serial.Kind(c.Transport) {
	case serial.KindSerial, serial.KindRaw:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", serial.KindSerial, serial.KindRaw, c.Transport)
	}

	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	}

	if c.ChunkSize <= 0 || c.ChunkSize > isp.MaxChunkSize {
		return fmt.Errorf("chunk_size must be in 1..%d, got %d", isp.MaxChunkSize, c.ChunkSize)
	}

	if c.ResponseTimeout < 0 {
		return fmt.Errorf("response_timeout must not be negative, got %s", c.ResponseTimeout)
	}

	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// Key decodes UnlockKey. Spaces and colons between bytes are ignored.
// An empty key selects the unlock-without-key mode.
func (c *Config) Key() ([]byte, error) {
	return ParseKey(c.UnlockKey)
}

// ParseKey decodes a hex unlock key such as "11:22:33:...".
func ParseKey(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	if s == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("unlock_key: %w", err)
	}
	if len(key) != protocol.UnlockKeySize {
		return nil, fmt.Errorf("unlock_key: %w: %d bytes", protocol.ErrInvalidKey, len(key))
	}
	return key, nil
}
