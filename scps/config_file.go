package scps

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scpslabs/go-scps/logger"
)

// FileConfig is the YAML representation of a controller setup:
//
//	port: COM9
//	responseTimeout: 2s
//	settleDelay: 2s
//	terminator: <SCPS_EOM>
//	logLevel: debug
//
// Zero values keep the defaults.
type FileConfig struct {
	Port              string         `yaml:"port"`
	ResponseTimeout   time.Duration  `yaml:"responseTimeout"`
	SettleDelay       *time.Duration `yaml:"settleDelay"`
	Terminator        string         `yaml:"terminator"`
	ConnectionTestAck string         `yaml:"connectionTestAck"`
	LogLevel          string         `yaml:"logLevel"`
}

// LoadConfigFile reads and parses the YAML file at path.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scps: read config: %w", err)
	}

	fc, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("scps: config %s: %w", path, err)
	}

	return fc, nil
}

// ParseConfig parses YAML config data. Unknown keys are rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	fc := &FileConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if _, err := logger.ParseLevel(fc.LogLevel); err != nil {
		return nil, err
	}

	return fc, nil
}

// Level returns the configured log level, InfoLevel when unset.
func (fc *FileConfig) Level() logger.Level {
	level, _ := logger.ParseLevel(fc.LogLevel)
	return level
}

// Options converts the file settings into controller options.
func (fc *FileConfig) Options() []ConnOption {
	var opts []ConnOption

	if fc.ResponseTimeout != 0 {
		opts = append(opts, WithResponseTimeout(fc.ResponseTimeout))
	}
	if fc.SettleDelay != nil {
		opts = append(opts, WithSettleDelay(*fc.SettleDelay))
	}
	if fc.Terminator != "" {
		opts = append(opts, WithTerminator(fc.Terminator))
	}
	if fc.ConnectionTestAck != "" {
		opts = append(opts, WithConnectionTestAck(fc.ConnectionTestAck))
	}

	return opts
}
