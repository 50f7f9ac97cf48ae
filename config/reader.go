package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/pibotlab/pibot/logging"
)

// Read reads a config from the given file. Environment variables referenced as $VAR or ${VAR}
// are substituted before parsing.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}

	cfg, err := FromReader(filePath, bytes.NewReader(buf), logger)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var cfg Config
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	cfg.ConfigFilePath = originalPath

	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	logger.Debugw("config read", "path", originalPath, "board", cfg.Board.Model, "components", len(cfg.Components))
	return &cfg, nil
}

// Default returns the stock robot layout: an ultrasonic sensor on header pins 11/12, the
// four-motor drive base, an LED on pin 31 and a line follower on pin 22.
func Default(boardModel string) *Config {
	return &Config{
		Board: Board{Model: boardModel},
		Components: []Component{
			{Name: "sonar", Type: "ultrasonic", Attributes: AttributeMap{"trigger_pin": "11", "echo_pin": "12"}},
			{Name: "base", Type: "base"},
			{Name: "led", Type: "led", Attributes: AttributeMap{"pin": "31"}},
			{Name: "line", Type: "line_follower", Attributes: AttributeMap{"pin": "22"}},
		},
	}
}
