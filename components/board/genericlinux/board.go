// Package genericlinux implements a board on any Linux host exposing its GPIO lines through a
// character device such as /dev/gpiochip0.
package genericlinux

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/pibotlab/pibot/components/board"
	picommon "github.com/pibotlab/pibot/components/board/pi/common"
	"github.com/pibotlab/pibot/components/board/pinwrappers"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
)

// Model is the board model name for a character device backed board.
const Model = "genericlinux"

// DefaultGPIOChip is the character device opened when none is configured.
const DefaultGPIOChip = "/dev/gpiochip0"

// A Config describes the configuration of a genericlinux board.
type Config struct {
	GPIOChip string `json:"gpio_chip,omitempty"`
	// Pins maps pin names to line offsets on the chip. Without it, pins are Raspberry Pi header
	// positions whose offsets are their BCM numbers.
	Pins map[string]int `json:"pins,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for name, offset := range conf.Pins {
		if name == "" {
			return utils.NewConfigValidationError(path, errors.New("pin names must not be empty"))
		}
		if offset < 0 {
			return utils.NewConfigValidationError(path,
				errors.Errorf("pin %q has negative line offset %d", name, offset))
		}
	}
	return nil
}

func init() {
	registry.RegisterBoard(Model, registry.Board{
		Constructor: func(ctx context.Context, conf config.Board, logger logging.Logger) (board.Board, error) {
			attrs, ok := conf.ConvertedAttributes.(*Config)
			if !ok {
				attrs = &Config{}
			}
			return NewBoard(ctx, Model, attrs, logger)
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

// NewBoard returns a board opening lines of the configured chip on demand.
func NewBoard(ctx context.Context, name string, conf *Config, logger logging.Logger) (*pinwrappers.LineBoard, error) {
	if err := conf.Validate(Model); err != nil {
		return nil, err
	}
	chip := conf.GPIOChip
	if chip == "" {
		chip = DefaultGPIOChip
	}
	logger.Infow("genericlinux board ready", "gpio_chip", chip, "mapped_pins", len(conf.Pins))
	return pinwrappers.NewLineBoard(name, func(pinName string) (pinwrappers.DigitalLine, error) {
		offset, err := lineOffset(conf.Pins, pinName)
		if err != nil {
			return nil, err
		}
		return newChardevLine(chip, uint32(offset), logger), nil
	}, logger), nil
}

func lineOffset(pins map[string]int, name string) (int, error) {
	if len(pins) == 0 {
		return picommon.BCMForHeaderPin(name)
	}
	if offset, ok := pins[name]; ok {
		return offset, nil
	}
	// a bare number that is not mapped is taken as a line offset.
	offset, err := strconv.Atoi(name)
	if err != nil || offset < 0 {
		return 0, errors.Errorf("no pin named %q in the pins mapping", name)
	}
	return offset, nil
}
