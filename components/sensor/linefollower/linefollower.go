// Package linefollower implements a reflective line sensor: a single digital input that reads
// high over the line.
package linefollower

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Type is the component type name used in robot configs.
const Type = "line_follower"

// DefaultPin is the header pin the sensor is wired to on the PiBot.
const DefaultPin = "22"

// Config is used for converting config attributes.
type Config struct {
	Pin   string `json:"pin,omitempty"`
	Debug bool   `json:"debug,omitempty"`
	Name  string `json:"name,omitempty"`
}

func init() {
	registry.RegisterComponent(Type, registry.Component{
		Constructor: func(
			ctx context.Context,
			b board.Board,
			conf config.Component,
			logger logging.Logger,
		) (resource.Resource, error) {
			attrs, ok := conf.ConvertedAttributes.(*Config)
			if !ok {
				attrs = &Config{}
			}
			if attrs.Name == "" {
				attrs.Name = conf.Name
			}
			return NewFromBoard(ctx, b, attrs, logger)
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

// NewFromBoard grabs the configured pin from the board.
func NewFromBoard(ctx context.Context, b board.Board, conf *Config, logger logging.Logger) (*LineFollower, error) {
	pinName := conf.Pin
	if pinName == "" {
		pinName = DefaultPin
	}
	pin, err := b.GPIOPinByName(pinName)
	if err != nil {
		return nil, errors.Wrapf(err, "line follower: cannot grab pin %q", pinName)
	}
	name := conf.Name
	if name == "" {
		name = fmt.Sprintf("(%s)", pinName)
	}
	logger.Infof("Line follower interface %s initialised using pin: %s", name, pinName)
	return &LineFollower{Named: resource.Named(name), pin: pin, debug: conf.Debug, logger: logger}, nil
}

// LineFollower reads the line sensor.
type LineFollower struct {
	resource.Named
	resource.TriviallyCloseable

	pin    board.GPIOPin
	debug  bool
	logger logging.Logger
}

// Read returns whether the sensor sees the line.
func (lf *LineFollower) Read(ctx context.Context) (bool, error) {
	onLine, err := lf.pin.Get(ctx, nil)
	if err != nil {
		return false, errors.Wrapf(err, "line follower %s", lf.Name())
	}
	if lf.debug {
		lf.logger.Infow(fmt.Sprintf("Line follower %s returned: %t", lf.Name(), onLine))
	}
	return onLine, nil
}

// Readings returns the sensor value in a map, the way a generic sensor reports.
func (lf *LineFollower) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	onLine, err := lf.Read(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"on_line": onLine}, nil
}
