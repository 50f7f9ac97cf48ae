// Package headerpin exposes the PiBot's expansion headers. J9 and J10 carry four general
// purpose pins each; J5 and J6 each carry one pin that can also drive PWM.
package headerpin

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Type is the component type name used in robot configs.
const Type = "header_pin"

// PWMFreqHz is the frequency of pins in pwm mode.
const PWMFreqHz = 20

// A Mode is the single use a header pin is set up for.
type Mode string

// The modes a header pin can be in.
const (
	ModeInput  = Mode("input")
	ModeOutput = Mode("output")
	ModePWM    = Mode("pwm")
)

// ErrWrongMode is returned when a pin is used in a mode it was not set up for.
var ErrWrongMode = errors.New("pin not configured for this mode")

// Headers maps each header to its positions and the board pin each position is wired to.
var Headers = map[int]map[int]int{
	9:  {1: 7, 2: 15, 3: 16, 4: 13},
	10: {1: 18, 2: 23, 3: 29, 4: 33},
	5:  {3: 35},
	6:  {3: 36},
}

var pwmHeaders = map[int]bool{5: true, 6: true}

// BoardPin returns the board pin behind a header position.
func BoardPin(header, position int) (int, error) {
	positions, ok := Headers[header]
	if !ok {
		return 0, errors.Errorf("there is no header J%d", header)
	}
	pin, ok := positions[position]
	if !ok {
		return 0, errors.Errorf("header J%d has no position %d", header, position)
	}
	return pin, nil
}

// Config is used for converting config attributes.
type Config struct {
	Header   int    `json:"header"`
	Position int    `json:"position"`
	Mode     Mode   `json:"mode"`
	Debug    bool   `json:"debug,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Header == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "header")
	}
	if conf.Position == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "position")
	}
	if _, err := BoardPin(conf.Header, conf.Position); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	switch conf.Mode {
	case ModeInput, ModeOutput:
	case ModePWM:
		if !pwmHeaders[conf.Header] {
			return utils.NewConfigValidationError(path, errors.New("PWM can only be used with J5 and J6"))
		}
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "mode")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown mode %q, expected input, output or pwm", conf.Mode))
	}
	return nil
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
				return nil, resource.NewUnexpectedTypeError(attrs, conf.ConvertedAttributes)
			}
			if attrs.Name == "" {
				attrs.Name = conf.Name
			}
			return NewFromBoard(ctx, b, attrs, logger)
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

// NewFromBoard validates the header position and mode, then grabs the pin from the board.
func NewFromBoard(ctx context.Context, b board.Board, conf *Config, logger logging.Logger) (*Pin, error) {
	if err := conf.Validate(Type); err != nil {
		return nil, err
	}
	port, err := BoardPin(conf.Header, conf.Position)
	if err != nil {
		return nil, err
	}
	gpio, err := b.GPIOPinByName(strconv.Itoa(port))
	if err != nil {
		return nil, errors.Wrapf(err, "header pin J%d P%d", conf.Header, conf.Position)
	}
	name := conf.Name
	if name == "" {
		name = fmt.Sprintf("(J%d,P%d)", conf.Header, conf.Position)
	}

	p := &Pin{
		Named:    resource.Named(name),
		header:   conf.Header,
		position: conf.Position,
		mode:     conf.Mode,
		gpio:     gpio,
		debug:    conf.Debug,
		logger:   logger,
	}
	if p.mode == ModePWM {
		if err := gpio.SetPWMFreq(ctx, PWMFreqHz, nil); err != nil {
			return nil, p.wrap(err)
		}
		if err := gpio.SetPWM(ctx, 0, nil); err != nil {
			return nil, p.wrap(err)
		}
	}
	logger.Infof("Interface %s on header J%d, position %d initialised", name, conf.Header, conf.Position)
	return p, nil
}

// Pin is one expansion header pin in a fixed mode.
type Pin struct {
	resource.Named
	resource.TriviallyCloseable

	mu       sync.Mutex
	header   int
	position int
	mode     Mode
	gpio     board.GPIOPin
	debug    bool
	logger   logging.Logger
}

func (p *Pin) wrap(err error) error {
	return errors.Wrapf(err, "pin %d on header J%d", p.position, p.header)
}

func (p *Pin) wrongMode(want Mode) error {
	if p.debug {
		p.logger.Infof("Pin %s not configured for %s", p.Name(), want)
	}
	return p.wrap(errors.Wrapf(ErrWrongMode, "set up for %s, not %s", p.mode, want))
}

// Mode returns the mode the pin was set up in.
func (p *Pin) Mode() Mode {
	return p.mode
}

// Output drives an output pin.
func (p *Pin) Output(ctx context.Context, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != ModeOutput {
		return p.wrongMode(ModeOutput)
	}
	if err := p.gpio.Set(ctx, high, nil); err != nil {
		return p.wrap(err)
	}
	if p.debug {
		p.logger.Infof("Output %d to Pin %d on header J%d", lo.Ternary(high, 1, 0), p.position, p.header)
	}
	return nil
}

// Input reads an input pin.
func (p *Pin) Input(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != ModeInput {
		return false, p.wrongMode(ModeInput)
	}
	high, err := p.gpio.Get(ctx, nil)
	if err != nil {
		return false, p.wrap(err)
	}
	if p.debug {
		p.logger.Infof("Read %d from Pin %d on header J%d", lo.Ternary(high, 1, 0), p.position, p.header)
	}
	return high, nil
}

// PWM sets the duty cycle of a pwm pin in percent, clamped to [0, 100].
func (p *Pin) PWM(ctx context.Context, pct float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != ModePWM {
		return p.wrongMode(ModePWM)
	}
	pct = lo.Clamp(pct, 0, 100)
	if err := p.gpio.SetPWM(ctx, pct/100, nil); err != nil {
		return p.wrap(err)
	}
	if p.debug {
		p.logger.Infof("Pin %d on header J%d set to %g%%", p.position, p.header, pct)
	}
	return nil
}
