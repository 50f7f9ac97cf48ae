// Package led implements a dimmable LED on a PWM driven GPIO pin.
package led

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Type is the component type name used in robot configs.
const Type = "led"

const (
	// DefaultPin is the header pin of the on board LED.
	DefaultPin = "31"
	// PWMFreqHz is fast enough that dimming does not flicker.
	PWMFreqHz = 100
)

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

// NewFromBoard grabs the configured pin from the board and returns an LED that is off.
func NewFromBoard(ctx context.Context, b board.Board, conf *Config, logger logging.Logger) (*LED, error) {
	pinName := conf.Pin
	if pinName == "" {
		pinName = DefaultPin
	}
	pin, err := b.GPIOPinByName(pinName)
	if err != nil {
		return nil, errors.Wrapf(err, "led: cannot grab pin %q", pinName)
	}
	name := conf.Name
	if name == "" {
		name = fmt.Sprintf("(%s)", pinName)
	}

	l := &LED{Named: resource.Named(name), pin: pin, debug: conf.Debug, logger: logger}
	if err := pin.SetPWMFreq(ctx, PWMFreqHz, nil); err != nil {
		return nil, errors.Wrapf(err, "led %s: cannot set pwm frequency", name)
	}
	if err := l.setIntensity(ctx, 0); err != nil {
		return nil, err
	}
	logger.Infof("LED interface '%s' initialised using pin: %s", name, pinName)
	return l, nil
}

// LED is a single LED whose brightness is the pin's duty cycle.
type LED struct {
	resource.Named

	mu        sync.Mutex
	pin       board.GPIOPin
	intensity float64
	debug     bool
	logger    logging.Logger
}

// expects l.mu to be held.
func (l *LED) setIntensity(ctx context.Context, pct float64) error {
	if err := l.pin.SetPWM(ctx, pct/100, nil); err != nil {
		return errors.Wrapf(err, "led %s", l.Name())
	}
	l.intensity = pct
	return nil
}

// On lights the LED fully.
func (l *LED) On(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debug {
		l.logger.Infof("Turning '%s' LED on", l.Name())
	}
	return l.setIntensity(ctx, 100)
}

// Off turns the LED off.
func (l *LED) Off(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debug {
		l.logger.Infof("Turning '%s' LED off", l.Name())
	}
	return l.setIntensity(ctx, 0)
}

// SetIntensity sets the brightness in percent, clamped to [0, 100].
func (l *LED) SetIntensity(ctx context.Context, pct float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pct = lo.Clamp(pct, 0, 100)
	if l.debug {
		l.logger.Infof("Setting '%s' LED intensity to %g", l.Name(), pct)
	}
	return l.setIntensity(ctx, pct)
}

// Intensity returns the brightness in percent.
func (l *LED) Intensity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intensity
}

// Close turns the LED off.
func (l *LED) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setIntensity(ctx, 0)
}
