// Package fake implements a fake board.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Model is the board model name for the fake board.
const Model = "fake"

// A Config describes the configuration of a fake board.
type Config struct {
	// Pins, if set, restricts which pin names exist on the board.
	Pins    []string `json:"pins,omitempty"`
	FailNew bool     `json:"fail_new"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.FailNew {
		return errors.New("whoops")
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
			return NewBoard(Model, attrs, logger), nil
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

// NewBoard returns a new fake board.
func NewBoard(name string, conf *Config, logger logging.Logger) *Board {
	b := &Board{
		Named:    resource.Named(name),
		GPIOPins: map[string]*GPIOPin{},
		logger:   logger,
	}
	if len(conf.Pins) > 0 {
		b.allowed = make(map[string]struct{}, len(conf.Pins))
		for _, pin := range conf.Pins {
			b.allowed[pin] = struct{}{}
		}
	}
	return b
}

// A Board provides dummy pins that read back what was written to them.
type Board struct {
	resource.Named

	mu         sync.Mutex
	GPIOPins   map[string]*GPIOPin
	allowed    map[string]struct{}
	logger     logging.Logger
	CloseCount int
}

// GPIOPinByName returns the GPIO pin by the given name, creating it on first use.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name)
}

// Pin is GPIOPinByName returning the concrete fake pin, for tests that want to inspect it.
func (b *Board) Pin(name string) (*GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowed != nil {
		if _, ok := b.allowed[name]; !ok {
			return nil, errors.Errorf("no pin named %q on fake board", name)
		}
	}
	p, ok := b.GPIOPins[name]
	if !ok {
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p, nil
}

// Close counts how many times the board was closed.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	return nil
}

// A GPIOPin reads back the same set values.
type GPIOPin struct {
	high    bool
	pwm     float64
	pwmFreq uint
	sets    int

	mu sync.Mutex
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.high = high
	gp.pwm = 0
	gp.sets++
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.high, nil
}

// PWM gets the pin's given duty cycle.
func (gp *GPIOPin) PWM(ctx context.Context, extra map[string]interface{}) (float64, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwm, nil
}

// SetPWM sets the pin to the given duty cycle.
func (gp *GPIOPin) SetPWM(ctx context.Context, dutyCyclePct float64, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.pwm = dutyCyclePct
	return nil
}

// PWMFreq gets the PWM frequency of the pin.
func (gp *GPIOPin) PWMFreq(ctx context.Context, extra map[string]interface{}) (uint, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwmFreq, nil
}

// SetPWMFreq sets the given pin to the given PWM frequency.
func (gp *GPIOPin) SetPWMFreq(ctx context.Context, freqHz uint, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.pwmFreq = freqHz
	return nil
}

// SetCount returns how many times Set was called on the pin.
func (gp *GPIOPin) SetCount() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.sets
}
