// Package pibot implements the four motor skid steer base of the PiBot: each wheel has a single
// PWM pin, the two wheels of a side turning in opposite directions.
package pibot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/pibotlab/pibot/components/base"
	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Motor indexes into the pin list.
const (
	RightForward = iota
	RightBackward
	LeftBackward
	LeftForward
	numMotors
)

const (
	// DefaultSpeed is the speed a new base moves at.
	DefaultSpeed = 50.0
	// DefaultPWMFreqHz drives the motor pins.
	DefaultPWMFreqHz = 20
	// MaxTrim bounds the trim in both directions.
	MaxTrim = 25.0
)

// DefaultPins are the header pins of the motors in RightForward, RightBackward, LeftBackward,
// LeftForward order.
var DefaultPins = []string{"24", "26", "21", "19"}

// Config is how you configure a pibot base.
type Config struct {
	Pins      []string `json:"pins,omitempty"`
	PWMFreqHz uint     `json:"pwm_freq_hz,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Trim      float64  `json:"trim,omitempty"`
	Debug     bool     `json:"debug,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if len(cfg.Pins) == 0 {
		return nil
	}
	if len(cfg.Pins) != numMotors {
		return utils.NewConfigValidationError(path,
			errors.Errorf("need %d motor pins (right forward, right backward, left backward, left forward), not %d",
				numMotors, len(cfg.Pins)))
	}
	if dups := lo.FindDuplicates(cfg.Pins); len(dups) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("motor pins used twice: %v", dups))
	}
	for idx, pin := range cfg.Pins {
		if pin == "" {
			return utils.NewConfigValidationFieldRequiredError(path, fmt.Sprintf("pins.%d", idx))
		}
	}
	return nil
}

func init() {
	registry.RegisterComponent(base.Type, registry.Component{
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
			return NewBase(ctx, conf.Name, b, attrs, logger)
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

// Base drives the four motors.
type Base struct {
	resource.Named

	mu     sync.Mutex
	motors [numMotors]board.GPIOPin
	duty   [numMotors]float64
	speed  float64
	trim   float64
	state  base.State
	// opID is bumped by every command so a timed Drive only stops the motion it started.
	opID int

	debug  bool
	clock  clock.Clock
	logger logging.Logger
}

// NewBase grabs the motor pins from the board and leaves the motors stopped.
func NewBase(ctx context.Context, name string, b board.Board, conf *Config, logger logging.Logger) (*Base, error) {
	return newBase(ctx, name, b, conf, clock.New(), logger)
}

func newBase(
	ctx context.Context,
	name string,
	b board.Board,
	conf *Config,
	clk clock.Clock,
	logger logging.Logger,
) (*Base, error) {
	if err := conf.Validate(base.Type); err != nil {
		return nil, err
	}
	pins := conf.Pins
	if len(pins) == 0 {
		pins = DefaultPins
	}
	freq := conf.PWMFreqHz
	if freq == 0 {
		freq = DefaultPWMFreqHz
	}
	speed := DefaultSpeed
	if conf.Speed != nil {
		speed = *conf.Speed
	}

	pb := &Base{
		Named:  resource.Named(name),
		speed:  lo.Clamp(speed, 0, 100),
		trim:   lo.Clamp(conf.Trim, -MaxTrim, MaxTrim),
		debug:  conf.Debug,
		clock:  clk,
		logger: logger,
	}
	for i, pinName := range pins {
		pin, err := b.GPIOPinByName(pinName)
		if err != nil {
			return nil, errors.Wrapf(err, "no motor pin named (%s)", pinName)
		}
		if err := pin.SetPWMFreq(ctx, freq, nil); err != nil {
			return nil, errors.Wrapf(err, "cannot set pwm frequency of motor pin %s", pinName)
		}
		if err := pin.SetPWM(ctx, 0, nil); err != nil {
			return nil, errors.Wrapf(err, "cannot stop motor pin %s", pinName)
		}
		pb.motors[i] = pin
	}
	pb.report("PiBot init method run", logger.Debugw)
	return pb, nil
}

func (pb *Base) report(msg string, fallback func(string, ...interface{})) {
	kvs := []interface{}{"base", pb.Name(), "state", pb.state.String(), "duty", pb.duty}
	if pb.debug {
		pb.logger.Infow(msg, kvs...)
		return
	}
	fallback(msg, kvs...)
}

// expects pb.mu to be held. duty is in percent.
func (pb *Base) setDuty(ctx context.Context, duty [numMotors]float64) error {
	var err error
	for i, pin := range pb.motors {
		err = multierr.Combine(err, pin.SetPWM(ctx, duty[i]/100, nil))
	}
	pb.duty = duty
	return err
}

// speeds returns the per motor speed a state runs each motor at. Near the ends of the range the
// left side gives up headroom so the trim difference between the sides is kept.
func (pb *Base) speeds() [numMotors]float64 {
	left := pb.speed
	switch {
	case left+pb.trim > 100:
		left = 100 - pb.trim
	case left+pb.trim < 0:
		left = -pb.trim
	}
	right := lo.Clamp(left+pb.trim, 0, 100)
	return [numMotors]float64{right, right, left, left}
}

// expects pb.mu to be held.
func (pb *Base) setState(ctx context.Context, state base.State, msg string) error {
	pb.state = state
	pb.opID++
	// every motor is stopped before the new ones start, so a side never runs both ways.
	if err := pb.setDuty(ctx, [numMotors]float64{}); err != nil {
		return err
	}
	var duty [numMotors]float64
	speeds := pb.speeds()
	for i := range duty {
		if state&(1<<i) != 0 {
			duty[i] = speeds[i]
		}
	}
	err := pb.setDuty(ctx, duty)
	pb.report(msg, pb.logger.Debugw)
	return err
}

// Move puts the motors in the given state at the current speed.
func (pb *Base) Move(ctx context.Context, state base.State) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.setState(ctx, state, state.String())
}

// Forward drives both sides forward.
func (pb *Base) Forward(ctx context.Context) error {
	return pb.Move(ctx, base.Forward)
}

// Backward drives both sides backward.
func (pb *Base) Backward(ctx context.Context) error {
	return pb.Move(ctx, base.Backward)
}

// TurnLeft curves left: only the right side drives.
func (pb *Base) TurnLeft(ctx context.Context) error {
	return pb.Move(ctx, base.TurnLeft)
}

// TurnRight curves right: only the left side drives.
func (pb *Base) TurnRight(ctx context.Context) error {
	return pb.Move(ctx, base.TurnRight)
}

// SpinLeft turns on the spot, left side backward and right side forward.
func (pb *Base) SpinLeft(ctx context.Context) error {
	return pb.Move(ctx, base.SpinLeft)
}

// SpinRight turns on the spot the other way.
func (pb *Base) SpinRight(ctx context.Context) error {
	return pb.Move(ctx, base.SpinRight)
}

// Stop stops all motors.
func (pb *Base) Stop(ctx context.Context) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.setState(ctx, base.Stopped, "Stopped")
}

// Drive runs each side at a signed speed, clamped to [-100, 100]. Negative speeds run that
// side's backward motor. With a positive duration Drive blocks, then stops the base unless
// another command has been given in the meantime.
func (pb *Base) Drive(ctx context.Context, left, right float64, duration time.Duration) error {
	pb.mu.Lock()
	left = lo.Clamp(left, -100, 100)
	right = lo.Clamp(right, -100, 100)

	var duty [numMotors]float64
	if left < 0 {
		duty[LeftBackward] = -left
	} else {
		duty[LeftForward] = left
	}
	if right < 0 {
		duty[RightBackward] = -right
	} else {
		duty[RightForward] = right
	}

	var state base.State
	for i, d := range duty {
		if d > 0 {
			state |= 1 << i
		}
	}
	pb.state = state
	pb.opID++
	opID := pb.opID
	err := pb.setDuty(ctx, duty)
	pb.report(fmt.Sprintf("Motor set to: %v", duty), pb.logger.Debugw)
	pb.mu.Unlock()

	if err != nil || duration <= 0 {
		return err
	}

	timer := pb.clock.Timer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.opID != opID {
		return err
	}
	return multierr.Combine(err, pb.setState(context.Background(), base.Stopped, "Stopped"))
}

// SetSpeed clamps speed to [0, 100] and reapplies the current state.
func (pb *Base) SetSpeed(ctx context.Context, speed float64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.speed = lo.Clamp(speed, 0, 100)
	return pb.reapply(ctx)
}

// SetTrim clamps trim to [-MaxTrim, MaxTrim] and reapplies the current state.
func (pb *Base) SetTrim(ctx context.Context, trim float64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.trim = lo.Clamp(trim, -MaxTrim, MaxTrim)
	return pb.reapply(ctx)
}

// expects pb.mu to be held.
func (pb *Base) reapply(ctx context.Context) error {
	if pb.state == base.Stopped {
		return nil
	}
	return pb.setState(ctx, pb.state, "Speed change")
}

// Speed returns the speed in percent.
func (pb *Base) Speed() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.speed
}

// Trim returns the trim in percent.
func (pb *Base) Trim() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.trim
}

// State returns the motors currently running.
func (pb *Base) State() base.State {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.state
}

// Close stops the motors.
func (pb *Base) Close(ctx context.Context) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if err := pb.setState(ctx, base.Stopped, "Stopped"); err != nil {
		return err
	}
	pb.report("Motors shut down", pb.logger.Debugw)
	return nil
}

var _ base.Base = (*Base)(nil)
