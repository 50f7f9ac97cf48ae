// Package ultrasonic implements a range finder for HC-SR04 style ultrasonic transducers wired to
// a trigger GPIO line and an echo GPIO line.
//
// A reading fires SampleCount independent trigger pulses, times the echo pulse of each one by
// polling the echo line against a deadline, discards samples whose echo never arrived or never
// ended, and averages the rest.
package ultrasonic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
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
const Type = "ultrasonic"

const (
	// DefaultSamples is the number of samples averaged per reading unless configured otherwise.
	DefaultSamples = 5
	// MinSamples and MaxSamples bound the sample count.
	MinSamples = 1
	MaxSamples = 100

	// TriggerPulse is how long the trigger line is held high to start a ranging cycle.
	TriggerPulse = 10 * time.Microsecond
	// EchoTimeout bounds both the wait for the echo to start and the wait for it to end.
	EchoTimeout = 40 * time.Millisecond
	// SampleInterval is slept after every sample, valid or not, so the transducer is never
	// triggered faster than 40Hz.
	SampleInterval = 25 * time.Millisecond

	// SpeedOfSound in dry air at about 20C, in meters per second.
	SpeedOfSound = 343.26
	// Scale converts an echo round trip in seconds into the one-way range in centimeters:
	// meters to centimeters, halved because the pulse travels out and back.
	Scale = SpeedOfSound * 100 / 2
)

// ErrNoValidSamples is returned when every sample of a reading timed out. It is an expected
// condition (target out of range or too close, sound absorbed) rather than a fault.
var ErrNoValidSamples = errors.New("unable to get a valid echo")

// Config is used for converting config attributes.
type Config struct {
	TriggerPin string `json:"trigger_pin"`
	EchoPin    string `json:"echo_pin"`
	Samples    int    `json:"samples,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.TriggerPin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "trigger_pin")
	}
	if conf.EchoPin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "echo_pin")
	}
	if conf.TriggerPin == conf.EchoPin {
		return utils.NewConfigValidationError(path,
			errors.Errorf("trigger_pin and echo_pin must be different pins, both are %q", conf.TriggerPin))
	}
	if conf.Samples < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("samples must not be negative, got %d", conf.Samples))
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

// NewFromBoard looks up the configured trigger and echo pins on the board and builds a RangeFinder.
func NewFromBoard(ctx context.Context, b board.Board, conf *Config, logger logging.Logger) (*RangeFinder, error) {
	if err := conf.Validate(Type); err != nil {
		return nil, err
	}
	trigger, err := b.GPIOPinByName(conf.TriggerPin)
	if err != nil {
		return nil, errors.Wrapf(err, "ultrasonic: cannot grab trigger pin %q", conf.TriggerPin)
	}
	echo, err := b.GPIOPinByName(conf.EchoPin)
	if err != nil {
		return nil, errors.Wrapf(err, "ultrasonic: cannot grab echo pin %q", conf.EchoPin)
	}
	return NewRangeFinder(ctx, trigger, echo, conf, logger)
}

// NewRangeFinder returns a RangeFinder driving trigger and timing echo.
func NewRangeFinder(
	ctx context.Context,
	trigger, echo board.GPIOPin,
	conf *Config,
	logger logging.Logger,
) (*RangeFinder, error) {
	return newRangeFinder(ctx, trigger, echo, conf, clock.New(), logger)
}

func newRangeFinder(
	ctx context.Context,
	trigger, echo board.GPIOPin,
	conf *Config,
	clk clock.Clock,
	logger logging.Logger,
) (*RangeFinder, error) {
	if err := conf.Validate(Type); err != nil {
		return nil, err
	}
	if trigger == nil || echo == nil {
		return nil, errors.New("ultrasonic: trigger and echo pins are required")
	}

	name := conf.Name
	if name == "" {
		name = fmt.Sprintf("(%s,%s)", conf.TriggerPin, conf.EchoPin)
	}
	samples := conf.Samples
	if samples == 0 {
		samples = DefaultSamples
	}

	rf := &RangeFinder{
		Named:   resource.Named(name),
		trigger: trigger,
		echo:    echo,
		samples: clampSamples(samples),
		debug:   conf.Debug,
		clock:   clk,
		logger:  logger,
	}
	if err := rf.trigger.Set(ctx, false, nil); err != nil {
		return nil, rf.namedError(errors.Wrap(err, "cannot set trigger pin to low"))
	}
	logger.Infof("ultrasonic interface %s initialised using pins %s and %s", name, conf.TriggerPin, conf.EchoPin)
	return rf, nil
}

// RangeFinder estimates the distance to the nearest object in front of an ultrasonic transducer.
// Readings on one RangeFinder are serialized: two interleaved trigger pulses cannot be told
// apart on a single echo line.
type RangeFinder struct {
	resource.Named
	resource.TriviallyCloseable

	mu      sync.Mutex
	trigger board.GPIOPin
	echo    board.GPIOPin
	samples int
	debug   bool

	clock  clock.Clock
	logger logging.Logger
}

func clampSamples(samples int) int {
	return lo.Clamp(samples, MinSamples, MaxSamples)
}

func (rf *RangeFinder) namedError(err error) error {
	return errors.Wrapf(err, "error in ultrasonic sensor with name %s", rf.Name())
}

// Samples returns the number of samples averaged per reading.
func (rf *RangeFinder) Samples() int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.samples
}

// SetSamples clamps samples to [MinSamples, MaxSamples], stores it as the sample count for
// future readings, and returns the stored value.
func (rf *RangeFinder) SetSamples(samples int) int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.samples = clampSamples(samples)
	return rf.samples
}

// Distance takes a reading with the current sample count and returns the range in centimeters.
// If no sample produced a valid echo the error wraps ErrNoValidSamples.
func (rf *RangeFinder) Distance(ctx context.Context) (float64, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.measureDistance(ctx)
}

// DistanceWithSamples is Distance with a new sample count. The count is clamped and persists
// for later calls to Distance.
func (rf *RangeFinder) DistanceWithSamples(ctx context.Context, samples int) (float64, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.samples = clampSamples(samples)
	return rf.measureDistance(ctx)
}

// Readings returns the distance in a map, the way a generic sensor reports.
func (rf *RangeFinder) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	dist, err := rf.Distance(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"distance_cm": dist}, nil
}

// expects rf.mu to be held.
func (rf *RangeFinder) measureDistance(ctx context.Context) (float64, error) {
	distances := make(stats.Float64Data, 0, rf.samples)
	for i := 0; i < rf.samples; i++ {
		elapsed, ok, err := rf.sample(ctx)
		if err != nil {
			return 0, rf.namedError(err)
		}
		if ok {
			distances = append(distances, elapsed.Seconds()*Scale)
		} else {
			rf.logger.Debugw("discarding sample", "name", rf.Name(), "sample", i, "elapsed", elapsed)
		}
		rf.clock.Sleep(SampleInterval)
	}

	if len(distances) == 0 {
		rf.logger.Warnf("distance sensor %s unable to return value", rf.Name())
		return 0, rf.namedError(errors.Wrapf(ErrNoValidSamples, "all %d samples timed out", rf.samples))
	}
	distance, err := stats.Mean(distances)
	if err != nil {
		return 0, rf.namedError(err)
	}
	if rf.debug {
		rf.logger.Infow(fmt.Sprintf("distance from sensor %s is: %.2f cm", rf.Name(), distance),
			"valid_samples", len(distances), "samples", rf.samples)
	}
	return distance, nil
}

// sample fires one trigger pulse and times the echo. ok is false when the echo never started
// or did not end within EchoTimeout.
func (rf *RangeFinder) sample(ctx context.Context) (elapsed time.Duration, ok bool, err error) {
	if err := rf.trigger.Set(ctx, true, nil); err != nil {
		return 0, false, errors.Wrap(err, "cannot set trigger pin to high")
	}
	rf.clock.Sleep(TriggerPulse)
	if err := rf.trigger.Set(ctx, false, nil); err != nil {
		return 0, false, errors.Wrap(err, "cannot set trigger pin to low")
	}

	// start tracks the last time the echo was seen low, so it lands on the rising edge.
	begin := rf.clock.Now()
	start := begin
	for {
		high, err := rf.echo.Get(ctx, nil)
		if err != nil {
			return 0, false, errors.Wrap(err, "cannot read echo pin")
		}
		if high {
			break
		}
		start = rf.clock.Now()
		if waited := start.Sub(begin); waited >= EchoTimeout {
			return waited, false, nil
		}
	}

	end := rf.clock.Now()
	for end.Sub(start) < EchoTimeout {
		high, err := rf.echo.Get(ctx, nil)
		if err != nil {
			return 0, false, errors.Wrap(err, "cannot read echo pin")
		}
		if !high {
			break
		}
		end = rf.clock.Now()
	}

	elapsed = end.Sub(start)
	return elapsed, elapsed > 0 && elapsed < EchoTimeout, nil
}
