// Package pi implements a Raspberry Pi board on periph.io. Pins are named by their physical
// header position ("11", "12", ...) unless bcm_numbering is set.
package pi

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/pibotlab/pibot/components/board"
	picommon "github.com/pibotlab/pibot/components/board/pi/common"
	"github.com/pibotlab/pibot/components/board/pinwrappers"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
)

// A Config describes the configuration of a pi board.
type Config struct {
	// BCMNumbering names pins by BCM GPIO number instead of header position.
	BCMNumbering bool `json:"bcm_numbering,omitempty"`
}

func init() {
	registry.RegisterBoard(picommon.ModelName, registry.Board{
		Constructor: func(ctx context.Context, conf config.Board, logger logging.Logger) (board.Board, error) {
			attrs, ok := conf.ConvertedAttributes.(*Config)
			if !ok {
				attrs = &Config{}
			}
			return NewBoard(ctx, picommon.ModelName, attrs, logger)
		},
		AttributeMapConverter: config.ConverterFor(&Config{}),
	})
}

var (
	hostInitOnce sync.Once
	errHostInit  error
)

func initHost() error {
	hostInitOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			errHostInit = errors.Wrap(err, "cannot initialise periph host drivers")
		}
	})
	return errHostInit
}

// NewBoard initialises the periph host drivers and returns a board opening BCM lines on demand.
func NewBoard(ctx context.Context, name string, conf *Config, logger logging.Logger) (*pinwrappers.LineBoard, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	logger.Infow("pi board ready", "bcm_numbering", conf.BCMNumbering)
	return pinwrappers.NewLineBoard(name, func(pinName string) (pinwrappers.DigitalLine, error) {
		bcm, err := resolveBCM(pinName, conf.BCMNumbering)
		if err != nil {
			return nil, err
		}
		p := gpioreg.ByName(fmt.Sprintf("GPIO%d", bcm))
		if p == nil {
			return nil, errors.Errorf("no gpio line GPIO%d on this host", bcm)
		}
		return newPeriphLine(p), nil
	}, logger), nil
}

func resolveBCM(name string, bcmNumbering bool) (int, error) {
	if !bcmNumbering {
		return picommon.BCMForHeaderPin(name)
	}
	bcm, err := strconv.Atoi(name)
	if err != nil || bcm < 0 || bcm > 27 {
		return 0, errors.Errorf("pin name %q is not a BCM gpio number", name)
	}
	return bcm, nil
}

// periphLine drives a periph pin, switching its direction only when the use changes so
// polling an input stays cheap.
type periphLine struct {
	pin   gpio.PinIO
	input bool
	ready bool
}

func newPeriphLine(pin gpio.PinIO) *periphLine {
	return &periphLine{pin: pin}
}

func (l *periphLine) Write(high bool) error {
	if err := l.pin.Out(gpio.Level(high)); err != nil {
		return errors.Wrapf(err, "cannot drive %s", l.pin.Name())
	}
	l.input = false
	l.ready = true
	return nil
}

func (l *periphLine) Read() (bool, error) {
	if !l.ready || !l.input {
		if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return false, errors.Wrapf(err, "cannot make %s an input", l.pin.Name())
		}
		l.input = true
		l.ready = true
	}
	return bool(l.pin.Read()), nil
}

func (l *periphLine) Close() error {
	return l.pin.Halt()
}
