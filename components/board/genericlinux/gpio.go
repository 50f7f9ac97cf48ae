//go:build linux

package genericlinux

import (
	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/pibotlab/pibot/logging"
)

const consumer = "pibot-gpio"

// chardevLine is a line of a GPIO character device, requested in the direction of its latest
// use and re-requested when that changes.
type chardevLine struct {
	devicePath string
	offset     uint32
	line       *gpio.Line
	input      bool
	logger     logging.Logger
}

func newChardevLine(devicePath string, offset uint32, logger logging.Logger) *chardevLine {
	return &chardevLine{devicePath: devicePath, offset: offset, logger: logger}
}

func (l *chardevLine) request(input bool, value byte) error {
	if l.line != nil && l.input == input {
		return nil
	}
	if err := l.Close(); err != nil {
		return err
	}

	chip, err := gpio.OpenChip(l.devicePath)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", l.devicePath)
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	flags := gpio.Output
	if input {
		flags = gpio.Input
	}
	line, err := chip.OpenLine(l.offset, value, flags, consumer)
	if err != nil {
		return errors.Wrapf(err, "cannot request line %d of %s", l.offset, l.devicePath)
	}
	l.line = line
	l.input = input
	l.logger.Debugw("requested gpio line", "chip", l.devicePath, "offset", l.offset, "input", input)
	return nil
}

func (l *chardevLine) Write(high bool) error {
	var value byte
	if high {
		value = 1
	}
	if l.line == nil || l.input {
		// requesting an output line sets its initial value.
		return l.request(false, value)
	}
	return l.line.SetValue(value)
}

func (l *chardevLine) Read() (bool, error) {
	if err := l.request(true, 0); err != nil {
		return false, err
	}
	value, err := l.line.Value()
	if err != nil {
		return false, err
	}
	// any non-zero value is high.
	return value != 0, nil
}

func (l *chardevLine) Close() error {
	if l.line == nil {
		return nil
	}
	err := l.line.Close()
	l.line = nil
	return err
}
