//go:build !linux

package genericlinux

import (
	"github.com/pkg/errors"

	"github.com/pibotlab/pibot/logging"
)

// chardevLine exists so the package builds off Linux; every use reports that GPIO character
// devices are unavailable.
type chardevLine struct {
	devicePath string
}

func newChardevLine(devicePath string, offset uint32, logger logging.Logger) *chardevLine {
	return &chardevLine{devicePath: devicePath}
}

func (l *chardevLine) Write(high bool) error {
	return errors.Errorf("cannot use %s: gpio character devices need linux", l.devicePath)
}

func (l *chardevLine) Read() (bool, error) {
	return false, errors.Errorf("cannot use %s: gpio character devices need linux", l.devicePath)
}

func (l *chardevLine) Close() error {
	return nil
}
