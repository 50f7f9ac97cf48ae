package pinwrappers

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/resource"
)

func errClosed(name string) error {
	return errors.Errorf("gpio pin %s is closed", name)
}

// A LineOpener opens the digital line behind a board pin name.
type LineOpener func(name string) (DigitalLine, error)

// LineBoard is a board whose pins are DigitalLines opened on first use.
type LineBoard struct {
	resource.Named

	open LineOpener

	mu     sync.Mutex
	pins   map[string]*GPIOPin
	closed bool

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  logging.Logger
}

// NewLineBoard returns a board that opens pins with open.
func NewLineBoard(name string, open LineOpener, logger logging.Logger) *LineBoard {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &LineBoard{
		Named:      resource.Named(name),
		open:       open,
		pins:       map[string]*GPIOPin{},
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}
}

// GPIOPinByName returns the pin, opening its line the first time it is asked for.
func (b *LineBoard) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.Errorf("board %s is closed", b.Name())
	}
	if pin, ok := b.pins[name]; ok {
		return pin, nil
	}
	line, err := b.open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open pin %s on board %s", name, b.Name())
	}
	pin := NewGPIOPin(b.cancelCtx, name, line, &b.activeBackgroundWorkers, b.logger)
	b.pins[name] = pin
	b.logger.Debugw("opened gpio pin", "board", b.Name(), "pin", name)
	return pin, nil
}

// Close stops every PWM loop and releases all lines.
func (b *LineBoard) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancelFunc()
	pins := b.pins
	b.pins = map[string]*GPIOPin{}
	b.mu.Unlock()

	b.activeBackgroundWorkers.Wait()

	var err error
	for _, pin := range pins {
		err = multierr.Combine(err, pin.Close())
	}
	return err
}
