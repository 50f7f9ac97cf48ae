package inject

import (
	"context"

	"github.com/pibotlab/pibot/components/board"
)

// Board is an injected board.
type Board struct {
	board.Board
	name              string
	GPIOPinByNameFunc func(name string) (board.GPIOPin, error)
	CloseFunc         func(ctx context.Context) error
}

// NewBoard returns a new injected board.
func NewBoard(name string) *Board {
	return &Board{name: name}
}

// Name returns the name of the resource.
func (b *Board) Name() string {
	return b.name
}

// GPIOPinByName calls the injected GPIOPinByName or the real version.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	if b.GPIOPinByNameFunc == nil {
		return b.Board.GPIOPinByName(name)
	}
	return b.GPIOPinByNameFunc(name)
}

// Close calls the injected Close or the real version.
func (b *Board) Close(ctx context.Context) error {
	if b.CloseFunc == nil {
		if b.Board == nil {
			return nil
		}
		return b.Board.Close(ctx)
	}
	return b.CloseFunc(ctx)
}
