// Package keyboard reads single key presses, including arrow keys, from a terminal.
package keyboard

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/pibotlab/pibot/logging"
)

// A Key is one decoded key press. Printable keys are their ASCII byte.
type Key byte

// Keys with no printable form. The arrow keys take the codes 0x10 to 0x13, in the order of the
// final byte of their escape sequence.
const (
	KeyCtrlC Key = 0x03
	KeyUp    Key = 0x10
	KeyDown  Key = 0x11
	KeyRight Key = 0x12
	KeyLeft  Key = 0x13
	KeyEsc   Key = 0x1b
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "Up"
	case KeyDown:
		return "Down"
	case KeyRight:
		return "Right"
	case KeyLeft:
		return "Left"
	case KeyEsc:
		return "Esc"
	case KeyCtrlC:
		return "Ctrl-C"
	case ' ':
		return "Space"
	default:
		return string(rune(k))
	}
}

// ErrInterrupted is returned when Ctrl-C is pressed while raw mode has the terminal swallowing
// the usual interrupt.
var ErrInterrupted = errors.New("keyboard: interrupted")

// Keyboard decodes key presses from an input stream.
type Keyboard struct {
	mu     sync.Mutex
	in     *bufio.Reader
	fd     int
	isTerm bool
	logger logging.Logger
}

// New reads keys from in. When in is a terminal it is put in raw mode for the duration of each
// ReadKey, so keys arrive without waiting for Enter.
func New(in io.Reader, logger logging.Logger) *Keyboard {
	kb := &Keyboard{in: bufio.NewReader(in), logger: logger}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		kb.fd = int(f.Fd())
		kb.isTerm = true
	}
	logger.Debugw("keyboard interface initialised", "terminal", kb.isTerm)
	return kb
}

// ReadKey blocks for the next key press. An escape byte followed by '[' and one of 'A' to 'D'
// decodes to an arrow key; an escape followed by anything else is returned as KeyEsc.
func (kb *Keyboard) ReadKey() (key Key, err error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.isTerm {
		oldState, err := term.MakeRaw(kb.fd)
		if err != nil {
			return 0, errors.Wrap(err, "keyboard: cannot enter raw mode")
		}
		defer func() {
			if restoreErr := term.Restore(kb.fd, oldState); restoreErr != nil && err == nil {
				err = errors.Wrap(restoreErr, "keyboard: cannot restore terminal")
			}
		}()
	}

	c1, err := kb.readChar()
	if err != nil || c1 != KeyEsc {
		return c1, err
	}
	c2, err := kb.readChar()
	if err != nil || c2 != '[' {
		return KeyEsc, err
	}
	c3, err := kb.readChar()
	if err != nil {
		return KeyEsc, err
	}
	if c3 < 'A' || c3 > 'D' {
		kb.logger.Debugw("unknown escape sequence", "final", c3)
		return KeyEsc, nil
	}
	return KeyUp + c3 - 'A', nil
}

func (kb *Keyboard) readChar() (Key, error) {
	c, err := kb.in.ReadByte()
	if err != nil {
		return 0, err
	}
	if Key(c) == KeyCtrlC {
		return KeyCtrlC, ErrInterrupted
	}
	return Key(c), nil
}
