package keyboard

import (
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pibotlab/pibot/logging"
)

func TestReadKey(t *testing.T) {
	kb := New(strings.NewReader("a\x1b[A\x1b[B\x1b[C\x1b[Dq \x1b[Z\x1bx+"), logging.NewTestLogger(t))

	for _, expected := range []Key{'a', KeyUp, KeyDown, KeyRight, KeyLeft, 'q', ' ', KeyEsc, KeyEsc, '+'} {
		key, err := kb.ReadKey()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, key, test.ShouldEqual, expected)
	}

	_, err := kb.ReadKey()
	test.That(t, err, test.ShouldEqual, io.EOF)
}

func TestArrowCodes(t *testing.T) {
	test.That(t, KeyUp, test.ShouldEqual, Key(16))
	test.That(t, KeyDown, test.ShouldEqual, Key(17))
	test.That(t, KeyRight, test.ShouldEqual, Key(18))
	test.That(t, KeyLeft, test.ShouldEqual, Key(19))
	test.That(t, KeyLeft.String(), test.ShouldEqual, "Left")
	test.That(t, Key('w').String(), test.ShouldEqual, "w")
	test.That(t, Key(' ').String(), test.ShouldEqual, "Space")
}

func TestInterrupt(t *testing.T) {
	kb := New(strings.NewReader("\x03x"), logging.NewTestLogger(t))
	key, err := kb.ReadKey()
	test.That(t, errors.Is(err, ErrInterrupted), test.ShouldBeTrue)
	test.That(t, key, test.ShouldEqual, KeyCtrlC)

	key, err = kb.ReadKey()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, key, test.ShouldEqual, Key('x'))

	// an interrupt in the middle of an escape sequence still interrupts.
	kb = New(strings.NewReader("\x1b\x03"), logging.NewTestLogger(t))
	_, err = kb.ReadKey()
	test.That(t, errors.Is(err, ErrInterrupted), test.ShouldBeTrue)
}

func TestTruncatedEscape(t *testing.T) {
	kb := New(strings.NewReader("\x1b["), logging.NewTestLogger(t))
	key, err := kb.ReadKey()
	test.That(t, err, test.ShouldEqual, io.EOF)
	test.That(t, key, test.ShouldEqual, KeyEsc)
}
