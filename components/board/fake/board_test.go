package fake

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
)

func TestFakeBoard(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := NewBoard("board", &Config{}, logger)
	test.That(t, b.Name(), test.ShouldEqual, "board")

	pin, err := b.GPIOPinByName("11")
	test.That(t, err, test.ShouldBeNil)
	again, err := b.GPIOPinByName("11")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, pin)

	test.That(t, pin.Set(ctx, true, nil), test.ShouldBeNil)
	high, err := pin.Get(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	test.That(t, pin.SetPWMFreq(ctx, 20, nil), test.ShouldBeNil)
	test.That(t, pin.SetPWM(ctx, 0.5, nil), test.ShouldBeNil)
	duty, err := pin.PWM(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, duty, test.ShouldAlmostEqual, 0.5)
	freq, err := pin.PWMFreq(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, freq, test.ShouldEqual, uint(20))

	// Setting a level stops PWM.
	test.That(t, pin.Set(ctx, false, nil), test.ShouldBeNil)
	duty, err = pin.PWM(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, duty, test.ShouldEqual, 0.0)

	fp, err := b.Pin("11")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fp.SetCount(), test.ShouldEqual, 2)

	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, b.CloseCount, test.ShouldEqual, 1)
}

func TestRestrictedPins(t *testing.T) {
	b := NewBoard("board", &Config{Pins: []string{"11"}}, logging.NewTestLogger(t))
	_, err := b.GPIOPinByName("11")
	test.That(t, err, test.ShouldBeNil)
	_, err = b.GPIOPinByName("12")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRegistered(t *testing.T) {
	reg, ok := registry.BoardLookup(Model)
	test.That(t, ok, test.ShouldBeTrue)

	converted, err := registry.ConvertAttributes(reg.AttributeMapConverter, config.AttributeMap{"fail_new": true}, "board")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, converted, test.ShouldBeNil)

	converted, err = registry.ConvertAttributes(reg.AttributeMapConverter, config.AttributeMap{"pins": []interface{}{"7"}}, "board")
	test.That(t, err, test.ShouldBeNil)

	b, err := reg.Constructor(context.Background(), config.Board{Model: Model, ConvertedAttributes: converted}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = b.GPIOPinByName("7")
	test.That(t, err, test.ShouldBeNil)
	_, err = b.GPIOPinByName("8")
	test.That(t, err, test.ShouldNotBeNil)
}
