package linefollower

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/components/board/fake"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/testutils/inject"
)

func TestRead(t *testing.T) {
	ctx := context.Background()
	logger, observed := logging.NewObservedTestLogger(t)
	b := fake.NewBoard("board", &fake.Config{}, logger)

	lf, err := NewFromBoard(ctx, b, &Config{Debug: true}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lf.Name(), test.ShouldEqual, "(22)")

	onLine, err := lf.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, onLine, test.ShouldBeFalse)

	pin, err := b.Pin(DefaultPin)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pin.Set(ctx, true, nil), test.ShouldBeNil)

	readings, err := lf.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings, test.ShouldResemble, map[string]interface{}{"on_line": true})
	test.That(t, observed.FilterMessage("Line follower (22) returned: true").Len(), test.ShouldEqual, 1)
	test.That(t, lf.Close(ctx), test.ShouldBeNil)
}

func TestReadError(t *testing.T) {
	b := inject.NewBoard("board")
	b.GPIOPinByNameFunc = func(name string) (board.GPIOPin, error) {
		return &inject.GPIOPin{GetFunc: func(ctx context.Context, extra map[string]interface{}) (bool, error) {
			return false, errors.New("floating")
		}}, nil
	}
	lf, err := NewFromBoard(context.Background(), b, &Config{Name: "line"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = lf.Read(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line follower line: floating")
}

func TestRegistration(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard("board", &fake.Config{}, logger)
	reg, ok := registry.ComponentLookup(Type)
	test.That(t, ok, test.ShouldBeTrue)
	converted, err := registry.ConvertAttributes(reg.AttributeMapConverter, config.AttributeMap{"pin": "16"}, "components.3")
	test.That(t, err, test.ShouldBeNil)
	res, err := reg.Constructor(context.Background(), b, config.Component{Name: "line", Type: Type, ConvertedAttributes: converted}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Name(), test.ShouldEqual, "line")
	test.That(t, res.(*LineFollower).pin, test.ShouldNotBeNil)
}
