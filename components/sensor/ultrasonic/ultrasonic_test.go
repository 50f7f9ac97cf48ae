package ultrasonic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/components/board/fake"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/testutils/inject"
)

const (
	triggerPin = "11"
	echoPin    = "12"
	pollStep   = 250 * time.Microsecond
)

// advancingClock is a mock clock whose Sleep moves time forward instead of blocking.
type advancingClock struct {
	*clock.Mock
}

func (c advancingClock) Sleep(d time.Duration) {
	c.Add(d)
}

// echoPulse describes the echo returned for one trigger: the line goes high delay after the
// trigger falls and stays high for width. A zero width never goes high.
type echoPulse struct {
	delay time.Duration
	width time.Duration
}

var (
	noEcho    = echoPulse{}
	stuckHigh = echoPulse{delay: pollStep, width: time.Second}
)

func validEcho(width time.Duration) echoPulse {
	return echoPulse{delay: pollStep, width: width}
}

// fakeTransducer answers trigger pulses with scripted echo pulses. Every echo read advances the
// mock clock by pollStep, standing in for the time a real poll takes.
type fakeTransducer struct {
	mu       sync.Mutex
	clk      *clock.Mock
	pulses   []echoPulse
	armed    bool
	fired    bool
	firedAt  time.Time
	current  echoPulse
	triggers int
}

func newFakeTransducer(clk *clock.Mock, pulses ...echoPulse) *fakeTransducer {
	return &fakeTransducer{clk: clk, pulses: pulses}
}

func (ft *fakeTransducer) triggerPin() board.GPIOPin {
	return &inject.GPIOPin{
		SetFunc: func(ctx context.Context, high bool, extra map[string]interface{}) error {
			ft.mu.Lock()
			defer ft.mu.Unlock()
			if high {
				ft.armed = true
				return nil
			}
			if ft.armed {
				ft.armed = false
				ft.fired = true
				ft.firedAt = ft.clk.Now()
				ft.current = ft.pulses[min(ft.triggers, len(ft.pulses)-1)]
				ft.triggers++
			}
			return nil
		},
	}
}

func (ft *fakeTransducer) echoPin() board.GPIOPin {
	return &inject.GPIOPin{
		GetFunc: func(ctx context.Context, extra map[string]interface{}) (bool, error) {
			ft.mu.Lock()
			now := ft.clk.Now()
			high := false
			if ft.fired && ft.current.width > 0 {
				rise := ft.firedAt.Add(ft.current.delay)
				fall := rise.Add(ft.current.width)
				high = !now.Before(rise) && now.Before(fall)
			}
			ft.mu.Unlock()
			ft.clk.Add(pollStep)
			return high, nil
		},
	}
}

func (ft *fakeTransducer) triggerCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.triggers
}

func newTestRangeFinder(t *testing.T, conf *Config, pulses ...echoPulse) (*RangeFinder, *fakeTransducer, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	ft := newFakeTransducer(mock, pulses...)
	rf, err := newRangeFinder(context.Background(), ft.triggerPin(), ft.echoPin(), conf, advancingClock{mock}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return rf, ft, mock
}

func expectedDistance(widths ...time.Duration) float64 {
	data := make(stats.Float64Data, 0, len(widths))
	for _, w := range widths {
		data = append(data, w.Seconds()*Scale)
	}
	mean, _ := stats.Mean(data)
	return mean
}

func TestScale(t *testing.T) {
	test.That(t, Scale, test.ShouldAlmostEqual, 17163.0, 1e-9)
	// 1ms of round trip is a little over 17cm away.
	test.That(t, time.Millisecond.Seconds()*Scale, test.ShouldAlmostEqual, 17.163, 1e-9)
}

func TestValidate(t *testing.T) {
	conf := &Config{}
	err := conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "trigger_pin")

	conf.TriggerPin = triggerPin
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "echo_pin")

	conf.EchoPin = triggerPin
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "different pins")

	conf.EchoPin = echoPin
	conf.Samples = -1
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "negative")

	conf.Samples = 0
	test.That(t, conf.Validate("path"), test.ShouldBeNil)
}

func TestNewRangeFinder(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("defaults", func(t *testing.T) {
		rf, _, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, noEcho)
		test.That(t, rf.Name(), test.ShouldEqual, "(11,12)")
		test.That(t, rf.Samples(), test.ShouldEqual, DefaultSamples)
		test.That(t, rf.Close(ctx), test.ShouldBeNil)
	})

	t.Run("configured samples are clamped", func(t *testing.T) {
		rf, _, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 500, Name: "front"}, noEcho)
		test.That(t, rf.Name(), test.ShouldEqual, "front")
		test.That(t, rf.Samples(), test.ShouldEqual, MaxSamples)
	})

	t.Run("aliased pins", func(t *testing.T) {
		pin := &inject.GPIOPin{}
		_, err := NewRangeFinder(ctx, pin, pin, &Config{TriggerPin: triggerPin, EchoPin: triggerPin}, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("nil pins", func(t *testing.T) {
		_, err := NewRangeFinder(ctx, nil, nil, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("trigger starts low", func(t *testing.T) {
		var sets []bool
		trigger := &inject.GPIOPin{SetFunc: func(ctx context.Context, high bool, extra map[string]interface{}) error {
			sets = append(sets, high)
			return nil
		}}
		_, err := NewRangeFinder(ctx, trigger, &inject.GPIOPin{}, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sets, test.ShouldResemble, []bool{false})
	})

	t.Run("trigger failure", func(t *testing.T) {
		trigger := &inject.GPIOPin{SetFunc: func(ctx context.Context, high bool, extra map[string]interface{}) error {
			return errors.New("bad pin")
		}}
		_, err := NewRangeFinder(ctx, trigger, &inject.GPIOPin{}, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "bad pin")
	})
}

func TestSampleClamping(t *testing.T) {
	rf, ft, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, validEcho(time.Millisecond))

	for _, tc := range []struct {
		in       int
		expected int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{42, 42},
		{100, 100},
		{101, 100},
		{1 << 20, 100},
	} {
		test.That(t, rf.SetSamples(tc.in), test.ShouldEqual, tc.expected)
		test.That(t, rf.Samples(), test.ShouldEqual, tc.expected)
	}

	_, err := rf.DistanceWithSamples(context.Background(), -3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rf.Samples(), test.ShouldEqual, 1)
	test.That(t, ft.triggerCount(), test.ShouldEqual, 1)

	_, err = rf.DistanceWithSamples(context.Background(), 150)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rf.Samples(), test.ShouldEqual, MaxSamples)
	test.That(t, ft.triggerCount(), test.ShouldEqual, 1+MaxSamples)
}

func TestNoEcho(t *testing.T) {
	rf, ft, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 3}, noEcho)

	dist, err := rf.Distance(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "(11,12)")
	test.That(t, dist, test.ShouldEqual, 0.0)
	test.That(t, ft.triggerCount(), test.ShouldEqual, 3)
}

func TestAveraging(t *testing.T) {
	widths := []time.Duration{time.Millisecond, 1500 * time.Microsecond, 2250 * time.Microsecond}
	rf, _, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 3},
		validEcho(widths[0]), validEcho(widths[1]), validEcho(widths[2]))

	dist, err := rf.Distance(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldAlmostEqual, expectedDistance(widths...), 1e-6)
}

func TestPartialValidity(t *testing.T) {
	rf, ft, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin},
		validEcho(time.Millisecond),
		noEcho,
		validEcho(2*time.Millisecond),
		stuckHigh,
		validEcho(3*time.Millisecond),
	)

	dist, err := rf.Distance(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ft.triggerCount(), test.ShouldEqual, DefaultSamples)
	test.That(t, dist, test.ShouldAlmostEqual, expectedDistance(time.Millisecond, 2*time.Millisecond, 3*time.Millisecond), 1e-6)
}

func TestEchoNeverEnds(t *testing.T) {
	rf, _, mock := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 1}, stuckHigh)

	start := mock.Now()
	_, err := rf.Distance(context.Background())
	test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeTrue)

	// the falling edge wait gives up once EchoTimeout has passed since the rising edge.
	elapsed := mock.Now().Sub(start)
	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, EchoTimeout+SampleInterval)
	test.That(t, elapsed, test.ShouldBeLessThan, 2*EchoTimeout+SampleInterval)
}

func TestRisingEdgeTimeoutWallClock(t *testing.T) {
	low := &inject.GPIOPin{GetFunc: func(ctx context.Context, extra map[string]interface{}) (bool, error) {
		return false, nil
	}}
	trigger := &inject.GPIOPin{SetFunc: func(ctx context.Context, high bool, extra map[string]interface{}) error {
		return nil
	}}
	rf, err := NewRangeFinder(context.Background(), trigger, low,
		&Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	start := time.Now()
	_, err = rf.Distance(context.Background())
	elapsed := time.Since(start)
	test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeTrue)
	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, EchoTimeout)
	test.That(t, elapsed, test.ShouldBeLessThan, EchoTimeout+SampleInterval+200*time.Millisecond)
}

func TestSampleOverridePersists(t *testing.T) {
	rf, ft, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin}, validEcho(time.Millisecond))

	_, err := rf.DistanceWithSamples(context.Background(), 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ft.triggerCount(), test.ShouldEqual, 10)

	_, err = rf.Distance(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ft.triggerCount(), test.ShouldEqual, 20)
	test.That(t, rf.Samples(), test.ShouldEqual, 10)
}

func TestRateLimit(t *testing.T) {
	t.Run("valid samples", func(t *testing.T) {
		rf, _, mock := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 4}, validEcho(time.Millisecond))
		start := mock.Now()
		_, err := rf.Distance(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, mock.Now().Sub(start), test.ShouldBeGreaterThanOrEqualTo, 4*SampleInterval)
	})

	t.Run("discarded samples still wait", func(t *testing.T) {
		rf, _, mock := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 3}, noEcho)
		start := mock.Now()
		_, err := rf.Distance(context.Background())
		test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeTrue)
		test.That(t, mock.Now().Sub(start), test.ShouldBeGreaterThanOrEqualTo, 3*(EchoTimeout+SampleInterval))
	})
}

func TestEchoReadError(t *testing.T) {
	mock := clock.NewMock()
	ft := newFakeTransducer(mock, validEcho(time.Millisecond))
	broken := &inject.GPIOPin{GetFunc: func(ctx context.Context, extra map[string]interface{}) (bool, error) {
		return false, errors.New("line gone")
	}}
	rf, err := newRangeFinder(context.Background(), ft.triggerPin(), broken,
		&Config{TriggerPin: triggerPin, EchoPin: echoPin, Name: "front"}, advancingClock{mock}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = rf.Distance(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line gone")
	test.That(t, err.Error(), test.ShouldContainSubstring, "front")
	// the reading stops at the first boundary failure.
	test.That(t, ft.triggerCount(), test.ShouldEqual, 1)
}

func TestDebugReport(t *testing.T) {
	mock := clock.NewMock()
	ft := newFakeTransducer(mock, validEcho(2*time.Millisecond))
	logger, observed := logging.NewObservedTestLogger(t)
	rf, err := newRangeFinder(context.Background(), ft.triggerPin(), ft.echoPin(),
		&Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 2, Debug: true, Name: "front"}, advancingClock{mock}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = rf.Distance(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, observed.FilterMessageSnippet("distance from sensor front is: 34.33 cm").Len(), test.ShouldEqual, 1)

	readings, err := rf.Readings(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["distance_cm"], test.ShouldAlmostEqual, 0.002*Scale, 1e-6)
}

func TestConcurrentReadingsSerialize(t *testing.T) {
	rf, ft, _ := newTestRangeFinder(t, &Config{TriggerPin: triggerPin, EchoPin: echoPin, Samples: 3}, validEcho(time.Millisecond))

	var wg sync.WaitGroup
	results := make([]float64, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rf.Distance(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range results {
		test.That(t, errs[i], test.ShouldBeNil)
		test.That(t, results[i], test.ShouldAlmostEqual, expectedDistance(time.Millisecond), 1e-6)
	}
	test.That(t, ft.triggerCount(), test.ShouldEqual, 6)
}

func TestFromBoard(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b := fake.NewBoard("board", &fake.Config{Pins: []string{triggerPin, echoPin}}, logger)

	_, err := NewFromBoard(ctx, b, &Config{TriggerPin: "40", EchoPin: echoPin}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "trigger pin")

	reg, ok := registry.ComponentLookup(Type)
	test.That(t, ok, test.ShouldBeTrue)
	converted, err := registry.ConvertAttributes(reg.AttributeMapConverter,
		config.AttributeMap{"trigger_pin": triggerPin, "echo_pin": echoPin, "samples": 2.0}, "components.0")
	test.That(t, err, test.ShouldBeNil)

	res, err := reg.Constructor(ctx, b, config.Component{Name: "sonar", Type: Type, ConvertedAttributes: converted}, logger)
	test.That(t, err, test.ShouldBeNil)
	rf, ok := res.(*RangeFinder)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rf.Name(), test.ShouldEqual, "sonar")
	test.That(t, rf.Samples(), test.ShouldEqual, 2)

	// the fake echo pin never goes high.
	_, err = rf.Distance(ctx)
	test.That(t, errors.Is(err, ErrNoValidSamples), test.ShouldBeTrue)

	_, err = registry.ConvertAttributes(reg.AttributeMapConverter, config.AttributeMap{"trigger_pin": triggerPin}, "components.0")
	test.That(t, err, test.ShouldNotBeNil)
}
