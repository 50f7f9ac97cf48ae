package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/pibotlab/pibot/components/base"
	"github.com/pibotlab/pibot/components/board/fake"
	picommon "github.com/pibotlab/pibot/components/board/pi/common"
	"github.com/pibotlab/pibot/components/sensor/ultrasonic"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/robot"
)

const (
	defaultDriveDuration = time.Second
	defaultDemoStep      = 800 * time.Millisecond
)

var (
	goodColor = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
)

// newLogger returns the command's logger and a func closing any log file it opened.
func newLogger(c *cli.Context) (logging.Logger, func()) {
	logger := logging.NewBlankLogger("pibot")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.INFO)
	}
	if path := c.String(flagLogFile); path != "" {
		file := logging.NewFileAppender(path)
		logger.AddAppender(file)
		return logger, func() { utils.UncheckedErrorFunc(file.Close) }
	}
	return logger, func() {}
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default(picommon.ModelName)
	}
	if c.Bool(flagFake) {
		cfg.Board = config.Board{Model: fake.Model}
	}
	if c.Bool(flagDebug) {
		cfg.Debug = true
	}
	return cfg, nil
}

// withRobot builds the robot for the duration of fn and always closes it afterwards.
func withRobot(c *cli.Context, fn func(r *robot.Robot) error) (err error) {
	logger, closeLog := newLogger(c)
	defer closeLog()
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	r, err := robot.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Close(c.Context))
	}()
	return fn(r)
}

// DistanceAction takes one or more distance readings.
func DistanceAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		rf, err := r.RangeFinder(c.String(flagSensor))
		if err != nil {
			return err
		}
		if c.IsSet(flagSamples) {
			rf.SetSamples(c.Int(flagSamples))
		}
		for i := 0; i < c.Int(flagRepeat); i++ {
			if i > 0 && !utils.SelectContextOrWait(c.Context, c.Duration(flagInterval)) {
				return c.Context.Err()
			}
			dist, err := rf.Distance(c.Context)
			switch {
			case errors.Is(err, ultrasonic.ErrNoValidSamples):
				warnColor.Fprintf(c.App.Writer, "%s: no echo\n", rf.Name())
			case err != nil:
				return err
			default:
				goodColor.Fprintf(c.App.Writer, "%s: %.2f cm\n", rf.Name(), dist)
			}
		}
		return nil
	})
}

// DriveAction runs the motors for a while, then stops them.
func DriveAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		b, err := r.Base(c.String(flagName))
		if err != nil {
			return err
		}
		left, right := c.Float64(flagLeft), c.Float64(flagRight)
		printf(c.App.Writer, "driving left %.0f%% right %.0f%% for %s", left, right, c.Duration(flagDuration))
		return b.Drive(c.Context, left, right, c.Duration(flagDuration))
	})
}

// StopAction stops the motors.
func StopAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		b, err := r.Base(c.String(flagName))
		if err != nil {
			return err
		}
		if err := b.Stop(c.Context); err != nil {
			return err
		}
		printf(c.App.Writer, "stopped")
		return nil
	})
}

// LEDAction switches or dims an LED.
func LEDAction(c *cli.Context) error {
	settings := 0
	for _, f := range []string{flagOn, flagOff, flagIntensity} {
		if c.IsSet(f) {
			settings++
		}
	}
	if settings != 1 {
		return errors.Errorf("give exactly one of --%s, --%s or --%s", flagOn, flagOff, flagIntensity)
	}
	return withRobot(c, func(r *robot.Robot) error {
		l, err := r.LED(c.String(flagName))
		if err != nil {
			return err
		}
		switch {
		case c.Bool(flagOn):
			err = l.On(c.Context)
		case c.IsSet(flagIntensity):
			err = l.SetIntensity(c.Context, c.Float64(flagIntensity))
		default:
			err = l.Off(c.Context)
		}
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s at %g%%", l.Name(), l.Intensity())
		if d := c.Duration(flagDuration); d > 0 {
			utils.SelectContextOrWait(c.Context, d)
		}
		return nil
	})
}

// LineAction reads the line follower.
func LineAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		lf, err := r.LineFollower(c.String(flagName))
		if err != nil {
			return err
		}
		onLine, err := lf.Read(c.Context)
		if err != nil {
			return err
		}
		if onLine {
			goodColor.Fprintf(c.App.Writer, "%s: on the line\n", lf.Name())
		} else {
			warnColor.Fprintf(c.App.Writer, "%s: off the line\n", lf.Name())
		}
		return nil
	})
}

// PinAction reads, drives or sets the duty cycle of a header pin.
func PinAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		pin, err := r.HeaderPin(c.String(flagName))
		if err != nil {
			return err
		}
		switch {
		case c.Bool(flagGet):
			high, err := pin.Input(c.Context)
			if err != nil {
				return err
			}
			printf(c.App.Writer, "%s: %s", pin.Name(), levelName(high))
		case c.IsSet(flagSet):
			var high bool
			switch strings.ToLower(c.String(flagSet)) {
			case "high", "1", "on":
				high = true
			case "low", "0", "off":
			default:
				return errors.Errorf("--%s takes high or low, not %q", flagSet, c.String(flagSet))
			}
			if err := pin.Output(c.Context, high); err != nil {
				return err
			}
			printf(c.App.Writer, "%s set %s", pin.Name(), levelName(high))
		case c.IsSet(flagPWM):
			if err := pin.PWM(c.Context, c.Float64(flagPWM)); err != nil {
				return err
			}
			printf(c.App.Writer, "%s duty cycle set", pin.Name())
		default:
			return errors.Errorf("give one of --%s, --%s or --%s", flagGet, flagSet, flagPWM)
		}
		return nil
	})
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

// ComponentsAction prints a table of the configured components.
func ComponentsAction(c *cli.Context) error {
	logger, closeLog := newLogger(c)
	defer closeLog()
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, componentsTable(cfg))
	return nil
}

func componentsTable(cfg *config.Config) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("board: %s", cfg.Board.Model))
	t.AppendHeader(table.Row{"#", "Name", "Type", "Attributes"})
	for i, comp := range cfg.Components {
		keys := make([]string, 0, len(comp.Attributes))
		for k := range comp.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, 0, len(keys))
		for _, k := range keys {
			attrs = append(attrs, fmt.Sprintf("%s=%v", k, comp.Attributes[k]))
		}
		t.AppendRow(table.Row{i + 1, comp.Name, comp.Type, strings.Join(attrs, " ")})
	}
	return t.Render()
}

// DemoAction takes a reading, then zig-zags about and stops.
func DemoAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		if rf, err := r.RangeFinder(""); err == nil {
			dist, err := rf.Distance(c.Context)
			switch {
			case errors.Is(err, ultrasonic.ErrNoValidSamples):
				warnColor.Fprintf(c.App.Writer, "%s: no echo\n", rf.Name())
			case err != nil:
				return err
			default:
				goodColor.Fprintf(c.App.Writer, "%s: %.2f cm\n", rf.Name(), dist)
			}
		}

		b, err := r.Base("")
		if err != nil {
			return err
		}
		step := c.Duration(flagStep)
		if err := b.SetSpeed(c.Context, 75); err != nil {
			return err
		}
		if err := b.SetTrim(c.Context, -5); err != nil {
			return err
		}
		for _, move := range demoScript() {
			if err := b.Move(c.Context, move.state); err != nil {
				return err
			}
			printf(c.App.Writer, "%s", move.state)
			if move.hold && !utils.SelectContextOrWait(c.Context, step) {
				return multierr.Combine(c.Context.Err(), b.Stop(c.Context))
			}
		}
		return b.Stop(c.Context)
	})
}

type demoMove struct {
	state base.State
	// hold keeps the state for one step before the next move.
	hold bool
}

// demoScript backs off straight into a spin, then zig-zags.
func demoScript() []demoMove {
	script := []demoMove{{base.Backward, false}, {base.SpinLeft, true}}
	for i := 0; i < 5; i++ {
		script = append(script, demoMove{base.TurnRight, true}, demoMove{base.TurnLeft, true})
	}
	return script
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
