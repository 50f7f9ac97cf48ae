package cli

import (
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/pibotlab/pibot/components/base"
	"github.com/pibotlab/pibot/components/input/keyboard"
	"github.com/pibotlab/pibot/robot"
)

const speedStep = 10

var arrowMoves = map[keyboard.Key]base.State{
	keyboard.KeyUp:    base.Forward,
	keyboard.KeyDown:  base.Backward,
	keyboard.KeyLeft:  base.SpinLeft,
	keyboard.KeyRight: base.SpinRight,
	',':               base.TurnLeft,
	'.':               base.TurnRight,
}

// TeleopAction drives the base from the keyboard until q, Esc, Ctrl-C or end of input.
func TeleopAction(c *cli.Context) error {
	return withRobot(c, func(r *robot.Robot) error {
		b, err := r.Base(c.String(flagName))
		if err != nil {
			return err
		}
		if err := b.SetSpeed(c.Context, c.Float64(flagSpeed)); err != nil {
			return err
		}
		kb := keyboard.New(c.App.Reader, r.Logger().Sublogger("keyboard"))
		printf(c.App.Writer, "arrows move, , and . curve, space stops, + and - change speed, q quits")
		return teleop(c, b, kb)
	})
}

func teleop(c *cli.Context, b base.Base, kb *keyboard.Keyboard) error {
	for {
		key, err := kb.ReadKey()
		if err != nil {
			stopErr := b.Stop(c.Context)
			if errors.Is(err, keyboard.ErrInterrupted) {
				printf(c.App.Writer, "interrupted")
				return stopErr
			}
			if errors.Is(err, io.EOF) {
				return stopErr
			}
			return err
		}

		switch key {
		case 'q', 'Q', keyboard.KeyEsc:
			return b.Stop(c.Context)
		case ' ':
			err = b.Stop(c.Context)
		case '+', '=':
			err = b.SetSpeed(c.Context, b.Speed()+speedStep)
		case '-', '_':
			err = b.SetSpeed(c.Context, b.Speed()-speedStep)
		default:
			state, ok := arrowMoves[key]
			if !ok {
				continue
			}
			err = b.Move(c.Context, state)
		}
		if err != nil {
			return multierr.Combine(err, b.Stop(c.Context))
		}
		printf(c.App.Writer, "%s at %.0f%%", b.State(), b.Speed())
	}
}
