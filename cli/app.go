// Package cli contains the pibot command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagFake    = "fake"
	flagLogFile = "log-file"

	// Command flags.
	flagName      = "name"
	flagSensor    = "sensor"
	flagSamples   = "samples"
	flagRepeat    = "repeat"
	flagInterval  = "interval"
	flagLeft      = "left"
	flagRight     = "right"
	flagDuration  = "duration"
	flagSpeed     = "speed"
	flagOn        = "on"
	flagOff       = "off"
	flagIntensity = "intensity"
	flagGet       = "get"
	flagSet       = "set"
	flagPWM       = "pwm"
	flagStep      = "step"
)

// NewApp returns the pibot CLI reading keys from in, writing results to out and logs to errOut.
func NewApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "pibot",
		Usage:           "drive a PiBot and read its sensors",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Reader:          in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load robot configuration from `FILE` instead of the stock layout",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "use a fake board instead of the GPIO hardware",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated as it grows",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "distance",
				Usage:  "measure the distance to the nearest object with an ultrasonic sensor",
				Action: DistanceAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagSensor,
						Usage: "name of the sensor, defaults to the first configured",
					},
					&cli.IntFlag{
						Name:  flagSamples,
						Usage: "samples to average per reading (1-100), defaults to the sensor's setting",
					},
					&cli.IntFlag{
						Name:  flagRepeat,
						Value: 1,
						Usage: "number of readings to take",
					},
					&cli.DurationFlag{
						Name:  flagInterval,
						Value: 0,
						Usage: "pause between readings",
					},
				},
			},
			{
				Name:   "drive",
				Usage:  "run the left and right motors at signed speeds for a while",
				Action: DriveAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the base, defaults to the first configured",
					},
					&cli.Float64Flag{
						Name:     flagLeft,
						Usage:    "left side speed in percent, -100 to 100",
						Required: true,
					},
					&cli.Float64Flag{
						Name:     flagRight,
						Usage:    "right side speed in percent, -100 to 100",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Value: defaultDriveDuration,
						Usage: "how long to drive before stopping",
					},
				},
			},
			{
				Name:   "stop",
				Usage:  "stop the motors",
				Action: StopAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the base, defaults to the first configured",
					},
				},
			},
			{
				Name:      "teleop",
				Usage:     "drive with the keyboard",
				UsageText: "arrows move, space stops, + and - change speed, q quits",
				Action:    TeleopAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the base, defaults to the first configured",
					},
					&cli.Float64Flag{
						Name:  flagSpeed,
						Value: 50,
						Usage: "starting speed in percent",
					},
				},
			},
			{
				Name:   "led",
				Usage:  "switch or dim an LED",
				Action: LEDAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the LED, defaults to the first configured",
					},
					&cli.BoolFlag{
						Name:  flagOn,
						Usage: "turn the LED fully on",
					},
					&cli.BoolFlag{
						Name:  flagOff,
						Usage: "turn the LED off",
					},
					&cli.Float64Flag{
						Name:  flagIntensity,
						Usage: "set the brightness in percent",
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "hold the setting this long before exiting",
					},
				},
			},
			{
				Name:   "line",
				Usage:  "read the line follower",
				Action: LineAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the line follower, defaults to the first configured",
					},
				},
			},
			{
				Name:   "pin",
				Usage:  "use an expansion header pin",
				Action: PinAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagName,
						Usage: "name of the header pin, defaults to the first configured",
					},
					&cli.BoolFlag{
						Name:  flagGet,
						Usage: "read an input pin",
					},
					&cli.StringFlag{
						Name:  flagSet,
						Usage: "drive an output pin `high` or low",
					},
					&cli.Float64Flag{
						Name:  flagPWM,
						Usage: "set the duty cycle of a pwm pin in percent",
					},
				},
			},
			{
				Name:   "components",
				Usage:  "list the configured components",
				Action: ComponentsAction,
			},
			{
				Name:   "demo",
				Usage:  "take a reading, wiggle about and stop",
				Action: DemoAction,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  flagStep,
						Value: defaultDemoStep,
						Usage: "how long each demo move lasts",
					},
				},
			},
		},
	}
}
