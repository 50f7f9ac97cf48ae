package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pibotlab/pibot/components/base"
	"github.com/pibotlab/pibot/components/headerpin"
	_ "github.com/pibotlab/pibot/components/register"
)

func runApp(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(strings.NewReader(in), &out, &errOut)
	err := app.RunContext(context.Background(), append([]string{"pibot"}, args...))
	t.Log(errOut.String())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robot.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestComponents(t *testing.T) {
	out, err := runApp(t, "", "--fake", "components")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "board: fake")
	test.That(t, out, test.ShouldContainSubstring, "sonar")
	test.That(t, out, test.ShouldContainSubstring, "echo_pin=12 trigger_pin=11")
	test.That(t, out, test.ShouldContainSubstring, "line_follower")

	_, err = runApp(t, "", "--config", filepath.Join(t.TempDir(), "missing.json"), "components")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDistance(t *testing.T) {
	out, err := runApp(t, "", "--fake", "distance", "--samples", "1", "--repeat", "2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(out, "sonar: no echo"), test.ShouldEqual, 2)

	_, err = runApp(t, "", "--fake", "distance", "--sensor", "base")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDriveAndStop(t *testing.T) {
	out, err := runApp(t, "", "--fake", "drive", "--left", "50", "--right", "-50", "--duration", "10ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "driving left 50% right -50% for 10ms")

	_, err = runApp(t, "", "--fake", "drive", "--right", "50")
	test.That(t, err, test.ShouldNotBeNil)

	out, err = runApp(t, "", "--fake", "stop")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "stopped")
}

func TestLED(t *testing.T) {
	out, err := runApp(t, "", "--fake", "led", "--intensity", "30")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "led at 30%")

	out, err = runApp(t, "", "--fake", "led", "--on")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "led at 100%")

	_, err = runApp(t, "", "--fake", "led")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "", "--fake", "led", "--on", "--off")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLine(t *testing.T) {
	out, err := runApp(t, "", "--fake", "line")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "line: off the line")
}

func TestPin(t *testing.T) {
	path := writeConfig(t, `{
		"board": {"model": "fake"},
		"components": [
			{"name": "j9", "type": "header_pin", "attributes": {"header": 9, "position": 1, "mode": "output"}},
			{"name": "j5", "type": "header_pin", "attributes": {"header": 5, "position": 3, "mode": "pwm"}}
		]
	}`)

	out, err := runApp(t, "", "--config", path, "pin", "--set", "high")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "j9 set high")

	_, err = runApp(t, "", "--config", path, "pin", "--set", "sideways")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "", "--config", path, "pin", "--get")
	test.That(t, errors.Is(err, headerpin.ErrWrongMode), test.ShouldBeTrue)

	out, err = runApp(t, "", "--config", path, "pin", "--name", "j5", "--pwm", "30")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "j5 duty cycle set")

	_, err = runApp(t, "", "--config", path, "pin")
	test.That(t, err, test.ShouldNotBeNil)

	// the stock layout has no header pins.
	_, err = runApp(t, "", "--fake", "pin", "--get")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTeleop(t *testing.T) {
	out, err := runApp(t, "\x1b[A+x\x1b[D- q\x1b[B", "--fake", "teleop")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Forward at 50%")
	test.That(t, out, test.ShouldContainSubstring, "Forward at 60%")
	test.That(t, out, test.ShouldContainSubstring, "Spin Left at 60%")
	test.That(t, out, test.ShouldContainSubstring, "Spin Left at 50%")
	test.That(t, out, test.ShouldContainSubstring, "Stopped at 50%")
	// q ends the session before the last key.
	test.That(t, out, test.ShouldNotContainSubstring, "Backward")

	out, err = runApp(t, "\x1b[B\x03", "--fake", "teleop", "--speed", "20")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Backward at 20%")
	test.That(t, out, test.ShouldContainSubstring, "interrupted")

	out, err = runApp(t, "\x1b[C", "--fake", "teleop")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Spin Right at 50%")
}

func TestDemo(t *testing.T) {
	out, err := runApp(t, "", "--fake", "demo", "--step", "1ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "sonar: no echo")
	test.That(t, out, test.ShouldContainSubstring, "Spin Left")
	test.That(t, strings.Count(out, "Turn Right"), test.ShouldEqual, 5)
	test.That(t, out, test.ShouldContainSubstring, "Backward\nSpin Left\n")
}

func TestDemoScript(t *testing.T) {
	script := demoScript()
	test.That(t, len(script), test.ShouldEqual, 12)
	test.That(t, script[0], test.ShouldResemble, demoMove{base.Backward, false})
	test.That(t, script[1], test.ShouldResemble, demoMove{base.SpinLeft, true})
	for _, move := range script[2:] {
		test.That(t, move.hold, test.ShouldBeTrue)
	}
	test.That(t, script[len(script)-1].state, test.ShouldEqual, base.TurnLeft)
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pibot.log")
	_, err := runApp(t, "", "--fake", "--debug", "--log-file", path, "stop")
	test.That(t, err, test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "Motors shut down")
}
