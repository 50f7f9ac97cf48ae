// Package base defines the drive base of a robot: skid steered motors driven by PWM duty cycle.
package base

import (
	"context"
	"time"

	"github.com/pibotlab/pibot/resource"
)

// Type is the component type name used in robot configs.
const Type = "base"

// A State is a bitmask of running motors: bit 0 right forward, bit 1 right backward, bit 2 left
// backward, bit 3 left forward.
type State uint8

// The motor states a base can be put in.
const (
	Stopped   State = 0
	Forward   State = 9
	Backward  State = 6
	TurnLeft  State = 1
	TurnRight State = 8
	SpinLeft  State = 5
	SpinRight State = 10
)

var stateNames = map[State]string{
	Stopped:   "Stopped",
	Forward:   "Forward",
	Backward:  "Backward",
	TurnLeft:  "Turn Left",
	TurnRight: "Turn Right",
	SpinLeft:  "Spin Left",
	SpinRight: "Spin Right",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Custom"
}

// A Base drives the robot's wheels. Speeds and trim are percentages of full duty cycle.
type Base interface {
	resource.Resource

	// Move puts the motors in the given state at the current speed.
	Move(ctx context.Context, state State) error

	// Drive runs the left and right sides at the given signed speeds, in [-100, 100]. A positive
	// duration stops the base once it has passed or ctx is done.
	Drive(ctx context.Context, left, right float64, duration time.Duration) error

	// Stop stops all motors.
	Stop(ctx context.Context) error

	// SetSpeed sets the speed used by Move, reapplying the current state.
	SetSpeed(ctx context.Context, speed float64) error

	// SetTrim makes the right side this much faster than the left.
	SetTrim(ctx context.Context, trim float64) error

	Speed() float64
	Trim() float64
	State() State
}
