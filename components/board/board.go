// Package board defines the interfaces that typically live on a single-board computer such as a
// Raspberry Pi: individually addressable GPIO pins that can be driven, read, or PWM'd.
package board

import "github.com/pibotlab/pibot/resource"

// A Board represents a physical general purpose board that contains GPIO pins.
type Board interface {
	resource.Resource

	// GPIOPinByName returns a GPIOPin by name. Names are header pin numbers ("11", "12", ...)
	// unless the board model says otherwise.
	GPIOPinByName(name string) (GPIOPin, error)
}
