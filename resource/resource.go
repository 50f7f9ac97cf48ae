// Package resource defines the surface shared by every configured part of the robot.
package resource

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// A Resource is a named, closeable part of the robot (a board, a sensor, the drive base...).
type Resource interface {
	Name() string

	// Close releases the hardware held by the resource.
	Close(ctx context.Context) error
}

// Named is embedded by resources to implement Name.
type Named string

// Name returns the name of the resource.
func (n Named) Name() string {
	return string(n)
}

// TriviallyCloseable is embedded by resources that have nothing to release.
type TriviallyCloseable struct{}

// Close does nothing.
func (TriviallyCloseable) Close(ctx context.Context) error {
	return nil
}

type notFoundError struct {
	name string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", e.name)
}

// NewNotFoundError is used when a resource is not found.
func NewNotFoundError(name string) error {
	return &notFoundError{name: name}
}

// IsNotFoundError returns if the given error is any kind of not found error.
func IsNotFoundError(err error) bool {
	var errArt *notFoundError
	return errors.As(err, &errArt)
}

// NewUnexpectedTypeError is used when a resource is not of the expected type.
func NewUnexpectedTypeError(expected, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// AsType attempts to get a more specific interface from the resource.
func AsType[T Resource](from Resource) (T, error) {
	if asT, ok := from.(T); ok {
		return asT, nil
	}
	var zero T
	return zero, NewUnexpectedTypeError(zero, from)
}
