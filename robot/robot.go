// Package robot assembles a robot from its config: the board every part is wired to and the
// components attached to it.
package robot

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pibotlab/pibot/components/base"
	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/components/headerpin"
	"github.com/pibotlab/pibot/components/led"
	"github.com/pibotlab/pibot/components/sensor/linefollower"
	"github.com/pibotlab/pibot/components/sensor/ultrasonic"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/registry"
	"github.com/pibotlab/pibot/resource"
)

// Robot owns a board and the components built on it.
type Robot struct {
	mu        sync.Mutex
	cfg       *config.Config
	board     board.Board
	resources map[string]resource.Resource
	// order is construction order; Close runs in reverse.
	order  []string
	closed bool
	logger logging.Logger
}

// FromConfigPath reads the config at path and builds the robot it describes.
func FromConfigPath(ctx context.Context, path string, logger logging.Logger) (*Robot, error) {
	cfg, err := config.Read(path, logger)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, logger)
}

// New opens the configured board and constructs every component in config order. If any part
// fails, everything built so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Robot, error) {
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	boardReg, ok := registry.BoardLookup(cfg.Board.Model)
	if !ok {
		return nil, errors.Errorf("unknown board model %q", cfg.Board.Model)
	}
	converted, err := registry.ConvertAttributes(boardReg.AttributeMapConverter, cfg.Board.Attributes, "board")
	if err != nil {
		return nil, err
	}
	boardConf := cfg.Board
	boardConf.ConvertedAttributes = converted
	b, err := boardReg.Constructor(ctx, boardConf, logger.Sublogger("board"))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s board", cfg.Board.Model)
	}

	r := &Robot{
		cfg:       cfg,
		board:     b,
		resources: make(map[string]resource.Resource, len(cfg.Components)),
		logger:    logger,
	}
	for idx, comp := range cfg.Components {
		res, err := r.newComponent(ctx, idx, comp)
		if err != nil {
			return nil, multierr.Combine(err, r.Close(ctx))
		}
		r.resources[comp.Name] = res
		r.order = append(r.order, comp.Name)
	}
	logger.Infow("robot ready", "board", cfg.Board.Model, "components", r.order)
	return r, nil
}

func (r *Robot) newComponent(ctx context.Context, idx int, comp config.Component) (resource.Resource, error) {
	reg, ok := registry.ComponentLookup(comp.Type)
	if !ok {
		return nil, errors.Errorf("component %q has unknown type %q", comp.Name, comp.Type)
	}
	converted, err := registry.ConvertAttributes(reg.AttributeMapConverter, comp.Attributes, fmt.Sprintf("components.%d", idx))
	if err != nil {
		return nil, err
	}
	comp.ConvertedAttributes = converted
	res, err := reg.Constructor(ctx, r.board, comp, r.logger.Sublogger(comp.Name))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build component %q", comp.Name)
	}
	return res, nil
}

// Config returns the config the robot was built from.
func (r *Robot) Config() *config.Config {
	return r.cfg
}

// Logger returns the robot's logger.
func (r *Robot) Logger() logging.Logger {
	return r.logger
}

// Board returns the robot's board.
func (r *Robot) Board() board.Board {
	return r.board
}

// ResourceNames returns the component names in config order.
func (r *Robot) ResourceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// ResourceByName returns the component with the given name.
func (r *Robot) ResourceByName(name string) (resource.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[name]
	if !ok {
		return nil, resource.NewNotFoundError(name)
	}
	return res, nil
}

// ResourceAs returns the component with the given name as a T. An empty name picks the first
// component, in config order, that is a T.
func ResourceAs[T resource.Resource](r *Robot, name string) (T, error) {
	if name != "" {
		res, err := r.ResourceByName(name)
		if err != nil {
			var zero T
			return zero, err
		}
		return resource.AsType[T](res)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.order {
		if asT, ok := r.resources[n].(T); ok {
			return asT, nil
		}
	}
	var zero T
	return zero, errors.Errorf("no component of type %T configured", zero)
}

// RangeFinder returns the named ultrasonic range finder.
func (r *Robot) RangeFinder(name string) (*ultrasonic.RangeFinder, error) {
	return ResourceAs[*ultrasonic.RangeFinder](r, name)
}

// Base returns the named drive base.
func (r *Robot) Base(name string) (base.Base, error) {
	return ResourceAs[base.Base](r, name)
}

// LED returns the named LED.
func (r *Robot) LED(name string) (*led.LED, error) {
	return ResourceAs[*led.LED](r, name)
}

// LineFollower returns the named line follower.
func (r *Robot) LineFollower(name string) (*linefollower.LineFollower, error) {
	return ResourceAs[*linefollower.LineFollower](r, name)
}

// HeaderPin returns the named header pin.
func (r *Robot) HeaderPin(name string) (*headerpin.Pin, error) {
	return ResourceAs[*headerpin.Pin](r, name)
}

// Close closes the components in reverse construction order, then the board.
func (r *Robot) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if closeErr := r.resources[name].Close(ctx); closeErr != nil {
			err = multierr.Combine(err, errors.Wrapf(closeErr, "error closing %q", name))
		}
	}
	if closeErr := r.board.Close(ctx); closeErr != nil {
		err = multierr.Combine(err, errors.Wrap(closeErr, "error closing board"))
	}
	return err
}
