// Package registry holds the constructors for every board model and component type a robot
// config may name. Implementations register themselves from their package's init.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/pibotlab/pibot/components/board"
	"github.com/pibotlab/pibot/config"
	"github.com/pibotlab/pibot/logging"
	"github.com/pibotlab/pibot/resource"
)

// Validator is implemented by converted attribute structs that can check themselves.
type Validator interface {
	Validate(path string) error
}

// A CreateBoard opens a board from its config.
type CreateBoard func(ctx context.Context, conf config.Board, logger logging.Logger) (board.Board, error)

// A CreateComponent builds a component wired to the given board.
type CreateComponent func(
	ctx context.Context,
	b board.Board,
	conf config.Component,
	logger logging.Logger,
) (resource.Resource, error)

// Board stores a board model constructor along with its attribute converter.
type Board struct {
	Constructor           CreateBoard
	AttributeMapConverter config.AttributeMapConverter
}

// Component stores a component constructor along with its attribute converter.
type Component struct {
	Constructor           CreateComponent
	AttributeMapConverter config.AttributeMapConverter
}

var (
	registryMu        sync.RWMutex
	boardRegistry     = map[string]Board{}
	componentRegistry = map[string]Component{}
)

// RegisterBoard registers a board model to its corresponding constructor.
func RegisterBoard(model string, creator Board) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := boardRegistry[model]; old {
		panic(errors.Errorf("trying to register two boards with same model %q", model))
	}
	if creator.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for board model %q", model))
	}
	boardRegistry[model] = creator
}

// RegisterComponent registers a component type to its corresponding constructor.
func RegisterComponent(typ string, creator Component) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := componentRegistry[typ]; old {
		panic(errors.Errorf("trying to register two components with same type %q", typ))
	}
	if creator.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for component type %q", typ))
	}
	componentRegistry[typ] = creator
}

// BoardLookup looks up a board registration by the given model.
func BoardLookup(model string) (Board, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := boardRegistry[model]
	return reg, ok
}

// ComponentLookup looks up a component registration by the given type.
func ComponentLookup(typ string) (Component, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := componentRegistry[typ]
	return reg, ok
}

// ComponentTypes returns the registered component types, sorted.
func ComponentTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(componentRegistry))
	for typ := range componentRegistry {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// ConvertAttributes runs the converter (if any) over attributes and validates the result.
func ConvertAttributes(
	converter config.AttributeMapConverter,
	attributes config.AttributeMap,
	path string,
) (interface{}, error) {
	if converter == nil {
		return nil, nil
	}
	converted, err := converter(attributes)
	if err != nil {
		return nil, errors.Wrapf(err, "error converting attributes for %q", path)
	}
	if v, ok := converted.(Validator); ok {
		if err := v.Validate(path); err != nil {
			return nil, err
		}
	}
	return converted, nil
}
