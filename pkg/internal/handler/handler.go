// Package handler provides reflection-based executor invocation for the
// job master.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds metadata about a registered task executor.
type Handler struct {
	Fn         reflect.Value
	ConfigType reflect.Type
	HasContext bool
}

// NewHandler creates a Handler from a function with one of the signatures
//
//	func(ctx context.Context, cfg T) error
//	func(cfg T) error
//	func(ctx context.Context) error
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, fmt.Errorf("executor must be a function")
	}
	if fnVal.IsNil() {
		return nil, fmt.Errorf("executor function cannot be nil")
	}

	fnType := fnVal.Type()
	h := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, fmt.Errorf("executor must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(contextType) {
		h.HasContext = true
		argIdx = 1
	} else if numIn == 2 {
		return nil, fmt.Errorf("executor with 2 arguments must take a context first")
	}
	if argIdx < numIn {
		h.ConfigType = fnType.In(argIdx)
	}

	if fnType.NumOut() != 1 || !fnType.Out(0).Implements(errorType) {
		return nil, fmt.Errorf("executor must return error")
	}
	return h, nil
}

// Execute decodes configJSON into the executor's config type and runs it.
func (h *Handler) Execute(ctx context.Context, configJSON []byte) error {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return fmt.Errorf("executor function is nil or invalid")
	}

	var args []reflect.Value
	if h.HasContext {
		args = append(args, reflect.ValueOf(ctx))
	}
	if h.ConfigType != nil {
		cfg := reflect.New(h.ConfigType)
		if err := json.Unmarshal(configJSON, cfg.Interface()); err != nil {
			return fmt.Errorf("failed to decode job config: %w", err)
		}
		args = append(args, cfg.Elem())
	}

	out := h.Fn.Call(args)
	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}
