// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"errors"
	"fmt"
)

// Function is a function value living on the server, applied through the
// module that produced it. Handles are never freed; the server owns their
// lifetime.
type Function struct {
	handle any
	module *Module
}

// Handle returns the server's opaque handle.
func (f *Function) Handle() any { return f.handle }

// Apply applies the function to one argument. A partially applied function
// comes back as another *Function.
func (f *Function) Apply(ctx context.Context, arg any) (any, error) {
	return f.module.apply(ctx, f.handle, arg)
}

// Call applies the function to args in turn.
func (f *Function) Call(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("cryptol: function called without arguments")
	}

	var result any = f
	for i, arg := range args {
		fn, ok := result.(*Function)
		if !ok {
			return nil, fmt.Errorf("cryptol: %d arguments given, result is not a function after %d", len(args), i)
		}
		next, err := fn.Apply(ctx, arg)
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}

func (f *Function) String() string {
	return fmt.Sprintf("<function %v>", f.handle)
}
