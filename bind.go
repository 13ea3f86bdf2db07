// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
)

var identifier = regexp.MustCompile(`^[_A-Za-z][_A-Za-z0-9']*$`)

// reservedNames are never exposed as members so they cannot be confused
// with the module's own operations.
var reservedNames = map[string]struct{}{
	"eval": {}, "typeOf": {}, "typeof": {}, "check": {}, "exhaust": {},
	"prove": {}, "sat": {}, "allSat": {}, "setOpt": {}, "setopt": {},
	"browse": {}, "exit": {}, "decl": {}, "call": {}, "members": {},
	"declarations": {},
}

// load sends the load request, then binds the module's declarations. The
// caller closes the module on error.
func (m *Module) load(ctx context.Context, load request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep, err := m.roundTrip(ctx, load)
	if err != nil {
		return err
	}
	if rep.Tag != tagOK {
		return &ModuleLoadError{Path: load.FilePath, Message: rep.diagnostic()}
	}

	decls, err := m.browse(ctx)
	if err != nil {
		return fmt.Errorf("browsing %s: %w", m.describe(), err)
	}
	for _, decl := range decls {
		if err := m.bind(ctx, decl); err != nil {
			return err
		}
	}
	m.logger.Info("module loaded", "declarations", len(decls), "bound", len(m.decls))
	return nil
}

// bind evaluates one monomorphic declaration and records its value. The
// caller holds m.mu.
func (m *Module) bind(ctx context.Context, decl Declaration) error {
	if decl.Polymorphic() {
		m.logger.Debug("skipping polymorphic declaration", "name", decl.Name)
		return nil
	}

	expr := decl.Name
	if decl.Infix {
		expr = "(" + decl.Name + ")"
	}
	rep, err := m.roundTrip(ctx, request{Tag: tagEvalExpr, Expr: expr})
	if err != nil {
		return fmt.Errorf("binding %s: %w", decl.Name, err)
	}
	value, err := m.valueFromReply(tagEvalExpr, rep)
	if err != nil {
		var cryptolErr *CryptolError
		if errors.As(err, &cryptolErr) {
			m.logger.Warn("declaration not bound", "name", decl.Name, "error", cryptolErr.Message)
			return nil
		}
		return fmt.Errorf("binding %s: %w", decl.Name, err)
	}

	m.decls[decl.Name] = value
	m.declarations = append(m.declarations, decl)
	if isMember(decl) {
		m.members[decl.Name] = value
	}
	return nil
}

func isMember(decl Declaration) bool {
	if decl.Infix || !identifier.MatchString(decl.Name) {
		return false
	}
	_, reserved := reservedNames[decl.Name]
	return !reserved
}

func (m *Module) describe() string {
	if m.path == "" {
		return "prelude"
	}
	return m.path
}

// Decl returns the value bound to a declaration at load time. Every bound
// declaration is reachable here, including operators and reserved names.
func (m *Module) Decl(name string) (any, error) {
	value, ok := m.decls[name]
	if !ok {
		return nil, &NotInScopeError{Name: name}
	}
	return value, nil
}

// Members returns the bound declarations whose names are plain identifiers
// that do not clash with the module's own operations.
func (m *Module) Members() map[string]any {
	return maps.Clone(m.members)
}

// Member returns one of Members.
func (m *Module) Member(name string) (any, bool) {
	value, ok := m.members[name]
	return value, ok
}

// Declarations returns the metadata of the bound declarations in the order
// the server listed them.
func (m *Module) Declarations() []Declaration {
	return slices.Clone(m.declarations)
}

// Call applies the declaration name to args one at a time. With no args it
// returns the declaration's value.
func (m *Module) Call(ctx context.Context, name string, args ...any) (any, error) {
	value, err := m.Decl(name)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value, nil
	}
	fn, ok := value.(*Function)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	return fn.Call(ctx, args...)
}
