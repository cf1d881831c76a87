package interp

import (
	"barn/db"
	"barn/parser"
	"barn/types"
)

// evalProperty evaluates property access: obj.property
// Returns E_INVIND if object is invalid
// Returns E_PROPNF if property not found
// Read permission is not checked
func (e *Evaluator) evalProperty(node *parser.PropertyExpr, ctx *types.TaskContext) types.Result {
	// Evaluate the object expression
	objResult := e.Eval(node.Expr, ctx)
	if objResult.Flow != types.FlowNormal {
		return objResult
	}

	// Check that result is an object
	objVal, ok := objResult.Val.(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	objID := objVal.ID()

	// Get object from store
	obj := e.store.Get(objID)
	if obj == nil {
		// Invalid or recycled object
		return types.Err(types.E_INVIND)
	}

	name, errCode := e.resolvePropertyName(node.Property, node.PropertyExpr, ctx)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	// Check for built-in properties first
	if val, ok := e.getBuiltinProperty(obj, name); ok {
		return types.Ok(val)
	}

	// Look up property, walking the parent chain
	prop, errCode := e.findProperty(obj, name, ctx)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	// Check read permission (Layer 8.5 will add full permission checks)
	// For now, allow all reads
	_ = ctx // Will use for permission checks later

	return types.Ok(prop.Value)
}

// getBuiltinProperty returns built-in object properties (name, owner, location, etc.)
func (e *Evaluator) getBuiltinProperty(obj *db.Object, name string) (types.Value, bool) {
	switch name {
	case "name":
		return types.NewStr(obj.Name), true
	case "owner":
		return types.NewObj(obj.Owner), true
	case "location":
		return types.NewObj(obj.Location), true
	case "contents":
		vals := make([]types.Value, len(obj.Contents))
		for i, id := range obj.Contents {
			vals[i] = types.NewObj(id)
		}
		return types.NewList(vals), true
	case "parents":
		// Single inheritance: .parents is a 0- or 1-element list for
		// compatibility with code written against multi-parent MOO.
		if obj.Parent == types.ObjNothing {
			return types.NewList(nil), true
		}
		return types.NewList([]types.Value{types.NewObj(obj.Parent)}), true
	case "parent":
		return types.NewObj(obj.Parent), true
	case "children":
		vals := make([]types.Value, len(obj.Children))
		for i, id := range obj.Children {
			vals[i] = types.NewObj(id)
		}
		return types.NewList(vals), true
	case "programmer":
		if obj.Flags.Has(db.FlagProgrammer) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	case "wizard":
		if obj.Flags.Has(db.FlagWizard) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	case "player":
		if obj.Flags.Has(db.FlagUser) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	case "r":
		if obj.Flags.Has(db.FlagRead) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	case "w":
		if obj.Flags.Has(db.FlagWrite) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	case "f":
		if obj.Flags.Has(db.FlagFertile) {
			return types.NewInt(1), true
		}
		return types.NewInt(0), true
	default:
		return nil, false
	}
}

// resolvePropertyName returns the static name if set, otherwise evaluates
// the dynamic PropertyExpr (obj.(expr)) and requires it to yield a string.
func (e *Evaluator) resolvePropertyName(staticName string, dynamicExpr parser.Expr, ctx *types.TaskContext) (string, types.ErrorCode) {
	if dynamicExpr == nil {
		return staticName, types.E_NONE
	}
	result := e.Eval(dynamicExpr, ctx)
	if !result.IsNormal() {
		if result.IsError() {
			return "", result.Error
		}
		return "", types.E_TYPE
	}
	str, ok := result.Val.(types.StrValue)
	if !ok {
		return "", types.E_TYPE
	}
	return str.Value(), types.E_NONE
}

// findProperty finds a property on an object, walking the single-inheritance
// parent chain: obj -> parent -> grandparent -> ... A `:clear` property
// (one whose value was reset to inherit) is skipped in favor of the nearest
// ancestor's own value.
func (e *Evaluator) findProperty(obj *db.Object, name string, ctx *types.TaskContext) (*db.Property, types.ErrorCode) {
	visited := make(map[types.ObjID]bool)
	currentID := obj.ID

	for currentID != types.ObjNothing && !visited[currentID] {
		visited[currentID] = true

		current := e.store.Get(currentID)
		if current == nil {
			break
		}

		if prop, ok := current.Properties[name]; ok && !prop.Clear {
			return prop, types.E_NONE
		}

		currentID = current.Parent
	}

	return nil, types.E_PROPNF
}

// evalAssignProperty handles property assignment: obj.property = value
// Returns E_INVIND if object is invalid
// Returns E_PROPNF if property not found on the object itself
// Write permission is not checked
func (e *Evaluator) evalAssignProperty(node *parser.PropertyExpr, value types.Value, ctx *types.TaskContext) types.Result {
	// Evaluate the object expression
	objResult := e.Eval(node.Expr, ctx)
	if objResult.Flow != types.FlowNormal {
		return objResult
	}

	// Check that result is an object
	objVal, ok := objResult.Val.(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	objID := objVal.ID()

	// Get object from store
	obj := e.store.Get(objID)
	if obj == nil {
		// Invalid or recycled object
		return types.Err(types.E_INVIND)
	}

	name, errCode := e.resolvePropertyName(node.Property, node.PropertyExpr, ctx)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	// Check for built-in property assignment
	if e.setBuiltinProperty(obj, name, value) {
		return types.Ok(value)
	}

	// Check if property exists
	prop, ok := obj.Properties[name]
	if !ok {
		// Property not defined on this object
		return types.Err(types.E_PROPNF)
	}

	// Check write permission (Layer 8.5 will add full permission checks)
	// For now, allow all writes
	_ = ctx // Will use for permission checks later

	// If property is clear, writing to it un-clears it (per spec)
	// This sets a local value instead of inheriting
	prop.Clear = false
	prop.Value = value

	// Assignment returns the assigned value
	return types.Ok(value)
}

// setBuiltinProperty sets a built-in object property
// Returns true if the property was a built-in, false otherwise
func (e *Evaluator) setBuiltinProperty(obj *db.Object, name string, value types.Value) bool {
	switch name {
	case "name":
		if str, ok := value.(types.StrValue); ok {
			obj.Name = str.Value()
			return true
		}
		return false
	case "owner":
		if objVal, ok := value.(types.ObjValue); ok {
			obj.Owner = objVal.ID()
			return true
		}
		return false
	case "location":
		if objVal, ok := value.(types.ObjValue); ok {
			// TODO: Update contents of old/new locations
			obj.Location = objVal.ID()
			return true
		}
		return false
	case "programmer":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagProgrammer)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagProgrammer)
			}
			return true
		}
		return false
	case "wizard":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagWizard)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagWizard)
			}
			return true
		}
		return false
	case "player":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagUser)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagUser)
			}
			return true
		}
		return false
	case "r":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagRead)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagRead)
			}
			return true
		}
		return false
	case "w":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagWrite)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagWrite)
			}
			return true
		}
		return false
	case "f":
		if intVal, ok := value.(types.IntValue); ok {
			if intVal.Val != 0 {
				obj.Flags = obj.Flags.Set(db.FlagFertile)
			} else {
				obj.Flags = obj.Flags.Clear(db.FlagFertile)
			}
			return true
		}
		return false
	default:
		return false
	}
}
