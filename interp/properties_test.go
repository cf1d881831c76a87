package interp

import (
	"barn/db"
	"barn/parser"
	"barn/types"
	"testing"
)

func TestPropertyInheritance(t *testing.T) {
	store := db.NewStore()
	eval := NewEvaluatorWithStore(store)
	ctx := types.NewTaskContext()

	// Create parent object with a property
	parent := db.NewObject(0, 0)
	parent.Properties["name"] = &db.Property{
		Name:  "name",
		Value: types.NewStr("parent_name"),
		Owner: 0,
		Perms: db.PropRead | db.PropWrite,
		Clear: false,
	}
	store.Add(parent)

	// Create child object inheriting from parent
	child := db.NewObject(1, 0)
	child.Parent = 0
	// Child has name property but it's clear (inherits)
	child.Properties["name"] = &db.Property{
		Name:  "name",
		Value: nil,
		Owner: 1,
		Perms: db.PropRead | db.PropWrite,
		Clear: true, // Inherits from parent
	}
	store.Add(child)

	// Test: child.name should return parent's value
	propExpr := &parser.PropertyExpr{
		Pos:      parser.Position{Line: 1, Column: 1},
		Expr:     &parser.LiteralExpr{Value: types.NewObj(1)},
		Property: "name",
	}

	result := eval.Eval(propExpr, ctx)
	if !result.IsNormal() {
		t.Fatalf("Property access failed: %v", result)
	}

	strVal, ok := result.Val.(types.StrValue)
	if !ok {
		t.Fatalf("Expected StrValue, got %T", result.Val)
	}

	if strVal.String() != `"parent_name"` {
		t.Errorf("Expected inherited value \"parent_name\", got %s", strVal.String())
	}
}

func TestPropertyOverride(t *testing.T) {
	store := db.NewStore()
	eval := NewEvaluatorWithStore(store)
	ctx := types.NewTaskContext()

	// Create parent object
	parent := db.NewObject(0, 0)
	parent.Properties["name"] = &db.Property{
		Name:  "name",
		Value: types.NewStr("parent_name"),
		Owner: 0,
		Perms: db.PropRead | db.PropWrite,
		Clear: false,
	}
	store.Add(parent)

	// Create child object that overrides the property
	child := db.NewObject(1, 0)
	child.Parent = 0
	child.Properties["name"] = &db.Property{
		Name:  "name",
		Value: types.NewStr("child_name"),
		Owner: 1,
		Perms: db.PropRead | db.PropWrite,
		Clear: false, // Has its own value
	}
	store.Add(child)

	// Test: child.name should return child's value
	propExpr := &parser.PropertyExpr{
		Pos:      parser.Position{Line: 1, Column: 1},
		Expr:     &parser.LiteralExpr{Value: types.NewObj(1)},
		Property: "name",
	}

	result := eval.Eval(propExpr, ctx)
	if !result.IsNormal() {
		t.Fatalf("Property access failed: %v", result)
	}

	strVal, ok := result.Val.(types.StrValue)
	if !ok {
		t.Fatalf("Expected StrValue, got %T", result.Val)
	}

	if strVal.String() != `"child_name"` {
		t.Errorf("Expected override value \"child_name\", got %s", strVal.String())
	}
}

func TestMultiLevelInheritance(t *testing.T) {
	store := db.NewStore()
	eval := NewEvaluatorWithStore(store)
	ctx := types.NewTaskContext()

	// Create grandparent with property x
	grandparent := db.NewObject(0, 0)
	grandparent.Properties["x"] = &db.Property{
		Name:  "x",
		Value: types.NewInt(100),
		Owner: 0,
		Perms: db.PropRead | db.PropWrite,
		Clear: false,
	}
	store.Add(grandparent)

	// Create parent (inherits from grandparent, has property y)
	parent := db.NewObject(1, 0)
	parent.Parent = 0
	parent.Properties["y"] = &db.Property{
		Name:  "y",
		Value: types.NewInt(200),
		Owner: 1,
		Perms: db.PropRead | db.PropWrite,
		Clear: false,
	}
	store.Add(parent)

	// Create child (inherits from parent)
	child := db.NewObject(2, 0)
	child.Parent = 1
	store.Add(child)

	// Test: child should inherit x from grandparent through parent
	propX := &parser.PropertyExpr{
		Pos:      parser.Position{Line: 1, Column: 1},
		Expr:     &parser.LiteralExpr{Value: types.NewObj(2)},
		Property: "x",
	}

	result := eval.Eval(propX, ctx)
	if !result.IsNormal() {
		t.Fatalf("Property x access failed: %v", result)
	}

	if intVal, ok := result.Val.(types.IntValue); !ok || intVal.Val != 100 {
		t.Errorf("Expected x=100, got %v", result.Val)
	}

	// Test: child should inherit y from parent
	propY := &parser.PropertyExpr{
		Pos:      parser.Position{Line: 1, Column: 1},
		Expr:     &parser.LiteralExpr{Value: types.NewObj(2)},
		Property: "y",
	}

	result = eval.Eval(propY, ctx)
	if !result.IsNormal() {
		t.Fatalf("Property y access failed: %v", result)
	}

	if intVal, ok := result.Val.(types.IntValue); !ok || intVal.Val != 200 {
		t.Errorf("Expected y=200, got %v", result.Val)
	}
}

func TestClearPropertyThroughChain(t *testing.T) {
	store := db.NewStore()
	eval := NewEvaluatorWithStore(store)
	ctx := types.NewTaskContext()

	//   grandparent(x=100)
	//         |
	//     parent(x cleared)
	//         |
	//       child
	// child.x should reach through parent's clear sentinel to grandparent's value

	grandparent := db.NewObject(0, 0)
	grandparent.Properties["x"] = &db.Property{
		Name:  "x",
		Value: types.NewInt(100),
		Clear: false,
	}
	store.Add(grandparent)

	parent := db.NewObject(1, 0)
	parent.Parent = 0
	parent.Properties["x"] = &db.Property{
		Name:  "x",
		Value: nil,
		Clear: true,
	}
	store.Add(parent)

	child := db.NewObject(2, 0)
	child.Parent = 1
	store.Add(child)

	propExpr := &parser.PropertyExpr{
		Pos:      parser.Position{Line: 1, Column: 1},
		Expr:     &parser.LiteralExpr{Value: types.NewObj(2)},
		Property: "x",
	}

	result := eval.Eval(propExpr, ctx)
	if !result.IsNormal() {
		t.Fatalf("Property access failed: %v", result)
	}

	intVal, ok := result.Val.(types.IntValue)
	if !ok {
		t.Fatalf("Expected IntValue, got %T", result.Val)
	}

	if intVal.Val != 100 {
		t.Errorf("Expected x=100 (inherited past clear sentinel), got %d", intVal.Val)
	}
}
