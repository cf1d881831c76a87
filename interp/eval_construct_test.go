package interp

import (
	"barn/parser"
	"barn/types"
	"testing"
)

// parseExprHelper parses an expression without evaluating it.
func parseExprHelper(t *testing.T, input string) parser.Expr {
	t.Helper()
	p := parser.NewParser(input)
	expr, err := p.ParseExpression(0)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return expr
}

func TestEvalListExpr(t *testing.T) {
	result := evalExpr(t, "{1, 2, 3}")
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	list, ok := result.Val.(types.ListValue)
	if !ok {
		t.Fatalf("expected ListValue, got %T", result.Val)
	}
	if list.Len() != 3 {
		t.Errorf("expected 3 elements, got %d", list.Len())
	}
}

func TestEvalListExprWithSplice(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := types.NewTaskContext()
	evaluator.GetEnvironment().Set("rest", types.NewList([]types.Value{types.NewInt(2), types.NewInt(3)}))

	p := parseExprHelper(t, "{1, @rest, 4}")
	result := evaluator.Eval(p, ctx)
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	list, ok := result.Val.(types.ListValue)
	if !ok {
		t.Fatalf("expected ListValue, got %T", result.Val)
	}
	if list.Len() != 4 {
		t.Fatalf("expected 4 elements after splice, got %d", list.Len())
	}
	if !list.Get(2).Equal(types.NewInt(2)) || !list.Get(3).Equal(types.NewInt(3)) {
		t.Errorf("spliced elements not in expected positions: %v", list)
	}
}

func TestEvalListRangeExpr(t *testing.T) {
	result := evalExpr(t, "{1..5}")
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	list, ok := result.Val.(types.ListValue)
	if !ok {
		t.Fatalf("expected ListValue, got %T", result.Val)
	}
	if list.Len() != 5 {
		t.Fatalf("expected 5 elements, got %d", list.Len())
	}
	if !list.Get(1).Equal(types.NewInt(1)) || !list.Get(5).Equal(types.NewInt(5)) {
		t.Errorf("unexpected range contents: %v", list)
	}
}

func TestEvalMapExpr(t *testing.T) {
	result := evalExpr(t, `["a" -> 1, "b" -> 2]`)
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	m, ok := result.Val.(types.MapValue)
	if !ok {
		t.Fatalf("expected MapValue, got %T", result.Val)
	}
	if len(m.Pairs()) != 2 {
		t.Errorf("expected 2 pairs, got %d", len(m.Pairs()))
	}
}

func TestEvalCatchExprCaught(t *testing.T) {
	result := evalExpr(t, "1 / 0 `! E_DIV => -1")
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	if !result.Val.Equal(types.NewInt(-1)) {
		t.Errorf("expected -1, got %v", result.Val)
	}
}

func TestEvalCatchExprCaughtNoDefault(t *testing.T) {
	result := evalExpr(t, "1 / 0 `! E_DIV")
	if !result.IsNormal() {
		t.Fatalf("expected normal result, got flow %v", result.Flow)
	}
	errVal, ok := result.Val.(types.ErrValue)
	if !ok {
		t.Fatalf("expected ErrValue, got %T", result.Val)
	}
	if errVal.Code() != types.E_DIV {
		t.Errorf("expected E_DIV, got %v", errVal.Code())
	}
}

func TestEvalCatchExprPropagatesUnmatched(t *testing.T) {
	result := evalExpr(t, "1 / 0 `! E_TYPE => -1")
	if !result.IsError() {
		t.Fatalf("expected propagated error, got flow %v", result.Flow)
	}
	if result.Error != types.E_DIV {
		t.Errorf("expected E_DIV to propagate, got %v", result.Error)
	}
}
