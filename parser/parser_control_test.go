package parser

import "testing"

func parseOneStatement(t *testing.T, input string) Stmt {
	t.Helper()
	p := NewParser(input)
	stmt, err := p.parseStatement()
	if err != nil {
		t.Fatalf("failed to parse %q: %v", input, err)
	}
	return stmt
}

func TestParseTryExcept(t *testing.T) {
	stmt := parseOneStatement(t, `try
		x = 1;
	except e (E_DIV)
		x = 2;
	endtry`)

	try, ok := stmt.(*TryExceptStmt)
	if !ok {
		t.Fatalf("expected TryExceptStmt, got %T", stmt)
	}
	if len(try.Body) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(try.Body))
	}
	if len(try.Excepts) != 1 {
		t.Fatalf("expected 1 except clause, got %d", len(try.Excepts))
	}
	except := try.Excepts[0]
	if except.Variable != "e" {
		t.Errorf("expected variable 'e', got %q", except.Variable)
	}
	if except.IsAny {
		t.Error("expected IsAny false")
	}
	if len(except.Codes) != 1 {
		t.Fatalf("expected 1 error code, got %d", len(except.Codes))
	}
}

func TestParseTryExceptAny(t *testing.T) {
	stmt := parseOneStatement(t, `try
		x = 1;
	except (ANY)
		x = 2;
	endtry`)

	try, ok := stmt.(*TryExceptStmt)
	if !ok {
		t.Fatalf("expected TryExceptStmt, got %T", stmt)
	}
	if !try.Excepts[0].IsAny {
		t.Error("expected IsAny true")
	}
	if try.Excepts[0].Variable != "" {
		t.Errorf("expected no bound variable, got %q", try.Excepts[0].Variable)
	}
}

func TestParseTryFinally(t *testing.T) {
	stmt := parseOneStatement(t, `try
		x = 1;
	finally
		y = 2;
	endtry`)

	try, ok := stmt.(*TryFinallyStmt)
	if !ok {
		t.Fatalf("expected TryFinallyStmt, got %T", stmt)
	}
	if len(try.Body) != 1 || len(try.Finally) != 1 {
		t.Errorf("expected one statement per clause, got body=%d finally=%d", len(try.Body), len(try.Finally))
	}
}

func TestParseTryExceptFinally(t *testing.T) {
	stmt := parseOneStatement(t, `try
		x = 1;
	except (E_TYPE)
		x = 2;
	finally
		y = 3;
	endtry`)

	try, ok := stmt.(*TryExceptFinallyStmt)
	if !ok {
		t.Fatalf("expected TryExceptFinallyStmt, got %T", stmt)
	}
	if len(try.Excepts) != 1 || len(try.Finally) != 1 {
		t.Errorf("expected one except and one finally statement, got excepts=%d finally=%d", len(try.Excepts), len(try.Finally))
	}
}

func TestParseForkStatement(t *testing.T) {
	stmt := parseOneStatement(t, `fork tid (5)
		notify(player, "hi");
	endfork`)

	fork, ok := stmt.(*ForkStmt)
	if !ok {
		t.Fatalf("expected ForkStmt, got %T", stmt)
	}
	if fork.VarName != "tid" {
		t.Errorf("expected VarName 'tid', got %q", fork.VarName)
	}
	if fork.Delay == nil {
		t.Error("expected non-nil Delay")
	}
	if len(fork.Body) != 1 {
		t.Errorf("expected 1 body statement, got %d", len(fork.Body))
	}
}

func TestParseForkStatementNoVar(t *testing.T) {
	stmt := parseOneStatement(t, `fork (0)
		x = 1;
	endfork`)

	fork, ok := stmt.(*ForkStmt)
	if !ok {
		t.Fatalf("expected ForkStmt, got %T", stmt)
	}
	if fork.VarName != "" {
		t.Errorf("expected empty VarName, got %q", fork.VarName)
	}
}

func TestParseScatterAssignment(t *testing.T) {
	stmt := parseOneStatement(t, `{a, ?b = 1, @rest} = args;`)

	scatter, ok := stmt.(*ScatterStmt)
	if !ok {
		t.Fatalf("expected ScatterStmt, got %T", stmt)
	}
	if len(scatter.Targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(scatter.Targets))
	}
	if scatter.Targets[0].Name != "a" || scatter.Targets[0].Optional || scatter.Targets[0].Rest {
		t.Errorf("unexpected first target: %+v", scatter.Targets[0])
	}
	if scatter.Targets[1].Name != "b" || !scatter.Targets[1].Optional || scatter.Targets[1].Default == nil {
		t.Errorf("unexpected second target: %+v", scatter.Targets[1])
	}
	if scatter.Targets[2].Name != "rest" || !scatter.Targets[2].Rest {
		t.Errorf("unexpected third target: %+v", scatter.Targets[2])
	}
	if scatter.Value == nil {
		t.Error("expected non-nil Value")
	}
}

func TestParseListLiteralStatementNotConfusedWithScatter(t *testing.T) {
	// A bare list-construction expression statement must still parse as an
	// ExprStmt, not get eaten by scatter-assignment backtracking.
	stmt := parseOneStatement(t, `{1, 2, 3};`)

	exprStmt, ok := stmt.(*ExprStmt)
	if !ok {
		t.Fatalf("expected ExprStmt, got %T", stmt)
	}
	if _, ok := exprStmt.Expr.(*ListExpr); !ok {
		t.Fatalf("expected ListExpr, got %T", exprStmt.Expr)
	}
}

func TestParseListExprWithSplice(t *testing.T) {
	p := NewParser(`{1, @rest, 3}`)
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	list, ok := expr.(*ListExpr)
	if !ok {
		t.Fatalf("expected ListExpr, got %T", expr)
	}
	if len(list.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(list.Elements))
	}
	if _, ok := list.Elements[1].(*SpliceExpr); !ok {
		t.Errorf("expected second element to be SpliceExpr, got %T", list.Elements[1])
	}
}

func TestParseListRangeExpr(t *testing.T) {
	p := NewParser(`{1..5}`)
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if _, ok := expr.(*ListRangeExpr); !ok {
		t.Fatalf("expected ListRangeExpr, got %T", expr)
	}
}

func TestParseMapExpr(t *testing.T) {
	p := NewParser(`["a" -> 1, "b" -> 2]`)
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	m, ok := expr.(*MapExpr)
	if !ok {
		t.Fatalf("expected MapExpr, got %T", expr)
	}
	if len(m.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(m.Pairs))
	}
}

func TestParseCatchExpr(t *testing.T) {
	p := NewParser("x / 0 `! E_DIV => -1")
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	catch, ok := expr.(*CatchExpr)
	if !ok {
		t.Fatalf("expected CatchExpr, got %T", expr)
	}
	if len(catch.Codes) != 1 {
		t.Fatalf("expected 1 code, got %d", len(catch.Codes))
	}
	if catch.Default == nil {
		t.Error("expected non-nil Default")
	}
}

func TestParseCatchExprAny(t *testing.T) {
	p := NewParser("x `! ANY")
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	catch, ok := expr.(*CatchExpr)
	if !ok {
		t.Fatalf("expected CatchExpr, got %T", expr)
	}
	if len(catch.Codes) != 0 {
		t.Errorf("expected no codes for ANY, got %d", len(catch.Codes))
	}
	if catch.Default != nil {
		t.Error("expected nil Default")
	}
}

func TestParseDynamicPropertyAndVerb(t *testing.T) {
	p := NewParser(`obj.(propname)`)
	expr, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	prop, ok := expr.(*PropertyExpr)
	if !ok {
		t.Fatalf("expected PropertyExpr, got %T", expr)
	}
	if prop.Property != "" || prop.PropertyExpr == nil {
		t.Errorf("expected dynamic property, got static=%q dynamic=%v", prop.Property, prop.PropertyExpr)
	}

	p2 := NewParser(`obj:(verbname)(1, 2)`)
	expr2, err := p2.ParseExpression(PREC_LOWEST)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	call, ok := expr2.(*VerbCallExpr)
	if !ok {
		t.Fatalf("expected VerbCallExpr, got %T", expr2)
	}
	if call.Verb != "" || call.VerbExpr == nil {
		t.Errorf("expected dynamic verb, got static=%q dynamic=%v", call.Verb, call.VerbExpr)
	}
	if len(call.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(call.Args))
	}
}
