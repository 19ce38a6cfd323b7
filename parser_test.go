package main

import (
	"testing"

	"github.com/nalgeon/be"
)

func parseSource(t *testing.T, src string) *Node {
	t.Helper()
	Init([]byte(src+"\x00"), "test.pl0")
	ast, err := ParseProgram()
	be.Err(t, err, nil)
	return ast
}

func TestParseOutputStatement(t *testing.T) {
	ast := parseSource(t, "! 1.")
	be.Equal(t, ToSExpr(ast),
		"(program (block (const) (var) (procedure) (statement (out (expression (sign) (term (factor (number 1))))))))")
}

func TestParseBlockShape(t *testing.T) {
	ast := parseSource(t, "const a = 1, b = 2; var c, d; procedure p; ! a; c := b.")
	block := ast.Children[0]

	be.Equal(t, block.Tag, TagBlock)
	be.Equal(t, len(block.Children), 4)
	be.Equal(t, block.Children[0].Tag, TagConst)
	be.Equal(t, block.Children[1].Tag, TagVar)
	be.Equal(t, block.Children[2].Tag, TagProcedure)
	be.Equal(t, block.Children[3].Tag, TagStatement)

	consts := block.Children[0]
	be.Equal(t, len(consts.Children), 4) // two (ident, number) pairs
	be.Equal(t, consts.Children[0].Token, "a")
	be.Equal(t, consts.Children[1].Token, "1")
	be.Equal(t, consts.Children[2].Token, "b")
	be.Equal(t, consts.Children[3].Token, "2")

	vars := block.Children[1]
	be.Equal(t, len(vars.Children), 2)
	be.Equal(t, vars.Children[0].Token, "c")
	be.Equal(t, vars.Children[1].Token, "d")

	procs := block.Children[2]
	be.Equal(t, len(procs.Children), 2) // one (ident, block) pair
	be.Equal(t, procs.Children[0].Token, "p")
	be.Equal(t, procs.Children[1].Tag, TagBlock)
}

func TestParseAssignment(t *testing.T) {
	ast := parseSource(t, "var x; x := 7.")
	stmt := ast.Children[0].Children[3]

	assign := stmt.Children[0]
	be.Equal(t, assign.Tag, TagAssignment)
	be.Equal(t, assign.Children[0].Token, "x")
	be.Equal(t, assign.Children[1].Tag, TagExpression)
}

func TestParseCall(t *testing.T) {
	ast := parseSource(t, "procedure p; ; call p.")
	stmt := ast.Children[0].Children[3]

	call := stmt.Children[0]
	be.Equal(t, call.Tag, TagCall)
	be.Equal(t, call.Children[0].Token, "p")
}

func TestParseIfAndCondition(t *testing.T) {
	ast := parseSource(t, "var x; if x < 3 then x := 1.")
	ifNode := ast.Children[0].Children[3].Children[0]

	be.Equal(t, ifNode.Tag, TagIf)
	be.Equal(t, ifNode.Children[0].Tag, TagCondition)
	compare := ifNode.Children[0].Children[0]
	be.Equal(t, compare.Tag, TagCompare)
	be.Equal(t, compare.Children[1].Tag, TagRelOp)
	be.Equal(t, compare.Children[1].Token, "<")
	be.Equal(t, ifNode.Children[1].Tag, TagStatement)
}

func TestParseWhileWithOdd(t *testing.T) {
	ast := parseSource(t, "var x; while odd x do x := 0.")
	whileNode := ast.Children[0].Children[3].Children[0]

	be.Equal(t, whileNode.Tag, TagWhile)
	odd := whileNode.Children[0].Children[0]
	be.Equal(t, odd.Tag, TagOdd)
	be.Equal(t, odd.Children[0].Tag, TagExpression)
}

func TestParseCompoundStatement(t *testing.T) {
	ast := parseSource(t, "var x; begin x := 1; x := 2; x := 3 end.")
	stmts := ast.Children[0].Children[3].Children[0]

	be.Equal(t, stmts.Tag, TagStatements)
	be.Equal(t, len(stmts.Children), 3)
	for _, child := range stmts.Children {
		be.Equal(t, child.Tag, TagStatement)
	}
}

func TestParseParenthesizedExpression(t *testing.T) {
	ast := parseSource(t, "! (1 + 2) * 3.")
	out := ast.Children[0].Children[3].Children[0]
	term := out.Children[0].Children[1]

	be.Equal(t, term.Tag, TagTerm)
	be.Equal(t, len(term.Children), 3) // factor, mulop, factor
	be.Equal(t, term.Children[0].Children[0].Tag, TagExpression)
	be.Equal(t, term.Children[1].Token, "*")
}

func TestParseLeadingSign(t *testing.T) {
	ast := parseSource(t, "! -5.")
	expr := ast.Children[0].Children[3].Children[0].Children[0]

	be.Equal(t, expr.Children[0].Tag, TagSign)
	be.Equal(t, expr.Children[0].Token, "-")
}

func TestParseEmptyStatement(t *testing.T) {
	ast := parseSource(t, ".")
	stmt := ast.Children[0].Children[3]

	be.Equal(t, stmt.Tag, TagStatement)
	be.Equal(t, len(stmt.Children), 0)
}

func TestParseParentLinks(t *testing.T) {
	ast := parseSource(t, "var x; begin x := 1; ! x end.")

	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			be.True(t, child.Parent == n)
			walk(child)
		}
	}
	be.True(t, ast.Parent == nil)
	walk(ast)
}

func TestParseMissingPeriod(t *testing.T) {
	Init([]byte("! 1\x00"), "test.pl0")

	var logged []string
	parseLogger = func(ln, col int, msg string) {
		logged = append(logged, formatErrorMessage("test.pl0", ln, col, msg))
	}
	defer func() { parseLogger = nil }()

	_, err := ParseProgram()
	be.True(t, err != nil)
	be.Equal(t, len(logged), 1)
}

func TestParseTrailingInput(t *testing.T) {
	Init([]byte("! 1. x\x00"), "test.pl0")
	_, err := ParseProgram()
	be.True(t, err != nil)
}

func TestParseInvalidFactor(t *testing.T) {
	Init([]byte("! *.\x00"), "test.pl0")
	_, err := ParseProgram()
	be.True(t, err != nil)
}
