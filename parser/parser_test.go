package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nord/ast"
)

func parseOK(t *testing.T, source string) ast.Node {
	t.Helper()
	n, err := Parse("test.nord", source)
	require.NoError(t, err)
	return n
}

func singleStatement(t *testing.T, source string) ast.Node {
	t.Helper()
	list, ok := parseOK(t, source).(*ast.List)
	require.True(t, ok)
	require.Len(t, list.Items, 1)
	return list.Items[0]
}

func TestParseLiterals(t *testing.T) {
	lit, ok := singleStatement(t, "42").(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, "42", lit.Token.Literal)
}

func TestParseDeclareVarAndConst(t *testing.T) {
	decl, ok := singleStatement(t, "var x = 1").(*ast.Declare)
	require.True(t, ok)
	assert.Equal(t, "x", decl.Name)
	assert.False(t, decl.Const)
	require.NotNil(t, decl.Initial)

	decl, ok = singleStatement(t, "let y = 2").(*ast.Declare)
	require.True(t, ok)
	assert.True(t, decl.Const)
}

func TestParseDeclareWithoutInitializer(t *testing.T) {
	decl, ok := singleStatement(t, "var x").(*ast.Declare)
	require.True(t, ok)
	assert.Nil(t, decl.Initial)
}

func TestParseAssign(t *testing.T) {
	assign, ok := singleStatement(t, "x = 5").(*ast.Assign)
	require.True(t, ok)
	assert.Equal(t, "x", assign.Name)
}

func TestParseBinaryPrecedence(t *testing.T) {
	bin, ok := singleStatement(t, "1 + 2 * 3").(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Operator.Literal)
	_, rightIsMul := bin.Right.(*ast.Binary)
	assert.True(t, rightIsMul)
}

func TestParseComparison(t *testing.T) {
	bin, ok := singleStatement(t, "a < b").(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "<", bin.Operator.Literal)
}

func TestParseUnaryAndReturn(t *testing.T) {
	unary, ok := singleStatement(t, "-x").(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, "-", unary.Operator.Literal)

	ret, ok := singleStatement(t, "return 1").(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, "return", ret.Operator.Literal)
}

func TestParseMissingReturnExpression(t *testing.T) {
	_, err := Parse("test.nord", "return\n")
	require.Error(t, err)
}

func TestParseFuncDecl(t *testing.T) {
	fn, ok := singleStatement(t, "fn add(a, b) { return a + b }").(*ast.FuncDecl)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	assert.False(t, fn.Exported)
	assert.Equal(t, []string{"a", "b"}, fn.Args)

	fn, ok = singleStatement(t, "fn exported greet() { return 1 }").(*ast.FuncDecl)
	require.True(t, ok)
	assert.True(t, fn.Exported)
}

func TestParseCall(t *testing.T) {
	call, ok := singleStatement(t, "add(1, 2)").(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "add", call.Name)
	assert.Len(t, call.Args, 2)
}

func TestParseIfAndFor(t *testing.T) {
	ifNode, ok := singleStatement(t, "if x { y = 1 }").(*ast.If)
	require.True(t, ok)
	require.NotNil(t, ifNode.Cond)

	forNode, ok := singleStatement(t, "for x in xs { print(x) }").(*ast.For)
	require.True(t, ok)
	assert.Equal(t, "x", forNode.Var)
}

func TestParseRange(t *testing.T) {
	rng, ok := singleStatement(t, "0..10").(*ast.Range)
	require.True(t, ok)
	require.NotNil(t, rng.Begin)
	require.NotNil(t, rng.End)
}

func TestParseTupleAndGroup(t *testing.T) {
	tup, ok := singleStatement(t, "(1, 2, 3)").(*ast.TupleLiteral)
	require.True(t, ok)
	assert.Len(t, tup.Elements, 3)

	group, ok := singleStatement(t, "(1 + 2)").(*ast.Group)
	require.True(t, ok)
	require.NotNil(t, group.Inner)
}

func TestParseImport(t *testing.T) {
	mod, ok := singleStatement(t, `import "utils"`).(*ast.Module)
	require.True(t, ok)
	assert.Equal(t, "utils", mod.Name)
}

func TestParseMemberAccess(t *testing.T) {
	member, ok := singleStatement(t, "mod.greet").(*ast.Member)
	require.True(t, ok)
	assert.Equal(t, "greet", member.Name)
	_, objIsIdent := member.Object.(*ast.Literal)
	assert.True(t, objIsIdent)
}

func TestParseChainedMemberAccess(t *testing.T) {
	outer, ok := singleStatement(t, "a.b.c").(*ast.Member)
	require.True(t, ok)
	assert.Equal(t, "c", outer.Name)
	inner, ok := outer.Object.(*ast.Member)
	require.True(t, ok)
	assert.Equal(t, "b", inner.Name)
}

func TestParseMemberInvoke(t *testing.T) {
	call, ok := singleStatement(t, `mod.add(1, 2)`).(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "invoke", call.Name)
	require.Len(t, call.Args, 3)
	member, ok := call.Args[0].(*ast.Member)
	require.True(t, ok)
	assert.Equal(t, "add", member.Name)
}

func TestParseUnbalancedParenError(t *testing.T) {
	_, err := Parse("test.nord", "(1 + 2")
	require.Error(t, err)
}

func TestParseUnbalancedBraceError(t *testing.T) {
	_, err := Parse("test.nord", "if x { y = 1")
	require.Error(t, err)
}
