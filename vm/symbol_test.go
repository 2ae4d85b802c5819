package nord

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolMapSetAndGetLocal(t *testing.T) {
	m := NewSymbolMap(nil)
	m.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 3}})

	sym, ok := m.GetLocal("x")
	require.True(t, ok)
	assert.Equal(t, SymVar, sym.Kind)
	assert.Equal(t, 3, sym.Location.Address)

	_, ok = m.GetLocal("missing")
	assert.False(t, ok)
}

func TestSymbolMapParentChain(t *testing.T) {
	outer := NewSymbolMap(nil)
	outer.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 1}})

	inner := NewSymbolMap(outer)
	inner.Set(Symbol{Name: "y", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 2}})

	sym, ok := inner.Get("x")
	require.True(t, ok, "inner scope should see outer's declarations")
	assert.Equal(t, 1, sym.Location.Address)

	_, ok = outer.Get("y")
	assert.False(t, ok, "outer scope must not see inner's declarations")
}

func TestSymbolMapShadowing(t *testing.T) {
	outer := NewSymbolMap(nil)
	outer.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 1}})

	inner := NewSymbolMap(outer)
	inner.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 9}})

	sym, ok := inner.Get("x")
	require.True(t, ok)
	assert.Equal(t, 9, sym.Location.Address, "inner declaration should shadow the outer one")

	sym, ok = outer.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1, sym.Location.Address, "outer scope must be unaffected by shadowing")
}

func TestSymbolMapOverwriteInSameScope(t *testing.T) {
	m := NewSymbolMap(nil)
	m.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 1}})
	m.Set(Symbol{Name: "x", Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: 2}})

	sym, ok := m.GetLocal("x")
	require.True(t, ok)
	assert.Equal(t, 2, sym.Location.Address)
}

// TestSymbolMapResizeAcrossLoadFactor exercises the resize-at-0.5-load-factor
// path with enough distinct names to force several grow() calls, checking
// every name is still reachable afterward.
func TestSymbolMapResizeAcrossLoadFactor(t *testing.T) {
	m := NewSymbolMap(nil)
	const n = 200
	for i := 0; i < n; i++ {
		m.Set(Symbol{Name: fmt.Sprintf("sym%d", i), Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: i}})
	}
	for i := 0; i < n; i++ {
		sym, ok := m.GetLocal(fmt.Sprintf("sym%d", i))
		require.True(t, ok, "sym%d should survive resizing", i)
		assert.Equal(t, i, sym.Location.Address)
	}
}
