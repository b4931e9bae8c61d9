package macro

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(name string, kind Kind) *Definition {
	return &Definition{Name: name, Kind: kind, Replacement: Replacement{Literal("1")}}
}

func TestTable_FindSlotAndInstall(t *testing.T) {
	tb := NewTable(0)
	slot := tb.FindSlot("FOO")
	assert.False(t, slot.Exact)
	assert.Nil(t, tb.At(slot))

	d := def("FOO", User)
	got, err := tb.Install(d, slot)
	require.NoError(t, err)
	assert.Same(t, d, got)
	assert.Equal(t, 1, tb.Len())

	slot = tb.FindSlot("FOO")
	assert.True(t, slot.Exact)
	assert.Same(t, d, tb.At(slot))

	// Replacing in place keeps the count.
	d2 := def("FOO", User)
	_, err = tb.Install(d2, slot)
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Len())
	assert.Same(t, d2, tb.Lookup("FOO"))
}

func TestTable_BucketsStaySorted(t *testing.T) {
	tb := NewTable(0)
	// Anagrams land in the same bucket.
	names := []string{"BCA", "CAB", "ABC", "BAC", "CBA", "ACB"}
	for _, n := range names {
		_, err := tb.Install(def(n, User), tb.FindSlot(n))
		require.NoError(t, err)
	}
	b := bucketOf("ABC")
	var got []string
	for _, d := range tb.buckets[b] {
		got = append(got, d.Name)
	}
	assert.Equal(t, []string{"ABC", "ACB", "BAC", "BCA", "CAB", "CBA"}, got)
	for _, n := range names {
		assert.True(t, tb.Defined(n), n)
	}
	assert.False(t, tb.Defined("AAA"))
}

func TestTable_Undefine(t *testing.T) {
	tb := NewTable(0)
	tb.DefinePrivileged(def("P", Protected))
	tb.DefinePrivileged(def("U", User))

	assert.True(t, tb.Undefine("U"))
	assert.False(t, tb.Undefine("U"), "already gone")
	assert.False(t, tb.Undefine("MISSING"))
	assert.False(t, tb.Undefine("P"), "protected")
	assert.True(t, tb.Defined("P"))

	assert.True(t, tb.UndefinePrivileged("P"))
	assert.Equal(t, 0, tb.Len())
}

func TestTable_Protected(t *testing.T) {
	tb := NewTable(0)
	p := tb.DefinePrivileged(def("__LINE__", Protected))

	_, err := tb.Install(def("__LINE__", User), tb.FindSlot("__LINE__"))
	assert.ErrorIs(t, err, ErrProtected)
	assert.Same(t, p, tb.Lookup("__LINE__"))

	// The privileged path may replace it.
	np := def("__LINE__", Protected)
	tb.DefinePrivileged(np)
	assert.Same(t, np, tb.Lookup("__LINE__"))
	assert.Equal(t, 1, tb.Len())
}

func TestTable_StrictHidesExtensions(t *testing.T) {
	tb := NewTable(0)
	tb.DefinePrivileged(def("__EXT__", Extension))
	assert.True(t, tb.Defined("__EXT__"))

	tb.Strict = true
	assert.False(t, tb.Defined("__EXT__"))
	assert.False(t, tb.Undefine("__EXT__"))
	assert.Empty(t, tb.All())
	assert.Equal(t, 1, tb.Len())
}

func TestTable_LimitExceeded(t *testing.T) {
	tb := NewTable(3)
	var calls [][2]int
	tb.LimitExceeded = func(count, limit int) {
		calls = append(calls, [2]int{count, limit})
	}
	for i := range 6 {
		name := fmt.Sprintf("M%d", i)
		_, err := tb.Install(def(name, User), tb.FindSlot(name))
		require.NoError(t, err)
	}
	assert.Equal(t, [][2]int{{4, 3}}, calls)
	assert.Equal(t, 6, tb.Len())
}

func TestTable_ClearAndAll(t *testing.T) {
	tb := NewTable(0)
	for _, n := range []string{"z", "a", "m"} {
		tb.DefinePrivileged(def(n, User))
	}
	var names []string
	for _, d := range tb.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "m", "z"}, names)

	tb.Clear()
	assert.Equal(t, 0, tb.Len())
	assert.Nil(t, tb.Lookup("a"))
}
