package cond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
)

func at(line int) token.Position { return token.Position{Filename: "c.c", Line: line} }

func yes() bool { return true }
func no() bool  { return false }

func TestStack_Balance(t *testing.T) {
	s := New(16)
	require.NoError(t, s.Enter(at(1), 1, yes))
	require.NoError(t, s.Enter(at(2), 1, no))
	require.NoError(t, s.Enter(at(3), 1, yes))
	assert.Equal(t, 3, s.Depth())
	assert.False(t, s.Compiling())

	require.NoError(t, s.Endif(at(4), 1))
	assert.False(t, s.Compiling())
	require.NoError(t, s.Endif(at(5), 1))
	assert.True(t, s.Compiling())
	require.NoError(t, s.Endif(at(6), 1))
	assert.True(t, s.Compiling())
	assert.Zero(t, s.Depth())
}

func TestStack_ExclusiveBranch(t *testing.T) {
	tests := []struct {
		name  string
		conds []bool // #if, then each #elif
		taken int    // index of the compiled branch; len(conds) means #else
	}{
		{"if taken", []bool{true, true, true}, 0},
		{"first elif", []bool{false, true, true}, 1},
		{"second elif", []bool{false, false, true}, 2},
		{"else", []bool{false, false, false}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(16)
			var compiled []int
			require.NoError(t, s.Enter(at(1), 1, func() bool { return tt.conds[0] }))
			if s.Compiling() {
				compiled = append(compiled, 0)
			}
			for i := 1; i < len(tt.conds); i++ {
				c := tt.conds[i]
				require.NoError(t, s.Elif(at(1+i), 1, func() bool { return c }))
				if s.Compiling() {
					compiled = append(compiled, i)
				}
			}
			require.NoError(t, s.Else(at(10), 1))
			if s.Compiling() {
				compiled = append(compiled, len(tt.conds))
			}
			require.NoError(t, s.Endif(at(11), 1))
			assert.Equal(t, []int{tt.taken}, compiled)
		})
	}
}

func TestStack_DeadBranchesNotEvaluated(t *testing.T) {
	s := New(16)
	calls := 0
	count := func() bool { calls++; return true }

	require.NoError(t, s.Enter(at(1), 1, no))
	require.NoError(t, s.Enter(at(2), 1, count))
	require.NoError(t, s.Elif(at(3), 1, count))
	require.NoError(t, s.Else(at(4), 1))
	assert.False(t, s.Compiling())
	require.NoError(t, s.Endif(at(5), 1))

	require.NoError(t, s.Endif(at(6), 1))

	// A taken #if suppresses every later #elif.
	require.NoError(t, s.Enter(at(8), 1, yes))
	require.NoError(t, s.Elif(at(9), 1, count))
	assert.False(t, s.Compiling())
	require.NoError(t, s.Endif(at(10), 1))

	assert.Zero(t, calls)
}

func TestStack_OverflowIsFatal(t *testing.T) {
	s := New(4)
	for i := range 4 {
		require.NoError(t, s.Enter(at(i+1), 1, yes))
	}
	err := s.Enter(at(5), 1, yes)
	require.Error(t, err)
	assert.True(t, diag.IsFatal(err))
	assert.Equal(t, 4, s.Depth())
}

func TestStack_Errors(t *testing.T) {
	s := New(8)
	assert.ErrorContains(t, s.Endif(at(1), 1), "#endif without #if")
	assert.ErrorContains(t, s.Else(at(1), 1), "#else without #if")
	assert.ErrorContains(t, s.Elif(at(1), 1, yes), "#elif without #if")

	require.NoError(t, s.Enter(at(2), 1, no))
	require.NoError(t, s.Else(at(3), 1))
	assert.True(t, s.Compiling())
	assert.ErrorContains(t, s.Elif(at(4), 1, yes), "#elif after #else (#else at line 3)")
	assert.ErrorContains(t, s.Else(at(5), 1), "#else after #else")
	// The failed directives left the state alone.
	assert.True(t, s.Compiling())
	require.NoError(t, s.Endif(at(6), 1))
}

func TestStack_FileOwnership(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Enter(at(1), 1, yes))
	// A file may not close a frame it did not open.
	assert.ErrorContains(t, s.Endif(at(1), 2), "#endif without #if")
	assert.Equal(t, 1, s.Depth())
	require.NoError(t, s.Endif(at(2), 1))
}

func TestStack_Unterminated(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Enter(at(1), 1, no))
	require.NoError(t, s.Enter(at(1), 2, yes))
	require.NoError(t, s.Enter(at(2), 2, yes))
	assert.False(t, s.Compiling())

	open := s.Unterminated(2)
	require.Len(t, open, 2)
	assert.Equal(t, 1, open[0].IfPos.Line)
	assert.Equal(t, 2, open[1].IfPos.Line)
	assert.Equal(t, 1, s.Depth())
	assert.False(t, s.Compiling())

	assert.Nil(t, s.Unterminated(2))
	require.Len(t, s.Unterminated(1), 1)
	assert.True(t, s.Compiling())
}

func TestStack_Reset(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Enter(at(1), 1, no))
	s.Reset()
	assert.Zero(t, s.Depth())
	assert.True(t, s.Compiling())
	assert.Nil(t, s.Top())
}
