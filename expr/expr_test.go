package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"1", 1},
		{"0", 0},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"7 / 2", 3},
		{"7 % 4", 3},
		{"-3 + +5", 2},
		{"!0", 1},
		{"!7", 0},
		{"~0", -1},
		{"1 << 4 >> 2", 4},
		{"3 < 4", 1},
		{"3 >= 4", 0},
		{"2 == 2 != 0", 1},
		{"6 & 3", 2},
		{"6 | 3", 7},
		{"6 ^ 3", 5},
		{"1 | 2 ^ 3 & 4", 3},
		{"1 && 2", 1},
		{"0 || 5", 1},
		{"0 && 1 || 1", 1},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 0 ? 4 : 5", 5},
		{"0x1F", 31},
		{"010", 8},
		{"10UL", 10},
		{"'A'", 65},
		{`'\n'`, 10},
		{`'\x41'`, 65},
		{`'\101'`, 65},
		{"UNKNOWN + 1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Unsigned(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"-1 > 0u", 1},
		{"-1 > 0", 0},
		{"-1 < 0U", 0},
		{"0xFFFFFFFFFFFFFFFF > 0", 1},
		{"0xFFFFFFFFFFFFFFFF == -1", 1},
		{"18446744073709551615 / 2", 9223372036854775807},
		{"(0u - 8) >> 60", 15},
		{"-8 >> 1", -4},
		{"-7 / 2", -3},
		{"-7 / 2u", 9223372036854775804},
		{"~0u > 1", 1},
		{"(-1 > 0u) + 1", 2},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	for _, src := range []string{
		"0 && 1 / 0",
		"1 || 1 % 0",
		"1 ? 2 : 1 / 0",
		"0 ? 1 / 0 : 3",
	} {
		_, err := Eval(src)
		assert.NoError(t, err, src)
	}
}

func TestEval_Errors(t *testing.T) {
	_, err := Eval("1 / 0")
	assert.ErrorIs(t, err, ErrDivByZero)
	_, err = Eval("1 && 5 % 0")
	assert.ErrorIs(t, err, ErrDivByZero)

	_, err = Eval("   ")
	assert.ErrorContains(t, err, "#if with no expression")

	for _, src := range []string{"1 +", "(1", "1 2", "09", "1 ? 2"} {
		_, err := Eval(src)
		assert.Error(t, err, src)
	}
}
