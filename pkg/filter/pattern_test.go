package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile(t *testing.T) {
	testCases := []struct {
		expression string
		value      uint32
		mask       uint32
	}{
		{"1234", 0x00001234, 0xFFFFFFFF},
		{"*1234", 0x00001234, 0x0000FFFF},
		{"1234*", 0x12340000, 0xFFFF0000},
		{"12345*", 0x12345000, 0xFFFFF000},
		{"12*", 0x12000000, 0xFF000000},
		{"*4", 0x00000004, 0x0000000F},
		{"FFF00000,1200000", 0x01200000, 0xFFF00000},
		{"7FF,124", 0x00000124, 0x000007FF},
	}
	for _, tc := range testCases {
		t.Run(tc.expression, func(t *testing.T) {
			pattern, err := Compile(tc.expression)
			assert.Nil(t, err)
			assert.Equal(t, tc.value, pattern.Value)
			assert.Equal(t, tc.mask, pattern.Mask)
		})
	}
}

func TestCompileInvalid(t *testing.T) {
	for _, expression := range []string{
		"",
		"1234$",
		"12$4*",
		"*12$4",
		"*",
		"123456789", // over 32 bits
		"FFF,123,456",
		"GG*",
	} {
		t.Run(expression, func(t *testing.T) {
			_, err := Compile(expression)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestMatch(t *testing.T) {
	pattern := IdPattern{Value: 0x01200000, Mask: 0xFFF00000}
	assert.True(t, pattern.Match(0x01234567))
	assert.True(t, pattern.Match(0x01200000))
	assert.False(t, pattern.Match(0x01334567))
	assert.False(t, pattern.Match(0x11234567))

	exact, err := Compile("7FF")
	assert.Nil(t, err)
	assert.True(t, exact.Match(0x7FF))
	assert.False(t, exact.Match(0x77F))
	// The full mask distinguishes 0x7FF from identifiers whose low
	// bits merely coincide
	assert.False(t, exact.Match(0x107FF))

	// An empty mask accepts everything
	all := IdPattern{}
	assert.True(t, all.Match(0))
	assert.True(t, all.Match(0xFFFFFFFF))
}

func TestPatternList(t *testing.T) {
	list, err := CompileList("1F*", "*80")
	assert.Nil(t, err)
	assert.True(t, list.Match(0x1F001234))
	assert.True(t, list.Match(0x00000180))
	assert.False(t, list.Match(0x2F001234))

	_, err = CompileList("1F*", "bogus$")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	var empty PatternList
	assert.False(t, empty.Match(0x100))
}
