package bloom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInsertedContains(t *testing.T) {
	f := NewDefault()
	x := make([]byte, DefaultSize)
	x[0] = 0xAB
	x[31] = 0x01

	g := f.WithInserted(x)
	require.True(t, g.Contains(x))
	require.False(t, f.Contains(x), "original filter must be unmodified")
}

func TestInsertCommutative(t *testing.T) {
	x := make([]byte, DefaultSize)
	x[3] = 0xF0
	y := make([]byte, DefaultSize)
	y[5] = 0x0F

	a := NewDefault()
	a.Insert(x)
	a.Insert(y)

	b := NewDefault()
	b.Insert(y)
	b.Insert(x)

	require.True(t, a.Equal(b))
}

func TestInsertIdempotent(t *testing.T) {
	x := make([]byte, DefaultSize)
	x[0] = 0xFF

	a := NewDefault()
	a.Insert(x)
	a.Insert(x)

	b := NewDefault()
	b.Insert(x)

	require.True(t, a.Equal(b))
}

func TestContainsFalseNegativeImpossible(t *testing.T) {
	x := make([]byte, DefaultSize)
	for i := range x {
		x[i] = byte(i)
	}
	f := NewDefault()
	f.Insert(x)
	require.True(t, f.Contains(x))
}

func TestContainsRejectsUnrelated(t *testing.T) {
	x := make([]byte, DefaultSize)
	x[0] = 0x01
	f := NewDefault()
	f.Insert(x)

	y := make([]byte, DefaultSize)
	y[1] = 0x01
	require.False(t, f.Contains(y))
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-1)
	require.Error(t, err)
}

func TestKeyDistinguishesDistinctFilters(t *testing.T) {
	a := NewDefault()
	b := NewDefault()
	require.Equal(t, a.Key(), b.Key())

	x := make([]byte, DefaultSize)
	x[0] = 1
	a.Insert(x)
	require.NotEqual(t, a.Key(), b.Key())
}
