package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	s := MakeBitmap(10)

	s.Set(1)
	s.Set(70)
	s.Set(200)

	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(71))
	assert.False(t, s.IsSet(-1))
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 1, s.First())

	var got []int
	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})
	assert.Equal(t, []int{1, 70, 200}, got)

	c := s.Copy()
	c.Set(5)
	assert.False(t, s.IsSet(5))
	assert.False(t, s.Equal(c))

	x := MakeBitmap(0)
	x.Set(5)
	c.AndNot(x)
	assert.True(t, s.Equal(c))

	assert.True(t, x.Add(6))
	assert.False(t, x.Add(6))

	x.AndNot(s)
	assert.Equal(t, 5, x.First())

	x.Reset()
	assert.Equal(t, -1, x.First())
	assert.Equal(t, 0, x.Size())

	// trailing zero words do not matter
	z := MakeBitmap(0)
	assert.True(t, z.Equal(MakeBitmap(300)))
}

func TestBits(t *testing.T) {
	type reg int

	s := MakeBits[reg](0)

	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3))
	assert.True(t, s.IsSet(3))

	s.Set(100)
	assert.True(t, s.IsSet(100))

	s.Reset()
	assert.False(t, s.IsSet(3))
	assert.False(t, s.IsSet(100))
}
