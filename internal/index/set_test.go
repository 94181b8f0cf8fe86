package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstDuplicate(t *testing.T) {
	dup, ok := FirstDuplicate([]int{3, 1, 4, 1, 5})
	assert.True(t, ok)
	assert.Equal(t, 1, dup)

	_, ok = FirstDuplicate([]int{2, 7, 1})
	assert.False(t, ok)

	p, ok := FirstDuplicatePath([]Path{P(0, 1), P(1, 0), P(0, 1)})
	assert.True(t, ok)
	assert.Equal(t, P(0, 1), p)
}

func TestFirstOutside(t *testing.T) {
	x, ok := FirstOutside([]int{0, 2, 3}, 3)
	assert.True(t, ok)
	assert.Equal(t, 3, x)

	x, ok = FirstOutside([]int{-1}, 3)
	assert.True(t, ok)
	assert.Equal(t, -1, x)

	_, ok = FirstOutside([]int{0, 1, 2}, 3)
	assert.False(t, ok)
}

func TestFirstShared(t *testing.T) {
	x, ok := FirstShared([]int{5, 2, 9}, []int{9, 2})
	assert.True(t, ok)
	assert.Equal(t, 2, x)

	_, ok = FirstShared([]int{1}, nil)
	assert.False(t, ok)
}

func TestSorted_DoesNotMutateInput(t *testing.T) {
	in := []int{3, 1, 2}

	out := Sorted(in)

	assert.Equal(t, []int{1, 2, 3}, out)
	assert.Equal(t, []int{3, 1, 2}, in)
}
