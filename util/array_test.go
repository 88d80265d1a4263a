package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsStringInArray(t *testing.T) {
	assert.True(t, ContainsStringInArray([]string{"a", "b"}, "b"))
	assert.False(t, ContainsStringInArray([]string{"a", "b"}, "c"))
	assert.False(t, ContainsStringInArray(nil, "a"))
}

func TestAppendNonNullValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, AppendNonNullValues("a", "", "b", ""))
	assert.Empty(t, AppendNonNullValues("", ""))
}

func TestGetStringListAsBatch(t *testing.T) {
	batches := GetStringListAsBatch([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Empty(t, GetStringListAsBatch(nil, 2))
}

func TestUniqueStrings(t *testing.T) {
	// First-seen order is preserved.
	assert.Equal(t, []string{"b", "a", "c"}, UniqueStrings([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, UniqueStrings(nil))
}
