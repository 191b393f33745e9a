package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualSets(t *testing.T) {
	assert.True(t, equalSets(nil, nil))
	assert.True(t, equalSets([]string{"read", "write"}, []string{"write", "read"}))
	assert.True(t, equalSets([]string{"read", "read"}, []string{"read"}))

	assert.False(t, equalSets([]string{"read"}, []string{"read", "write"}))
	assert.False(t, equalSets([]string{"read", "write"}, []string{"read"}))
	assert.False(t, equalSets([]string{"read"}, []string{"write"}))
	assert.False(t, equalSets([]string{"read"}, nil))
}

func TestGenerateRandomString(t *testing.T) {
	a := generateRandomString(32)
	b := generateRandomString(32)

	assert.Len(t, a, 32)
	assert.Len(t, b, 32)
	assert.NotEqual(t, a, b)
}
