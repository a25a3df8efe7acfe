package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHashStableAndSensitive(t *testing.T) {
	a := ContentHash([]byte("hello world"))
	b := ContentHash([]byte("hello world"))
	c := ContentHash([]byte("hello world!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
