package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticRequestIDs_ReturnsSameID(t *testing.T) {
	gen := NewStaticRequestIDs("req-123")

	assert.Equal(t, "req-123", gen.Generate())
	assert.Equal(t, "req-123", gen.Generate())
}

func TestStaticRequestIDs_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-request", NewStaticRequestIDs("").Generate())
}
