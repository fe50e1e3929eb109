package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceiverMatches(t *testing.T) {
	assert.True(t, receiverMatches("alice@example.com", "alice@example.com"))
	assert.True(t, receiverMatches("Alice@Example.COM", "alice@example.com"))
	assert.True(t, receiverMatches(" alice@example.com ", "alice@example.com"))

	assert.False(t, receiverMatches("alice@example.com", "mallory@example.com"))
	assert.False(t, receiverMatches("alice@example.com", ""))
	assert.False(t, receiverMatches("", ""))
}
