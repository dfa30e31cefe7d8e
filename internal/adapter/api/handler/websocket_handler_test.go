package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	allowlist := []string{"https://agromart.app", "https://staging.agromart.app"}

	assert.True(t, originAllowed(allowlist, "https://agromart.app"))
	assert.True(t, originAllowed(allowlist, "https://staging.agromart.app"))
	assert.False(t, originAllowed(allowlist, "https://evil.example.com"))
	assert.False(t, originAllowed(allowlist, "http://agromart.app"))

	// Non-browser clients send no Origin header.
	assert.True(t, originAllowed(allowlist, ""))

	// No allowlist configured means open, for local development.
	assert.True(t, originAllowed(nil, "https://anywhere.example.com"))

	// A wildcard entry opens it explicitly.
	assert.True(t, originAllowed([]string{"*"}, "https://anywhere.example.com"))
}
