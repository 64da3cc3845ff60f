package auth

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAllowedOriginsFromEnv_WithValue(t *testing.T) {
	_ = os.Setenv("TEST_ORIGINS", "http://localhost:3000,https://example.com")
	defer func() { _ = os.Unsetenv("TEST_ORIGINS") }()

	origins := GetAllowedOriginsFromEnv("TEST_ORIGINS", []string{"http://default"})

	assert.Equal(t, 2, len(origins))
	assert.Equal(t, "http://localhost:3000", origins[0])
	assert.Equal(t, "https://example.com", origins[1])
}

func TestGetAllowedOriginsFromEnv_Empty(t *testing.T) {
	_ = os.Unsetenv("TEST_ORIGINS_EMPTY")

	defaults := []string{"http://localhost:3000", "http://localhost:8080"}
	origins := GetAllowedOriginsFromEnv("TEST_ORIGINS_EMPTY", defaults)

	assert.Equal(t, defaults, origins)
}

func TestValidateOrigin_Allowed(t *testing.T) {
	req := httptest.NewRequest("GET", "/rtm", nil)
	req.Header.Set("Origin", "https://chat.example.com")

	err := ValidateOrigin(req, []string{"https://chat.example.com"})
	assert.NoError(t, err)
}

func TestValidateOrigin_Rejected(t *testing.T) {
	req := httptest.NewRequest("GET", "/rtm", nil)
	req.Header.Set("Origin", "https://evil.example.com")

	err := ValidateOrigin(req, []string{"https://chat.example.com"})
	assert.Error(t, err)
}

func TestValidateOrigin_EmptyOriginAllowed(t *testing.T) {
	// Non-browser clients send no Origin header.
	req := httptest.NewRequest("GET", "/rtm", nil)

	err := ValidateOrigin(req, []string{"https://chat.example.com"})
	assert.NoError(t, err)
}
