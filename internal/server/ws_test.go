package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		// Allowed: localhost variants
		{name: "localhost:8200", origin: "http://localhost:8200", expected: true},
		{name: "localhost custom port", origin: "http://localhost:9999", expected: true},
		{name: "127.0.0.1", origin: "http://127.0.0.1:5555", expected: true},
		{name: "IPv6 localhost", origin: "http://[::1]:8200", expected: true},

		// Allowed: no origin header (same-origin)
		{name: "empty origin", origin: "", expected: true},

		// Rejected: external origins
		{name: "evil.com", origin: "http://evil.com", expected: false},
		{name: "lookalike subdomain", origin: "http://localhost.evil.com", expected: false},

		// Rejected: malformed origins
		{name: "invalid URL", origin: "not-a-url", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			result := checkWebSocketOrigin(req)
			if result != tt.expected {
				t.Errorf("checkWebSocketOrigin(%q) = %v, want %v", tt.origin, result, tt.expected)
			}
		})
	}
}

func TestInitAllowedOrigins(t *testing.T) {
	original := os.Getenv("A2AHUB_ALLOWED_ORIGINS")
	defer os.Setenv("A2AHUB_ALLOWED_ORIGINS", original)

	os.Setenv("A2AHUB_ALLOWED_ORIGINS", "")
	origins := initAllowedOrigins()
	if len(origins) != 4 {
		t.Errorf("initAllowedOrigins() with empty env should return 4 defaults, got %d", len(origins))
	}

	os.Setenv("A2AHUB_ALLOWED_ORIGINS", "  https://ops.example.com  , https://b.example.com")
	origins = initAllowedOrigins()
	if len(origins) != 6 {
		t.Errorf("initAllowedOrigins() with 2 custom origins should return 6 total, got %d", len(origins))
	}
	found := false
	for _, o := range origins {
		if o == "https://ops.example.com" {
			found = true
		}
	}
	if !found {
		t.Error("initAllowedOrigins() should trim whitespace from origins")
	}
}

func TestCheckWebSocketOriginEnvConfig(t *testing.T) {
	original := os.Getenv("A2AHUB_ALLOWED_ORIGINS")
	defer func() {
		os.Setenv("A2AHUB_ALLOWED_ORIGINS", original)
		allowedOrigins = initAllowedOrigins()
	}()

	os.Setenv("A2AHUB_ALLOWED_ORIGINS", "https://ops.example.com")
	allowedOrigins = initAllowedOrigins()

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{name: "configured origin", origin: "https://ops.example.com", expected: true},
		{name: "wrong scheme", origin: "http://ops.example.com", expected: false},
		{name: "unconfigured origin", origin: "https://other.example.com", expected: false},
		{name: "localhost still works", origin: "http://localhost:8200", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Header.Set("Origin", tt.origin)

			if got := checkWebSocketOrigin(req); got != tt.expected {
				t.Errorf("checkWebSocketOrigin(%q) = %v, want %v", tt.origin, got, tt.expected)
			}
		})
	}
}
