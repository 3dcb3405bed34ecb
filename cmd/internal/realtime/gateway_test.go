package realtime

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("fourth event inside window should be denied")
	}
	if !rl.Allow(now.Add(2 * time.Second)) {
		t.Fatalf("event after window should be allowed again")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if !rl.Allow(time.Now()) {
		t.Fatalf("defaulted limiter should allow first event")
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		originRequired: true,
		allowedOrigins: []string{"http://localhost", "https://app.example.com"},
	}

	cases := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{"missing origin", "", false},
		{"exact match", "http://localhost", true},
		{"host match other port", "http://localhost:3000", true},
		{"host match other scheme", "https://app.example.com:8443", true},
		{"unknown origin", "https://evil.example.net", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := g.enforceOrigin(r)
			if tc.wantOK && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestEnforceOriginOptional(t *testing.T) {
	t.Parallel()

	g := &Gateway{originRequired: false, allowedOrigins: []string{"http://localhost"}}
	r := httptest.NewRequest("GET", "/ws", nil)
	if err := g.enforceOrigin(r); err != nil {
		t.Fatalf("missing origin should pass when not required: %v", err)
	}
}

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://localhost:3000":   "localhost",
		"https://App.Example.com": "app.example.com",
		"localhost:8080":          "localhost",
		"example.net":             "example.net",
		"":                        "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"http://localhost",
		"http://localhost:3000",
		"https://app.example.com",
		"*",
	})

	want := []string{"app.example.com", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns = %v, want %v", got, want)
		}
	}
}
