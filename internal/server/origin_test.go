package server

import (
	"net/http/httptest"
	"testing"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"http://LocalHost:8080"}, origin: "HTTP://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"http://localhost:8080/app"}, origin: "http://localhost:8080", want: true},
		{name: "different port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090"},
		{name: "different scheme", allowed: []string{"http://localhost:8080"}, origin: "https://localhost:8080"},
		{name: "missing origin", allowed: []string{"http://localhost:8080"}, origin: ""},
		{name: "malformed origin", allowed: []string{"http://localhost:8080"}, origin: "localhost"},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.test", want: true},
		{name: "wildcard still needs header", allowed: []string{"*"}, origin: ""},
		{name: "invalid config entries skipped", allowed: []string{"not a url", " "}, origin: "http://localhost:8080"},
		{name: "empty allow list", origin: "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed)
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := policy.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestNormalizeOrigins(t *testing.T) {
	got, allowAll := normalizeOrigins([]string{" http://A.test ", "*", "", "bogus"})
	if !allowAll {
		t.Error("allowAll = false, want true")
	}
	if len(got) != 1 || got[0] != "http://a.test" {
		t.Errorf("normalized = %v, want [http://a.test]", got)
	}
}
