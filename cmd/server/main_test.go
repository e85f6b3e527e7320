package main

import (
	"strings"
	"testing"

	"meunegocio/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []struct {
		name   string
		secret string
	}{
		{"empty secret", ""},
		{"short secret", "too-short"},
		{"31 characters", strings.Repeat("a", 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(config.Config{AuthSecret: tc.secret})
			if err == nil {
				t.Fatalf("expected error for %q", tc.secret)
			}
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := config.Config{AuthSecret: strings.Repeat("s", 48)}
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
