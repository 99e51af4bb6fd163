package main

import (
	"strings"
	"testing"

	"autocare/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortAuthSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected short AUTH_SECRET to be rejected")
	}
	if !strings.Contains(err.Error(), "AUTH_SECRET") {
		t.Fatalf("expected AUTH_SECRET in error, got %v", err)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := config.Config{
		AuthSecret:         "0123456789abcdef0123456789abcdef",
		SupervisorPassword: "oficina-segura-2026",
	}
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAllowsEmptySupervisorPassword(t *testing.T) {
	cfg := config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected empty supervisor password to be allowed, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsWeakSupervisorPasswords(t *testing.T) {
	base := config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}

	for _, weak := range []string{"abc", "senha123", "supervisor", "aaaaaaaa", "12345678", "87654321"} {
		cfg := base
		cfg.SupervisorPassword = weak
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected %q to be rejected", weak)
		}
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	if err := validatePasswordStrength("of1cina!forte"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
	if err := validatePasswordStrength("123456"); err == nil {
		t.Fatalf("expected known-weak password to fail")
	}
	if err := validatePasswordStrength("999999"); err == nil {
		t.Fatalf("expected all-same-character password to fail")
	}
	if err := validatePasswordStrength("456789"); err == nil {
		t.Fatalf("expected ascending sequence to fail")
	}
	if err := validatePasswordStrength("987654"); err == nil {
		t.Fatalf("expected descending sequence to fail")
	}
}
