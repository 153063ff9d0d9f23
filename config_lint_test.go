package goRemote

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigNoHighWarnings(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Errorf("default config should not fail AsError(LintHigh): %v", err)
	}
	if !containsCode(cfg.Lint().Codes(), "host_keys_unverified") {
		t.Error("expected host_keys_unverified for default config")
	}
}

func TestLint_PurgeDisabledIsHigh(t *testing.T) {
	cfg := defaultConfig()
	cfg.Vault.Backend = BackendFile
	cfg.Vault.Dir = "/var/lib/goremote"
	cfg.Vault.IdentityFile = "/var/lib/goremote/identity.txt"
	cfg.Vault.PurgeOnStart = false

	ws := cfg.Lint()
	high := ws.BySeverity(LintHigh)
	if len(high) != 1 || high[0].Code != "purge_disabled" {
		t.Fatalf("expected only purge_disabled at HIGH, got %v", high.Codes())
	}
	if err := ws.AsError(LintHigh); err == nil {
		t.Error("expected AsError(LintHigh) to fail")
	}
}

func TestLint_EphemeralIdentity(t *testing.T) {
	cfg := defaultConfig()
	cfg.Vault.Backend = BackendRedis
	if !containsCode(cfg.Lint().Codes(), "identity_ephemeral") {
		t.Error("expected identity_ephemeral warning")
	}

	cfg.Vault.Backend = BackendMemory
	if containsCode(cfg.Lint().Codes(), "identity_ephemeral") {
		t.Error("memory backend should not warn about identity")
	}
}

func TestLint_LongTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.TTL = 48 * time.Hour
	if !containsCode(cfg.Lint().Codes(), "session_ttl_long") {
		t.Error("expected session_ttl_long warning")
	}
}

func TestLint_AuditAndThrottle(t *testing.T) {
	cfg := defaultConfig()
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "audit_disabled") || !containsCode(codes, "throttle_disabled") {
		t.Fatalf("expected audit_disabled and throttle_disabled, got %v", codes)
	}

	cfg.Audit.Enabled = true
	cfg.Throttle.Enabled = true
	codes = cfg.Lint().Codes()
	if containsCode(codes, "audit_disabled") || containsCode(codes, "throttle_disabled") {
		t.Fatalf("unexpected warnings %v", codes)
	}
	if !containsCode(codes, "audit_may_drop") {
		t.Error("expected audit_may_drop with DropIfFull")
	}
}

func TestLint_SeverityString(t *testing.T) {
	if LintHigh.String() != "HIGH" || LintWarn.String() != "WARN" || LintInfo.String() != "INFO" {
		t.Error("unexpected severity names")
	}
}

// helpers

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
