package goRemote

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding from [Config.Lint]. Code is stable and meant
// for allow-lists.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	codes := make([]string, len(ws))
	for i, w := range ws {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but risky. Validate must pass
// first; Lint does not repeat its checks.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	persistent := c.Vault.Backend != BackendMemory
	if persistent && !c.Vault.PurgeOnStart {
		add("purge_disabled", LintHigh,
			"sealed credentials of sessions lost in a restart stay at rest until removed by hand")
	}
	if persistent && c.Vault.IdentityFile == "" {
		add("identity_ephemeral", LintWarn,
			"vault identity is regenerated every start; entries written by earlier processes are unreadable")
	}
	if c.SSH.KnownHostsFile == "" {
		add("host_keys_unverified", LintWarn,
			"SSH host keys are accepted without verification; set ssh.known_hosts_file")
	}
	if c.Session.TTL > 24*time.Hour {
		add("session_ttl_long", LintWarn,
			"sessions idle for more than a day keep credentials in the vault")
	}
	if c.SSH.MaxDownloadBytes > 256<<20 {
		add("download_limit_large", LintWarn,
			"SFTP downloads are held in memory; limits above 256 MiB risk exhaustion")
	}
	if !c.Throttle.Enabled {
		add("throttle_disabled", LintInfo,
			"failed connects are not throttled; credential guessing through the tool API is unbounded")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "session lifecycle events are not audited")
	} else if c.Audit.DropIfFull {
		add("audit_may_drop", LintInfo, "audit events are dropped when the buffer is full")
	}

	return ws
}
