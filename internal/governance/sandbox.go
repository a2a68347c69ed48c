package governance

import (
	"regexp"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// destructiveRule describes an operation-string pattern that enforceSandbox
// refuses to run, adapted from the teacher's shell-command denylist
// (internal/plugins/sandbox_patterns.go) to an opaque operation descriptor
// instead of a parsed shell command.
type destructiveRule struct {
	pattern *regexp.Regexp
	reason  string
}

var destructivePatterns = []destructiveRule{
	{regexp.MustCompile(`\brm\s+.*-[a-zA-Z]*[rR]`), "recursive remove"},
	{regexp.MustCompile(`\bdd\b\s+.*\bof=`), "raw disk write"},
	{regexp.MustCompile(`\bmkfs\b`), "filesystem format"},
	{regexp.MustCompile(`:\(\)\s*\{`), "fork bomb"},
	{regexp.MustCompile(`\bsudo\b`), "privilege escalation"},
	{regexp.MustCompile(`\bsu\s`), "switch user"},
}

// EnforceSandbox runs fn only if operation does not match the destructive
// denylist, otherwise returning a SandboxViolation without running fn.
func (g *Governance) EnforceSandbox(agentID, operation string, fn func() error) error {
	for _, rule := range destructivePatterns {
		if rule.pattern.MatchString(operation) {
			return &storage.SandboxViolation{AgentID: agentID, Operation: operation, Reason: rule.reason}
		}
	}
	return fn()
}
