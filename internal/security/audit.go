package security

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuditSeverity classifies the impact of a single audit finding.
type AuditSeverity string

const (
	SeverityCritical AuditSeverity = "critical"
	SeverityWarn     AuditSeverity = "warn"
	SeverityInfo     AuditSeverity = "info"
)

// AuditFinding is a single configuration or filesystem audit result.
type AuditFinding struct {
	CheckID     string        `json:"check_id"`
	Severity    AuditSeverity `json:"severity"`
	Title       string        `json:"title"`
	Detail      string        `json:"detail"`
	Remediation string        `json:"remediation,omitempty"`
}

// AuditSummary tallies findings by severity.
type AuditSummary struct {
	Critical int `json:"critical"`
	Warn     int `json:"warn"`
	Info     int `json:"info"`
}

// AuditReport is the full output of RunAudit.
type AuditReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Summary   AuditSummary   `json:"summary"`
	Findings  []AuditFinding `json:"findings"`
}

// HasCritical reports whether any finding is critical severity.
func (r *AuditReport) HasCritical() bool {
	return r.Summary.Critical > 0
}

// AuditOptions configures which checks RunAudit performs.
type AuditOptions struct {
	WorkspaceRoot     string
	SecretsFilePath   string
	BlockedPaths      []string
	AllowedCommands   []string
	AutonomyLevel     AutonomyLevel
	IncludeFilesystem bool
	IncludeAutonomy   bool
	IncludeCommands   bool
	CheckSymlinks     bool
}

// RunAudit runs the configured checks and returns a report with a
// computed severity summary.
func RunAudit(opts AuditOptions) (*AuditReport, error) {
	report := &AuditReport{Timestamp: time.Now(), Findings: []AuditFinding{}}

	if opts.IncludeFilesystem {
		findings, err := auditFilesystem(opts)
		if err != nil {
			return nil, fmt.Errorf("filesystem audit: %w", err)
		}
		report.Findings = append(report.Findings, findings...)
	}

	if opts.IncludeAutonomy {
		report.Findings = append(report.Findings, auditAutonomy(opts)...)
	}

	if opts.IncludeCommands {
		report.Findings = append(report.Findings, auditCommandAllowlist(opts)...)
	}

	report.Summary = computeSummary(report.Findings)
	return report, nil
}

func computeSummary(findings []AuditFinding) AuditSummary {
	var s AuditSummary
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarn:
			s.Warn++
		case SeverityInfo:
			s.Info++
		}
	}
	return s
}

const (
	worldWritable fs.FileMode = 0002
	groupWritable fs.FileMode = 0020
)

func isWorldWritable(mode fs.FileMode) bool { return mode&worldWritable != 0 }
func isGroupWritable(mode fs.FileMode) bool { return mode&groupWritable != 0 }

// auditFilesystem checks the workspace root and secrets file for unsafe
// permissions and checks the configured blocked paths actually exist as
// distinct, non-overlapping locations.
func auditFilesystem(opts AuditOptions) ([]AuditFinding, error) {
	var findings []AuditFinding

	if opts.WorkspaceRoot != "" {
		info, err := os.Stat(opts.WorkspaceRoot)
		if err != nil {
			findings = append(findings, AuditFinding{
				CheckID:     "fs.workspace_missing",
				Severity:    SeverityCritical,
				Title:       "Workspace root does not exist",
				Detail:      fmt.Sprintf("%s: %v", opts.WorkspaceRoot, err),
				Remediation: "Create the workspace directory before starting the gateway.",
			})
		} else {
			mode := info.Mode().Perm()
			if isWorldWritable(mode) {
				findings = append(findings, AuditFinding{
					CheckID:     "fs.workspace_world_writable",
					Severity:    SeverityCritical,
					Title:       "Workspace root is world-writable",
					Detail:      fmt.Sprintf("%s has mode %o", opts.WorkspaceRoot, mode),
					Remediation: "chmod o-w the workspace root.",
				})
			}
			if opts.CheckSymlinks {
				if real, err := filepath.EvalSymlinks(opts.WorkspaceRoot); err == nil {
					if real != filepath.Clean(opts.WorkspaceRoot) {
						findings = append(findings, AuditFinding{
							CheckID:  "fs.workspace_is_symlink",
							Severity: SeverityWarn,
							Title:    "Workspace root is a symlink",
							Detail:   fmt.Sprintf("%s resolves to %s", opts.WorkspaceRoot, real),
						})
					}
				}
			}
		}

		for _, blocked := range opts.BlockedPaths {
			if isDescendant(filepath.Clean(blocked), filepath.Clean(opts.WorkspaceRoot)) {
				findings = append(findings, AuditFinding{
					CheckID:     "fs.blocked_path_inside_workspace",
					Severity:    SeverityWarn,
					Title:       "Blocked path is nested inside the workspace root",
					Detail:      fmt.Sprintf("%s is under %s", blocked, opts.WorkspaceRoot),
					Remediation: "Blocked paths overlapping the workspace can still be reached via sibling directories; confirm this is intentional.",
				})
			}
		}
	}

	if opts.SecretsFilePath != "" {
		if info, err := os.Stat(opts.SecretsFilePath); err == nil {
			mode := info.Mode().Perm()
			if mode&^SecureFileMode != 0 {
				findings = append(findings, AuditFinding{
					CheckID:     "fs.secrets_file_permissions",
					Severity:    SeverityCritical,
					Title:       "Secrets file is more permissive than 0600",
					Detail:      fmt.Sprintf("%s has mode %o", opts.SecretsFilePath, mode),
					Remediation: "chmod 0600 the secrets file.",
				})
			}
			if isGroupWritable(mode) || isWorldWritable(mode) {
				findings = append(findings, AuditFinding{
					CheckID:  "fs.secrets_file_writable",
					Severity: SeverityCritical,
					Title:    "Secrets file is writable by group or world",
					Detail:   fmt.Sprintf("%s has mode %o", opts.SecretsFilePath, mode),
				})
			}
		}
	}

	return findings, nil
}

func auditAutonomy(opts AuditOptions) []AuditFinding {
	if opts.AutonomyLevel != AutonomyFull {
		return nil
	}
	return []AuditFinding{{
		CheckID:     "config.autonomy_full",
		Severity:    SeverityWarn,
		Title:       "Autonomy level is set to full",
		Detail:      "No tool call in this configuration requires confirmation before executing.",
		Remediation: "Prefer supervised autonomy unless the deployment is fully sandboxed.",
	}}
}

func auditCommandAllowlist(opts AuditOptions) []AuditFinding {
	var findings []AuditFinding
	dangerous := map[string]bool{"rm": true, "dd": true, "mkfs": true, "shutdown": true, "reboot": true}
	for _, cmd := range opts.AllowedCommands {
		base := filepath.Base(cmd)
		if dangerous[base] {
			findings = append(findings, AuditFinding{
				CheckID:     "config.dangerous_command_allowed",
				Severity:    SeverityWarn,
				Title:       "Allowlist includes a destructive command",
				Detail:      fmt.Sprintf("%q is on the bash tool allowlist", cmd),
				Remediation: "Remove unless this deployment genuinely requires it.",
			})
		}
	}
	if len(opts.AllowedCommands) == 0 {
		findings = append(findings, AuditFinding{
			CheckID:  "config.empty_command_allowlist",
			Severity: SeverityInfo,
			Title:    "Command allowlist is empty",
			Detail:   "The bash tool will reject every invocation.",
		})
	}
	return findings
}

// isSensitiveFile reports whether a file's name suggests it holds
// credentials, independent of its actual permissions.
func isSensitiveFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	patterns := []string{"key", "secret", "token", "credential", "password", "private", ".pem", ".p12", "id_rsa", "id_ed25519"}
	for _, p := range patterns {
		if strings.Contains(base, p) {
			return true
		}
	}
	return base == ".env" || strings.HasPrefix(base, ".env.")
}

// SecureFileMode is the required permission mode for the secrets store.
const SecureFileMode fs.FileMode = 0600

// SecureDirMode is the required permission mode for directories holding
// secrets or other sensitive state.
const SecureDirMode fs.FileMode = 0700
