package security

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Operation classifies the kind of filesystem access being validated.
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpExecute Operation = "execute"
)

// PathResult is the outcome of ValidatePath.
type PathResult struct {
	Allowed       bool
	CanonicalPath string
	Reason        string
}

// CommandResult is the outcome of ValidateCommand.
type CommandResult struct {
	Allowed bool
	Reason  string
}

// SanitizeResult is the outcome of SanitizeOutput.
type SanitizeResult struct {
	Clean    string
	Redacted bool
}

// ActionKind classifies an Action for RequiresConfirmation.
type ActionKind string

const (
	ActionRead    ActionKind = "read"
	ActionWrite   ActionKind = "write"
	ActionExecute ActionKind = "execute"
)

// Action describes an operation a tool is about to perform, for the
// purpose of classifying it under the autonomy policy table.
type Action struct {
	Type    string
	Target  string
	Details map[string]any
}

// defaultBlockedPaths returns the default system directories and
// sensitive dotfile roots that are always blocked, relative to the
// configured home directory.
func defaultBlockedPaths(home string) []string {
	paths := []string{"/etc", "/root", "/proc", "/sys", "/dev", "/boot"}
	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".config", "gcloud"),
		)
	}
	return paths
}

// Policy is the central façade for filesystem scope, command
// allowlisting, output sanitisation, and autonomy gating.
type Policy struct {
	WorkspaceRoot   string
	BlockedPaths    []string
	AllowedCommands map[string]bool
	AutonomyLevel   AutonomyLevel
	EnforceSymlinks bool
	RedactPatterns  []*regexp.Regexp
	AllowShellOptIn bool
}

// AutonomyLevel mirrors models.AutonomyLevel to avoid a dependency on
// pkg/models from this low-level package; callers convert at the edge.
type AutonomyLevel string

const (
	AutonomyReadonly   AutonomyLevel = "readonly"
	AutonomySupervised AutonomyLevel = "supervised"
	AutonomyFull       AutonomyLevel = "full"
)

// NewPolicy builds a Policy with the default blocked-path set layered
// under any caller-supplied additions.
func NewPolicy(workspaceRoot string, autonomy AutonomyLevel, extraBlocked []string, allowedCommands []string) *Policy {
	home, _ := os.UserHomeDir()
	blocked := append(defaultBlockedPaths(home), extraBlocked...)
	allowed := make(map[string]bool, len(allowedCommands))
	for _, c := range allowedCommands {
		allowed[c] = true
	}
	return &Policy{
		WorkspaceRoot:   workspaceRoot,
		BlockedPaths:    blocked,
		AllowedCommands: allowed,
		AutonomyLevel:   autonomy,
		EnforceSymlinks: true,
		RedactPatterns:  defaultRedactPatterns(),
	}
}

// ValidatePath enforces, in order: null-byte rejection, blocked-path
// rejection (exact match or descendant), workspace-escape rejection,
// and (when the path exists and symlink enforcement is on) that the
// fully-resolved real path also stays within the workspace root.
func (p *Policy) ValidatePath(path string, op Operation) PathResult {
	if strings.ContainsRune(path, 0) {
		return PathResult{Allowed: false, Reason: "path contains null byte"}
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.WorkspaceRoot, abs)
	}
	canonical := filepath.Clean(abs)

	for _, blocked := range p.BlockedPaths {
		blocked = filepath.Clean(blocked)
		if canonical == blocked || isDescendant(canonical, blocked) {
			return PathResult{Allowed: false, Reason: "path is within a blocked location"}
		}
	}

	root := filepath.Clean(p.WorkspaceRoot)
	if canonical != root && !isDescendant(canonical, root) {
		return PathResult{Allowed: false, Reason: "path escapes the workspace root"}
	}

	if p.EnforceSymlinks {
		if real, err := filepath.EvalSymlinks(canonical); err == nil {
			real = filepath.Clean(real)
			if real != root && !isDescendant(real, root) {
				return PathResult{Allowed: false, Reason: "resolved path escapes the workspace root"}
			}
		}
	}

	return PathResult{Allowed: true, CanonicalPath: canonical}
}

func isDescendant(path, ancestor string) bool {
	rel, err := filepath.Rel(ancestor, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// dangerousArgPatterns flag argument shapes known to enable shell escape
// when a tool forwards argv to an unquoted shell.
var dangerousArgPatterns = []string{";", "&&", "||", "|", "`", "$(", "${", "\n"}

// ValidateCommand rejects unless the leading program is allowlisted and
// no argument carries a shell-escape pattern (unless opted in).
func (p *Policy) ValidateCommand(argv []string) CommandResult {
	if len(argv) == 0 {
		return CommandResult{Allowed: false, Reason: "empty command"}
	}
	program := filepath.Base(argv[0])
	if !p.AllowedCommands[argv[0]] && !p.AllowedCommands[program] {
		return CommandResult{Allowed: false, Reason: "program not on the allowlist"}
	}
	if !p.AllowShellOptIn {
		for _, arg := range argv[1:] {
			for _, pattern := range dangerousArgPatterns {
				if strings.Contains(arg, pattern) {
					return CommandResult{Allowed: false, Reason: "argument contains a shell metacharacter"}
				}
			}
		}
	}
	return CommandResult{Allowed: true}
}

func defaultRedactPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis)://[^\s]+`),
		regexp.MustCompile(`(?i)aws_(secret_access_key|access_key_id)\s*[:=]\s*\S+`),
	}
}

const redactionText = "[REDACTED]"

// SanitizeOutput redacts secrets matching configured patterns.
// Idempotent: sanitizing already-clean text is a no-op.
func (p *Policy) SanitizeOutput(text string) SanitizeResult {
	clean := text
	redacted := false
	for _, pattern := range p.RedactPatterns {
		if pattern.MatchString(clean) {
			redacted = true
			clean = pattern.ReplaceAllString(clean, redactionText)
		}
	}
	return SanitizeResult{Clean: clean, Redacted: redacted}
}

// classifyAction maps an action type to {read,write,execute} by
// lowercase keyword match; unknown classifies as write (the
// conservative default).
func classifyAction(actionType string) ActionKind {
	t := strings.ToLower(actionType)
	switch {
	case strings.Contains(t, "read") || strings.Contains(t, "list") || strings.Contains(t, "stat") || strings.Contains(t, "search") || strings.Contains(t, "recall"):
		return ActionRead
	case strings.Contains(t, "exec") || strings.Contains(t, "run") || strings.Contains(t, "bash") || strings.Contains(t, "command"):
		return ActionExecute
	default:
		return ActionWrite
	}
}

// confirmationTable maps each autonomy level to which action kinds it
// still requires explicit confirmation for.
var confirmationTable = map[AutonomyLevel]map[ActionKind]bool{
	AutonomyReadonly: {
		ActionRead: false, ActionWrite: true, ActionExecute: true,
	},
	AutonomySupervised: {
		ActionRead: false, ActionWrite: false, ActionExecute: true,
	},
	AutonomyFull: {
		ActionRead: false, ActionWrite: false, ActionExecute: false,
	},
}

// RequiresConfirmation classifies the action and consults the autonomy
// policy table; true means a confirmation must be obtained before the
// action proceeds.
func (p *Policy) RequiresConfirmation(action Action) bool {
	kind := classifyAction(action.Type)
	row, ok := confirmationTable[p.AutonomyLevel]
	if !ok {
		row = confirmationTable[AutonomySupervised]
	}
	return row[kind]
}
