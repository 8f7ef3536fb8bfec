package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunAudit_FlagsWorldWritableWorkspace(t *testing.T) {
	root := t.TempDir()
	if err := os.Chmod(root, 0o777); err != nil {
		t.Fatal(err)
	}
	report, err := RunAudit(AuditOptions{WorkspaceRoot: root, IncludeFilesystem: true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.workspace_world_writable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected world-writable finding, got %+v", report.Findings)
	}
	if !report.HasCritical() {
		t.Fatal("expected HasCritical to be true")
	}
}

func TestRunAudit_FlagsLoosePermissionSecretsFile(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err := RunAudit(AuditOptions{SecretsFilePath: secretsPath, IncludeFilesystem: true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.secrets_file_permissions" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected secrets-file-permissions finding, got %+v", report.Findings)
	}
}

func TestRunAudit_FlagsFullAutonomy(t *testing.T) {
	report, err := RunAudit(AuditOptions{AutonomyLevel: AutonomyFull, IncludeAutonomy: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 || report.Findings[0].CheckID != "config.autonomy_full" {
		t.Fatalf("got %+v", report.Findings)
	}
}

func TestRunAudit_FlagsDangerousAllowlistedCommand(t *testing.T) {
	report, err := RunAudit(AuditOptions{AllowedCommands: []string{"ls", "rm"}, IncludeCommands: true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.CheckID == "config.dangerous_command_allowed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dangerous-command finding, got %+v", report.Findings)
	}
}

func TestRunAudit_CleanConfigHasNoCritical(t *testing.T) {
	root := t.TempDir()
	report, err := RunAudit(AuditOptions{
		WorkspaceRoot:     root,
		AllowedCommands:   []string{"ls", "cat"},
		AutonomyLevel:     AutonomySupervised,
		IncludeFilesystem: true,
		IncludeAutonomy:   true,
		IncludeCommands:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.HasCritical() {
		t.Fatalf("expected no critical findings, got %+v", report.Findings)
	}
}
