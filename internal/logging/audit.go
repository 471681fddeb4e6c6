// Package logging also provides a structured audit trail of launch activity.
// Audit events are written as JSON lines so a session's history can be
// reconstructed after the fact.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Launch lifecycle events
	AuditLaunchStart    AuditEventType = "launch_start"
	AuditVersionCheck   AuditEventType = "version_check"
	AuditInstallStart   AuditEventType = "install_start"
	AuditInstallDone    AuditEventType = "install_done"
	AuditExperimentRun  AuditEventType = "experiment_run"
	AuditExperimentDone AuditEventType = "experiment_done"
	AuditLaunchAbort    AuditEventType = "launch_abort"

	// Preparation events
	AuditPreflightCheck AuditEventType = "preflight_check"
	AuditListGenerated  AuditEventType = "list_generated"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	LaunchID   string                 `json:"launch,omitempty"`
	LabelerID  string                 `json:"labeler,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit initializes the audit log file
func InitAudit() error {
	if !IsFileLoggingEnabled() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditLogger handles structured audit logging scoped to one launch
type AuditLogger struct {
	launchID  string
	labelerID string
}

// Audit returns an unscoped audit logger
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithLaunch creates an audit logger scoped to a launch
func AuditWithLaunch(launchID string) *AuditLogger {
	return &AuditLogger{launchID: launchID}
}

// AuditWithLabeler creates an audit logger scoped to a launch and labeler
func AuditWithLabeler(launchID, labelerID string) *AuditLogger {
	return &AuditLogger{launchID: launchID, labelerID: labelerID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsFileLoggingEnabled() {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.LaunchID == "" && a.launchID != "" {
		event.LaunchID = a.launchID
	}
	if event.LabelerID == "" && a.labelerID != "" {
		event.LabelerID = a.labelerID
	}

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// LaunchStart logs the beginning of a launch sequence
func (a *AuditLogger) LaunchStart(home string) {
	a.Log(AuditEvent{
		EventType: AuditLaunchStart,
		Target:    home,
		Success:   true,
		Message:   fmt.Sprintf("Launch started in %s", home),
	})
}

// VersionCheck logs the outcome of the interpreter version gate
func (a *AuditLogger) VersionCheck(found, required string, ok bool) {
	a.Log(AuditEvent{
		EventType: AuditVersionCheck,
		Target:    found,
		Success:   ok,
		Fields:    map[string]interface{}{"required": required},
		Message:   fmt.Sprintf("Version check: found %s, required %s (ok=%v)", found, required, ok),
	})
}

// Install logs a completed dependency install step
func (a *AuditLogger) Install(manifest string, durationMs int64, exitCode int) {
	a.Log(AuditEvent{
		EventType:  AuditInstallDone,
		Target:     manifest,
		Success:    exitCode == 0,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"exit_code": exitCode},
		Message:    fmt.Sprintf("Dependency install finished (%dms, exit=%d)", durationMs, exitCode),
	})
}

// ExperimentDone logs the end of the experiment process. The exit code is
// recorded for the trail but never acted on.
func (a *AuditLogger) ExperimentDone(entryPoint string, durationMs int64, exitCode int) {
	a.Log(AuditEvent{
		EventType:  AuditExperimentDone,
		Target:     entryPoint,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"exit_code": exitCode},
		Message:    fmt.Sprintf("Experiment process finished (%dms)", durationMs),
	})
}

// LaunchAbort logs a launch halted before the experiment started
func (a *AuditLogger) LaunchAbort(reason string) {
	a.Log(AuditEvent{
		EventType: AuditLaunchAbort,
		Success:   false,
		Error:     reason,
		Message:   fmt.Sprintf("Launch aborted: %s", reason),
	})
}

// PreflightCheck logs one preflight check outcome
func (a *AuditLogger) PreflightCheck(name string, passed bool, detail string) {
	a.Log(AuditEvent{
		EventType: AuditPreflightCheck,
		Target:    name,
		Success:   passed,
		Message:   fmt.Sprintf("Preflight %s: %v (%s)", name, passed, detail),
	})
}

// ListGenerated logs a generated randomization list
func (a *AuditLogger) ListGenerated(labelerID, path string, count int) {
	a.Log(AuditEvent{
		EventType: AuditListGenerated,
		LabelerID: labelerID,
		Target:    path,
		Success:   true,
		Fields:    map[string]interface{}{"stimuli": count},
		Message:   fmt.Sprintf("Randomization list written for %s (%d stimuli)", labelerID, count),
	})
}
