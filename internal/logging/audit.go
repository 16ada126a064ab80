// Audit logging: one JSONL record per orchestration-cycle event, kept apart
// from the category logs so a session's full history can be replayed from a
// single file.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	AuditPlanCreated   AuditEventType = "plan_created"
	AuditCycleStart    AuditEventType = "cycle_start"
	AuditCycleComplete AuditEventType = "cycle_complete"
	AuditCycleError    AuditEventType = "cycle_error"
	AuditImageResult   AuditEventType = "image_result"
	AuditReportFiled   AuditEventType = "report_filed"
)

// AuditEvent is a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	EventType  AuditEventType `json:"event"`
	SessionID  string         `json:"session"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"msg"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit log. A no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
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

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

func writeAudit(event AuditEvent) {
	if !IsDebugMode() {
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
	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// AuditCyclePlan records plan creation or re-initialization.
func AuditCyclePlan(sessionID, title string) {
	writeAudit(AuditEvent{
		EventType: AuditPlanCreated,
		SessionID: sessionID,
		Success:   true,
		Message:   fmt.Sprintf("plan created: %s", title),
	})
}

// AuditCycleStarted records the start of an orchestration cycle.
func AuditCycleStarted(sessionID string, instructionLen int) {
	writeAudit(AuditEvent{
		EventType: AuditCycleStart,
		SessionID: sessionID,
		Success:   true,
		Message:   fmt.Sprintf("cycle started (%d chars of instruction)", instructionLen),
	})
}

// AuditCycleFinished records the outcome of an orchestration cycle.
func AuditCycleFinished(sessionID string, operations int, durationMs int64, err error) {
	event := AuditEvent{
		EventType:  AuditCycleComplete,
		SessionID:  sessionID,
		Success:    err == nil,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("cycle finished: %d operations", operations),
	}
	if err != nil {
		event.EventType = AuditCycleError
		event.Error = err.Error()
		event.Message = "cycle failed"
	}
	writeAudit(event)
}

// AuditImage records one image-generation outcome within a batch.
func AuditImage(sessionID, name string, success bool, errMsg string) {
	writeAudit(AuditEvent{
		EventType: AuditImageResult,
		SessionID: sessionID,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("image %q generated=%v", name, success),
	})
}

// AuditRuntimeReport records a runtime error report arriving from the sandbox.
func AuditRuntimeReport(sessionID, message string) {
	writeAudit(AuditEvent{
		EventType: AuditReportFiled,
		SessionID: sessionID,
		Success:   true,
		Message:   fmt.Sprintf("runtime report: %s", message),
	})
}
