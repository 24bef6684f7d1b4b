package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Severity classifies a journal finding.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
	SeverityRisk    Severity = "RISK"
)

// StepType classifies a progress entry.
type StepType string

const (
	StepExec  StepType = "EXEC"
	StepPlan  StepType = "PLAN"
	StepThink StepType = "THINK"
	StepError StepType = "ERROR"
)

// Journal is the three-file analysis state of one session: a task plan
// that gets overwritten, findings and progress that only append. The
// filesystem is the persistence layer, so entries survive restarts.
type Journal struct {
	dir          string
	planFile     string
	findingsFile string
	progressFile string
}

// ReportStats feeds the final summary table.
type ReportStats struct {
	FilesProcessed       int
	TotalFiles           int
	Duration             time.Duration
	NodesCreated         int
	RelationshipsCreated int
	ErrorCount           int
}

// OpenJournal creates or reopens the journal directory for a session,
// seeding the three state files on first use.
func OpenJournal(stateDir, sessionID string) (*Journal, error) {
	dir := filepath.Join(stateDir, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	j := &Journal{
		dir:          dir,
		planFile:     filepath.Join(dir, "task_plan.md"),
		findingsFile: filepath.Join(dir, "findings.md"),
		progressFile: filepath.Join(dir, "progress.md"),
	}

	seeds := []struct {
		path    string
		content string
	}{
		{j.planFile, "# Task Plan\n\n- [ ] Initialize analysis\n"},
		{j.findingsFile, "# Findings\n\n"},
		{j.progressFile, fmt.Sprintf("# Progress Log\n\nSession started: %s\n", time.Now().Format(time.RFC3339))},
	}
	for _, seed := range seeds {
		if _, err := os.Stat(seed.path); err == nil {
			continue
		}
		if err := os.WriteFile(seed.path, []byte(seed.content), 0o600); err != nil {
			return nil, fmt.Errorf("seeding journal file: %w", err)
		}
	}
	return j, nil
}

// UpdatePlan replaces the task plan wholesale.
func (j *Journal) UpdatePlan(content string) error {
	if err := os.WriteFile(j.planFile, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing task plan: %w", err)
	}
	return nil
}

// Plan returns the current task plan.
func (j *Journal) Plan() (string, error) {
	data, err := os.ReadFile(j.planFile)
	if err != nil {
		return "", fmt.Errorf("reading task plan: %w", err)
	}
	return string(data), nil
}

// LogFinding appends a finding with its severity and a timestamp.
func (j *Journal) LogFinding(title, description string, severity Severity) error {
	if severity == "" {
		severity = SeverityInfo
	}
	entry := fmt.Sprintf("\n## [%s] %s\n_%s_\n\n%s\n",
		severity, title, time.Now().Format("15:04:05"), description)
	return appendFile(j.findingsFile, entry)
}

// LogProgress appends one execution step to the progress log.
func (j *Journal) LogProgress(message string, step StepType) error {
	if step == "" {
		step = StepExec
	}
	entry := fmt.Sprintf("- **%s** [`%s`] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), step, message)
	return appendFile(j.progressFile, entry)
}

// LogError records a failure in the progress log.
func (j *Journal) LogError(message string) error {
	return j.LogProgress("ERROR: "+message, StepError)
}

// FinalizeReport appends the closing summary table to the progress log.
func (j *Journal) FinalizeReport(stats ReportStats) error {
	status := "Success"
	if stats.ErrorCount > 0 {
		status = "Completed with errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## Session Summary\n")
	fmt.Fprintf(&b, "**Completed at:** %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Files Analyzed | %d |\n", stats.FilesProcessed)
	fmt.Fprintf(&b, "| Total Files | %d |\n", stats.TotalFiles)
	fmt.Fprintf(&b, "| Duration | %.2fs |\n", stats.Duration.Seconds())
	fmt.Fprintf(&b, "| Nodes Created | %d |\n", stats.NodesCreated)
	fmt.Fprintf(&b, "| Relationships | %d |\n", stats.RelationshipsCreated)
	fmt.Fprintf(&b, "| Errors | %d |\n", stats.ErrorCount)
	fmt.Fprintf(&b, "\n### Status: %s\n", status)
	return appendFile(j.progressFile, b.String())
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	return nil
}
