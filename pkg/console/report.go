package console

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/portalkeeper/pkg/portal"
)

// Report is the JSON form of a download run.
type Report struct {
	RunID      string        `json:"run_id"`
	Dir        string        `json:"dir"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   string        `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Downloaded []string      `json:"downloaded"`
	Omitted    []string      `json:"omitted"`
	Failed     []string      `json:"failed"`
	Entries    []ReportEntry `json:"entries"`
}

// ReportEntry is one catalog entry in a Report.
type ReportEntry struct {
	Label    string `json:"label"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewReport converts a run result and its error.
func NewReport(result *portal.DownloadResult, runErr error) *Report {
	r := &Report{
		RunID:      result.RunID,
		Dir:        result.Dir,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Duration:   result.FinishedAt.Sub(result.StartedAt).String(),
		Downloaded: nonNil(result.Downloaded),
		Omitted:    nonNil(result.Omitted),
		Failed:     nonNil(result.Failed),
		Entries:    make([]ReportEntry, 0, len(result.Entries)),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	for _, e := range result.Entries {
		entry := ReportEntry{
			Label:    e.Entry.Label,
			FileName: e.Entry.FileName,
			Status:   string(e.Status),
			Attempts: e.Attempts,
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		r.Entries = append(r.Entries, entry)
	}
	return r
}

// WriteReport writes the run as indented JSON to path, creating its directory.
func WriteReport(path string, result *portal.DownloadResult, runErr error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(NewReport(result, runErr), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
