package slurm

import (
	"regexp"
	"strings"
)

// CancelStatus classifies the outcome of scancel.
type CancelStatus string

const (
	CancelStatusCancelled CancelStatus = "cancelled"
	CancelStatusNotFound  CancelStatus = "not_found"
	CancelStatusDenied    CancelStatus = "denied"
	CancelStatusFailed    CancelStatus = "failed"
)

var jobIDPattern = regexp.MustCompile(`^\d+(_\d+)?$`)

var (
	notFoundPatterns = []string{
		"invalid job id",
		"already completing or completed",
		"job has already finished",
	}
	deniedPatterns = []string{
		"access/permission denied",
		"permission denied",
		"not authorized",
	}
)

// ValidJobID reports whether id is a plain or array-task job id.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// CancelCommand returns the scancel vector for id.
func CancelCommand(id string) []string {
	return []string{"scancel", id}
}

// ClassifyCancel maps scancel's exit code and stderr to a status. scancel
// exits zero for some failures, so the text is checked first.
func ClassifyCancel(exitCode int, stderr string) CancelStatus {
	text := strings.ToLower(stderr)
	switch {
	case containsAny(text, notFoundPatterns):
		return CancelStatusNotFound
	case containsAny(text, deniedPatterns):
		return CancelStatusDenied
	case exitCode == 0 && !strings.Contains(text, "error"):
		return CancelStatusCancelled
	default:
		return CancelStatusFailed
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
