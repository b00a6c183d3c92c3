package syncer

import (
	"regexp"
	"strconv"
	"strings"

	"k8s.io/utils/ptr"
)

// TransferStats are the counts rsync reports with --stats.
type TransferStats struct {
	Files            int64 `json:"files" yaml:"files"`
	FilesTransferred int64 `json:"filesTransferred" yaml:"filesTransferred"`
	TotalSize        int64 `json:"totalSize" yaml:"totalSize"`
	TransferredSize  int64 `json:"transferredSize" yaml:"transferredSize"`

	// Reported only by newer rsync releases.
	CreatedFiles *int64 `json:"createdFiles,omitempty" yaml:"createdFiles,omitempty"`
	DeletedFiles *int64 `json:"deletedFiles,omitempty" yaml:"deletedFiles,omitempty"`

	BytesSent     *int64 `json:"bytesSent,omitempty" yaml:"bytesSent,omitempty"`
	BytesReceived *int64 `json:"bytesReceived,omitempty" yaml:"bytesReceived,omitempty"`
}

var statLine = regexp.MustCompile(`(?m)^([A-Za-z ]+):\s+([\d,]+)`)

// ParseStats extracts TransferStats from rsync --stats output. It returns nil
// unless the file count, transferred count and both sizes are present; counts
// are never synthesized.
func ParseStats(out string) *TransferStats {
	values := map[string]int64{}
	for _, m := range statLine.FindAllStringSubmatch(out, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(m[2], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(m[1]))] = n
	}

	files, okFiles := values["number of files"]
	transferred, okTransferred := values["number of regular files transferred"]
	if !okTransferred {
		// rsync < 3.1
		transferred, okTransferred = values["number of files transferred"]
	}
	total, okTotal := values["total file size"]
	sent, okSent := values["total transferred file size"]
	if !okFiles || !okTransferred || !okTotal || !okSent {
		return nil
	}

	stats := &TransferStats{
		Files:            files,
		FilesTransferred: transferred,
		TotalSize:        total,
		TransferredSize:  sent,
	}
	if v, ok := values["number of created files"]; ok {
		stats.CreatedFiles = ptr.To(v)
	}
	if v, ok := values["number of deleted files"]; ok {
		stats.DeletedFiles = ptr.To(v)
	}
	if v, ok := values["total bytes sent"]; ok {
		stats.BytesSent = ptr.To(v)
	}
	if v, ok := values["total bytes received"]; ok {
		stats.BytesReceived = ptr.To(v)
	}
	return stats
}
