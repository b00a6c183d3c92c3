package serializer

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type testJob struct {
	ID    string `json:"id" yaml:"id"`
	Nodes int    `json:"nodes" yaml:"nodes"`
}

type testJobs []testJob

func (j testJobs) TableHeader() []string { return []string{"JOBID", "NODES"} }

func (j testJobs) TableRows() [][]string {
	rows := make([][]string, len(j))
	for i, job := range j {
		rows[i] = []string{job.ID, strings.Repeat("x", job.Nodes)}
	}
	return rows
}

func TestWriter_SerializeJSON(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatJSON, &buf)

	data := []testJob{{ID: "100", Nodes: 1}, {ID: "101", Nodes: 2}}
	if err := writer.Serialize(context.Background(), data); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var result []testJob
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if len(result) != 2 || result[1].ID != "101" {
		t.Errorf("Unexpected data: %+v", result)
	}
}

func TestWriter_SerializeYAML(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatYAML, &buf)

	if err := writer.Serialize(context.Background(), []testJob{{ID: "100", Nodes: 4}}); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var result []testJob
	if err := yaml.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal YAML: %v", err)
	}
	if len(result) != 1 || result[0].Nodes != 4 {
		t.Errorf("Unexpected data: %+v", result)
	}
}

func TestWriter_SerializeTable_Tabular(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatTable, &buf)

	data := testJobs{{ID: "100", Nodes: 1}, {ID: "20001", Nodes: 3}}
	if err := writer.Serialize(context.Background(), data); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "JOBID") || !strings.Contains(lines[0], "NODES") {
		t.Errorf("unexpected header %q", lines[0])
	}
	// columns are aligned
	if strings.Index(lines[1], "x") != strings.Index(lines[2], "xxx") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestWriter_SerializeTable_Flattened(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatTable, &buf)

	type inner struct {
		Host    string
		Latency time.Duration
	}
	type outer struct {
		Login      string
		Inner      inner
		Partitions []string
		Gres       *string
		items      int
	}

	data := []any{outer{Login: "alice@koa", Inner: inner{Host: "login1", Latency: 1500 * time.Millisecond}, Partitions: []string{"gpu", "shared"}, items: 1}}
	if err := writer.Serialize(context.Background(), data); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"FIELD", "VALUE", "[0].Login", "[0].Inner.Host", "login1", "1.5s", "gpu shared", "[0].Gres", "<nil>"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "items") {
		t.Error("unexported field rendered")
	}
}

func TestWriter_SerializeTable_EmptyData(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatTable, &buf)

	if err := writer.Serialize(context.Background(), []testJob{}); err != nil {
		t.Fatalf("Serialize empty slice failed: %v", err)
	}
	if !strings.Contains(buf.String(), "<empty>") {
		t.Errorf("Expected '<empty>' in output for empty data, got: %s", buf.String())
	}
}

func TestWriter_SerializeTable_Maps(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(FormatTable, &buf)

	data := map[string]any{"files": 12, "bytes": 4096, "success": true}
	if err := writer.Serialize(context.Background(), data); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	// rows are sorted by key
	if !strings.HasPrefix(lines[1], "bytes") || !strings.HasPrefix(lines[3], "success") {
		t.Errorf("rows not sorted:\n%s", buf.String())
	}
}

func TestWriter_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewWriter(FormatJSON, &buf).Serialize(ctx, testJob{ID: "1"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNewWriter_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(Format("xml"), &buf)

	if err := writer.Serialize(context.Background(), testJob{ID: "7", Nodes: 1}); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var result testJob
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal as JSON: %v", err)
	}
	if result.ID != "7" {
		t.Errorf("Unexpected data: %+v", result)
	}
}

func TestWriter_Close(t *testing.T) {
	writer := NewStdoutWriter(FormatJSON)
	if err := writer.Close(); err != nil {
		t.Errorf("Close on stdout writer should not error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Multiple Close calls should not error: %v", err)
	}
}

func TestNewFileWriterOrStdout_EmptyPath(t *testing.T) {
	for _, path := range []string{"", "  ", "\t", "\n", "-"} {
		writer, err := NewFileWriterOrStdout(FormatJSON, path)
		if err != nil {
			t.Fatalf("Expected no error for path %q, got: %v", path, err)
		}
		if closer, ok := writer.(Closer); ok {
			if err := closer.Close(); err != nil {
				t.Errorf("Close failed for stdout writer: %v", err)
			}
		}
	}
}

func TestNewFileWriterOrStdout_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")

	writer, err := NewFileWriterOrStdout(FormatFromPath(path, FormatTable), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := writer.Serialize(context.Background(), testJob{ID: "42", Nodes: 2}); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if err := writer.(Closer).Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	var result testJob
	if err := yaml.Unmarshal(content, &result); err != nil {
		t.Fatalf("Failed to unmarshal file content: %v", err)
	}
	if result.ID != "42" || result.Nodes != 2 {
		t.Errorf("Unexpected data in file: %+v", result)
	}
}

func TestNewFileWriterOrStdout_InvalidPath(t *testing.T) {
	writer, err := NewFileWriterOrStdout(FormatJSON, "/nonexistent/path/file.json")
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
	if writer != nil {
		t.Error("Expected nil writer when error is returned")
	}
	if !strings.Contains(err.Error(), "failed to create output file") {
		t.Errorf("Expected helpful error message, got: %v", err)
	}
}

func TestFormat_IsUnknown(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatJSON, false},
		{FormatYAML, false},
		{FormatTable, false},
		{Format("invalid"), true},
		{Format(""), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsUnknown(); got != tt.want {
				t.Errorf("Format(%q).IsUnknown() = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.json", FormatJSON},
		{"out.YAML", FormatYAML},
		{"dir/out.yml", FormatYAML},
		{"out.txt", FormatTable},
		{"", FormatTable},
	}

	for _, tt := range tests {
		if got := FormatFromPath(tt.path, FormatTable); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	if len(formats) != 3 {
		t.Fatalf("SupportedFormats() len = %d, want 3", len(formats))
	}
	for _, f := range formats {
		if Format(f).IsUnknown() {
			t.Errorf("SupportedFormats() includes unknown %q", f)
		}
	}
}
