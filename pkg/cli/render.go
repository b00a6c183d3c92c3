package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/koa-cli/koa/pkg/health"
	"github.com/koa-cli/koa/pkg/history"
	"github.com/koa-cli/koa/pkg/monitor"
	"github.com/koa-cli/koa/pkg/submitter"
	"github.com/koa-cli/koa/pkg/syncer"
)

// The types below are the table renderings of command results. JSON and
// YAML output use the underlying records unchanged.

type jobTable []monitor.Job

func (t jobTable) TableHeader() []string {
	return []string{"JOBID", "NAME", "STATE", "TIME", "LIMIT", "NODES", "REASON"}
}

func (t jobTable) TableRows() [][]string {
	rows := make([][]string, len(t))
	for i, j := range t {
		rows[i] = []string{j.ID, j.Name, j.State, j.Elapsed, j.TimeLimit, strconv.Itoa(j.Nodes), j.Reason}
	}
	return rows
}

type queueTable []monitor.QueueEntry

func (t queueTable) TableHeader() []string {
	return []string{"", "JOBID", "USER", "NAME", "STATE", "TIME", "LIMIT", "NODES", "CPUS", "MEMORY", "REASON"}
}

func (t queueTable) TableRows() [][]string {
	rows := make([][]string, len(t))
	for i, e := range t {
		mark := ""
		if e.Mine {
			mark = "*"
		}
		rows[i] = []string{mark, e.ID, e.User, e.Name, e.State, e.Elapsed, e.TimeLimit,
			strconv.Itoa(e.Nodes), strconv.Itoa(e.CPUs), e.Memory, e.Reason}
	}
	return rows
}

type cancelTable []monitor.CancelResult

func (t cancelTable) TableHeader() []string {
	return []string{"JOBID", "STATUS", "DETAIL"}
}

func (t cancelTable) TableRows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{r.JobID, string(r.Status), firstLine(r.Stderr)}
	}
	return rows
}

type historyTable []history.Record

func (t historyTable) TableHeader() []string {
	return []string{"JOBID", "SUBMITTED", "HOST", "PARTITION", "GRES", "SCRIPT"}
}

func (t historyTable) TableRows() [][]string {
	now := time.Now()
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{r.JobID, humanize.RelTime(r.SubmittedAt, now, "ago", "from now"),
			r.Host, r.Partition, r.Gres, r.Script}
	}
	return rows
}

// syncView is the sync result as rendered for people.
type syncView struct {
	Project string
	Target  string
	Result  *syncer.TransferResult
	Elapsed time.Duration
}

func (v syncView) TableHeader() []string {
	return []string{"PROJECT", "TARGET", "FILES", "SENT", "TOTAL", "ELAPSED"}
}

func (v syncView) TableRows() [][]string {
	files, sent, total := "-", "-", "-"
	if s := v.Result.Stats; s != nil {
		files = humanize.Comma(s.FilesTransferred) + "/" + humanize.Comma(s.Files)
		sent = humanize.Bytes(uint64(max(s.TransferredSize, 0)))
		total = humanize.Bytes(uint64(max(s.TotalSize, 0)))
	}
	return [][]string{{v.Project, v.Target, files, sent, total, v.Elapsed.Round(time.Millisecond).String()}}
}

type submitView struct {
	JobID string
	Plan  *submitter.Plan
}

func (v submitView) TableHeader() []string {
	return []string{"JOBID", "PARTITION", "GRES", "COMMAND"}
}

func (v submitView) TableRows() [][]string {
	return [][]string{{v.JobID, v.Plan.Flags["partition"], v.Plan.Flags["gres"], strings.Join(v.Plan.CommandLine, " ")}}
}

type checkView struct {
	*health.Report
}

func (v checkView) TableHeader() []string {
	return []string{"PARTITION", "AVAIL", "LIMIT", "NODES", "GRES", "MEMORY"}
}

func (v checkView) TableRows() [][]string {
	rows := make([][]string, len(v.Partitions))
	for i, p := range v.Partitions {
		name := p.Name
		if p.Default {
			name += "*"
		}
		rows[i] = []string{name, p.Available, p.TimeLimit, strconv.Itoa(p.Nodes), p.Gres, p.Memory}
	}
	return rows
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
