package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koa-cli/koa/pkg/errors"
)

const (
	// ListFormat is the squeue output format for a user's own jobs. The
	// script path comes last so it may contain the separator.
	ListFormat = "%i|%j|%T|%M|%l|%D|%R|%o"

	// QueueFormat is the squeue output format for the partition-wide view.
	QueueFormat = "%i|%u|%j|%T|%M|%l|%D|%C|%m|%R"

	// QueueSort orders by partition, then state, then descending priority.
	QueueSort = "P,t,-p"

	listFields  = 8
	queueFields = 10
)

// Job is one row of the user's job list.
type Job struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	State     string `json:"state" yaml:"state"`
	Elapsed   string `json:"elapsed" yaml:"elapsed"`
	TimeLimit string `json:"timeLimit" yaml:"timeLimit"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
	Reason    string `json:"reason" yaml:"reason"`
	Script    string `json:"script,omitempty" yaml:"script,omitempty"`
}

// QueueEntry is one row of the partition-wide queue.
type QueueEntry struct {
	ID        string `json:"id" yaml:"id"`
	User      string `json:"user" yaml:"user"`
	Name      string `json:"name" yaml:"name"`
	State     string `json:"state" yaml:"state"`
	Elapsed   string `json:"elapsed" yaml:"elapsed"`
	TimeLimit string `json:"timeLimit" yaml:"timeLimit"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
	CPUs      int    `json:"cpus" yaml:"cpus"`
	Memory    string `json:"memory" yaml:"memory"`
	Reason    string `json:"reason" yaml:"reason"`
	Mine      bool   `json:"mine" yaml:"mine"`
}

// ListCommand returns the squeue vector listing user's jobs.
func ListCommand(user string) []string {
	return []string{"squeue", "--noheader", "-u", user, "-o", ListFormat}
}

// QueueCommand returns the squeue vector for all users, optionally limited to
// one partition.
func QueueCommand(partition string) []string {
	argv := []string{"squeue", "--noheader", "-o", QueueFormat, "--sort=" + QueueSort}
	if partition != "" {
		argv = append(argv, "-p", partition)
	}
	return argv
}

// ParseJobs parses ListFormat output, keeping squeue's row order.
func ParseJobs(stdout string) ([]Job, error) {
	jobs := []Job{}
	for n, line := range dataLines(stdout) {
		fields := strings.SplitN(line, "|", listFields)
		if len(fields) != listFields || fields[0] == "" {
			return nil, malformedRow(n, line)
		}
		nodes, err := strconv.Atoi(strings.TrimSpace(fields[5]))
		if err != nil {
			return nil, malformedRow(n, line)
		}
		jobs = append(jobs, Job{
			ID:        strings.TrimSpace(fields[0]),
			Name:      fields[1],
			State:     fields[2],
			Elapsed:   fields[3],
			TimeLimit: fields[4],
			Nodes:     nodes,
			Reason:    fields[6],
			Script:    fields[7],
		})
	}
	return jobs, nil
}

// ParseQueue parses QueueFormat output. Rows owned by user are marked Mine.
func ParseQueue(stdout, user string) ([]QueueEntry, error) {
	entries := []QueueEntry{}
	for n, line := range dataLines(stdout) {
		fields := strings.SplitN(line, "|", queueFields)
		if len(fields) != queueFields || fields[0] == "" {
			return nil, malformedRow(n, line)
		}
		nodes, err := strconv.Atoi(strings.TrimSpace(fields[6]))
		if err != nil {
			return nil, malformedRow(n, line)
		}
		cpus, err := strconv.Atoi(strings.TrimSpace(fields[7]))
		if err != nil {
			return nil, malformedRow(n, line)
		}
		entries = append(entries, QueueEntry{
			ID:        strings.TrimSpace(fields[0]),
			User:      fields[1],
			Name:      fields[2],
			State:     fields[3],
			Elapsed:   fields[4],
			TimeLimit: fields[5],
			Nodes:     nodes,
			CPUs:      cpus,
			Memory:    fields[8],
			Reason:    fields[9],
			Mine:      fields[1] == user,
		})
	}
	return entries, nil
}

func dataLines(stdout string) []string {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func malformedRow(n int, line string) error {
	return errors.NewWithContext(errors.ErrCodeUnparseableResponse,
		fmt.Sprintf("unexpected squeue row %d", n+1),
		map[string]any{errors.ContextStdout: line})
}
