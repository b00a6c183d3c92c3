package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koa-cli/koa/pkg/errors"
)

const (
	// GresFormat is the node-oriented sinfo format used for GPU availability.
	GresFormat = "%N|%G|%t"

	// PartitionFormat is the sinfo format used by the connectivity check.
	PartitionFormat = "%P|%a|%l|%D|%G|%m"
)

// usableStates are compact node states that can start new work.
var usableStates = map[string]bool{
	"idle": true,
	"mix":  true,
}

// Partition summarizes one sinfo partition row.
type Partition struct {
	Name      string `json:"name" yaml:"name"`
	Default   bool   `json:"default" yaml:"default"`
	Available string `json:"available" yaml:"available"`
	TimeLimit string `json:"timeLimit" yaml:"timeLimit"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
	Gres      string `json:"gres" yaml:"gres"`
	Memory    string `json:"memory" yaml:"memory"`
}

// GresCommand returns the sinfo vector listing per-node GRES and state for
// partition.
func GresCommand(partition string) []string {
	argv := []string{"sinfo", "-N", "--noheader", "-o", GresFormat}
	if partition != "" {
		argv = append(argv, "-p", partition)
	}
	return argv
}

// PartitionCommand returns the sinfo vector summarizing every partition.
func PartitionCommand() []string {
	return []string{"sinfo", "--noheader", "-o", PartitionFormat}
}

// ParseSinfoGres returns the distinct GPU types present on idle or mixed
// nodes, in order of first appearance.
func ParseSinfoGres(stdout string) ([]string, error) {
	seen := map[string]bool{}
	types := []string{}
	for n, line := range dataLines(stdout) {
		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			return nil, errors.NewWithContext(errors.ErrCodeUnparseableResponse,
				fmt.Sprintf("unexpected sinfo row %d", n+1),
				map[string]any{errors.ContextStdout: line})
		}
		if !usableStates[strings.TrimSpace(fields[2])] {
			continue
		}
		for _, t := range gresTypes(fields[1]) {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	return types, nil
}

// ParsePartitions parses PartitionFormat output.
func ParsePartitions(stdout string) ([]Partition, error) {
	parts := []Partition{}
	for n, line := range dataLines(stdout) {
		fields := strings.Split(line, "|")
		if len(fields) != 6 {
			return nil, errors.NewWithContext(errors.ErrCodeUnparseableResponse,
				fmt.Sprintf("unexpected sinfo row %d", n+1),
				map[string]any{errors.ContextStdout: line})
		}
		nodes, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeUnparseableResponse,
				fmt.Sprintf("unexpected node count in sinfo row %d", n+1), err,
				map[string]any{errors.ContextStdout: line})
		}
		name, isDefault := strings.CutSuffix(fields[0], "*")
		parts = append(parts, Partition{
			Name:      name,
			Default:   isDefault,
			Available: fields[1],
			TimeLimit: fields[2],
			Nodes:     nodes,
			Gres:      fields[4],
			Memory:    fields[5],
		})
	}
	return parts, nil
}
