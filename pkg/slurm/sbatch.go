package slurm

import (
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/koa-cli/koa/pkg/errors"
)

// canonicalFlagOrder fixes the position of well-known sbatch options in a
// rendered command line. Other keys follow in lexical order.
var canonicalFlagOrder = []string{
	"partition",
	"account",
	"qos",
	"job-name",
	"nodes",
	"ntasks",
	"cpus-per-task",
	"mem",
	"mem-per-cpu",
	"gres",
	"gpus",
	"time",
	"output",
	"error",
	"chdir",
}

var submittedPattern = regexp.MustCompile(`(?m)^Submitted batch job (\d+)\s*$`)

// Flag is one sbatch long option.
type Flag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// String renders the flag as --key=value, or --key for an empty value.
func (f Flag) String() string {
	if f.Value == "" {
		return "--" + f.Key
	}
	return "--" + f.Key + "=" + f.Value
}

// OrderFlags returns flags in canonical order so rendered commands are stable.
func OrderFlags(flags map[string]string) []Flag {
	out := make([]Flag, 0, len(flags))
	for _, k := range canonicalFlagOrder {
		if v, ok := flags[k]; ok {
			out = append(out, Flag{Key: k, Value: v})
		}
	}

	rest := lo.Filter(lo.Keys(flags), func(k string, _ int) bool {
		return !lo.Contains(canonicalFlagOrder, k)
	})
	slices.Sort(rest)
	for _, k := range rest {
		out = append(out, Flag{Key: k, Value: flags[k]})
	}
	return out
}

// SbatchCommand returns the sbatch argument vector. The job script is read by
// sbatch from standard input.
func SbatchCommand(flags []Flag) []string {
	argv := make([]string, 0, len(flags)+1)
	argv = append(argv, "sbatch")
	for _, f := range flags {
		argv = append(argv, f.String())
	}
	return argv
}

// ParseSubmission extracts the job id from sbatch output. Output without the
// "Submitted batch job <id>" line is rejected rather than guessed at.
func ParseSubmission(stdout string) (string, error) {
	m := submittedPattern.FindStringSubmatch(stdout)
	if m == nil {
		return "", errors.NewWithContext(errors.ErrCodeUnparseableResponse,
			"sbatch output did not contain a job id",
			map[string]any{errors.ContextStdout: strings.TrimSpace(stdout)})
	}
	return m[1], nil
}
