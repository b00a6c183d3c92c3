package slurm

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/koa-cli/koa/pkg/errors"
)

const directivePrefix = "#SBATCH"

var shortOptions = map[string]string{
	"p": "partition",
	"t": "time",
	"N": "nodes",
	"n": "ntasks",
	"c": "cpus-per-task",
	"J": "job-name",
	"o": "output",
	"e": "error",
	"A": "account",
	"q": "qos",
	"G": "gpus",
}

// Directives maps long option names to values as declared in a job script.
type Directives map[string]string

// ParseDirectivesFile reads the directive header of the script at path.
func ParseDirectivesFile(path string) (Directives, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to open job script", err)
	}
	defer f.Close()

	return ParseDirectives(f)
}

// ParseDirectives extracts #SBATCH options from the leading comment block of a
// job script.
func ParseDirectives(r io.Reader) (Directives, error) {
	out := Directives{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}

		body, ok := strings.CutPrefix(line, directivePrefix)
		if !ok || (body != "" && body[0] != ' ' && body[0] != '\t') {
			continue
		}
		if i := strings.Index(body, " #"); i >= 0 {
			body = body[:i]
		}
		parseOptions(strings.Fields(body), out)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to read job script", err)
	}

	return out, nil
}

// ParseArgs applies the directive option grammar to command-line style
// arguments such as "--gres=gpu:2" or "-p gpu".
func ParseArgs(args []string) Directives {
	out := Directives{}
	var tokens []string
	for _, a := range args {
		tokens = append(tokens, strings.Fields(a)...)
	}
	parseOptions(tokens, out)
	return out
}

func parseOptions(tokens []string, out Directives) {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case strings.HasPrefix(tok, "--"):
			name := tok[2:]
			if k, v, found := strings.Cut(name, "="); found {
				if k != "" {
					out[k] = unquote(v)
				}
				continue
			}
			if name == "" {
				continue
			}
			if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
				out[name] = unquote(tokens[i+1])
				i++
				continue
			}
			out[name] = ""

		case strings.HasPrefix(tok, "-") && len(tok) >= 2:
			long, known := shortOptions[tok[1:2]]
			if !known {
				slog.Debug("ignoring unknown short directive", slog.String("option", tok))
				continue
			}
			if len(tok) > 2 {
				out[long] = unquote(strings.TrimPrefix(tok[2:], "="))
				continue
			}
			if i+1 < len(tokens) {
				out[long] = unquote(tokens[i+1])
				i++
			}

		default:
			slog.Debug("ignoring malformed directive token", slog.String("token", tok))
		}
	}
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
