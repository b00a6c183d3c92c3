// Package remotetest provides a scripted process executor for exercising code
// that talks to the cluster through a remote.Runner.
package remotetest

import (
	"io"
	"strings"
	"sync"

	"k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"

	"github.com/koa-cli/koa/pkg/remote"
)

// Response is the scripted outcome of one process.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Err replaces the exit status with a start-up failure.
	Err error
}

// Call records one process invocation.
type Call struct {
	Argv  []string
	Stdin string
}

// Remote returns the shell command line of an ssh-wrapped call, or the
// space-joined argv for a local one.
func (c Call) Remote() string {
	if len(c.Argv) > 0 && c.Argv[0] == remote.DefaultSSHBinary {
		return c.Argv[len(c.Argv)-1]
	}
	return strings.Join(c.Argv, " ")
}

// Fake hands out scripted responses in order and records every call.
type Fake struct {
	Exec *testingexec.FakeExec

	mu    sync.Mutex
	calls []Call
}

// New returns a Fake that answers successive processes with responses.
// Running more processes than scripted fails loudly.
func New(responses ...Response) *Fake {
	f := &Fake{Exec: &testingexec.FakeExec{}}
	for _, resp := range responses {
		f.Exec.CommandScript = append(f.Exec.CommandScript, f.action(resp))
	}
	return f
}

func (f *Fake) action(resp Response) testingexec.FakeCommandAction {
	return func(cmd string, args ...string) exec.Cmd {
		fc := &testingexec.FakeCmd{}
		fc.RunScript = []testingexec.FakeAction{
			func() ([]byte, []byte, error) {
				call := Call{Argv: append([]string{cmd}, args...)}
				if fc.Stdin != nil {
					b, _ := io.ReadAll(fc.Stdin)
					call.Stdin = string(b)
				}
				f.mu.Lock()
				f.calls = append(f.calls, call)
				f.mu.Unlock()

				err := resp.Err
				if err == nil && resp.ExitCode != 0 {
					err = testingexec.FakeExitError{Status: resp.ExitCode}
				}
				return []byte(resp.Stdout), []byte(resp.Stderr), err
			},
		}
		return testingexec.InitFakeCmd(fc, cmd, args...)
	}
}

// Runner returns a remote.Runner backed by the fake.
func (f *Fake) Runner() *remote.Runner {
	return remote.NewRunner(remote.WithExec(f.Exec))
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount is the number of processes that actually ran.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
