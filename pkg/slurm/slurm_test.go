package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koa-cli/koa/pkg/errors"
)

func TestOrderFlags(t *testing.T) {
	flags := map[string]string{
		"time":      "01:00:00",
		"zeta":      "1",
		"gres":      "gpu:nvidia_h100:2",
		"partition": "kill-shared",
		"exclusive": "",
		"mem":       "64G",
		"job-name":  "train",
		"chdir":     "koa-jobs/oumi",
	}

	got := SbatchCommand(OrderFlags(flags))
	want := []string{
		"sbatch",
		"--partition=kill-shared",
		"--job-name=train",
		"--mem=64G",
		"--gres=gpu:nvidia_h100:2",
		"--time=01:00:00",
		"--chdir=koa-jobs/oumi",
		"--exclusive",
		"--zeta=1",
	}
	assert.Equal(t, want, got)

	// Stable across calls despite map iteration order.
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, SbatchCommand(OrderFlags(flags)))
	}
}

func TestParseSubmission(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    string
		wantErr bool
	}{
		{name: "plain", stdout: "Submitted batch job 123456\n", want: "123456"},
		{name: "with preamble", stdout: "sbatch: Job will use default account\nSubmitted batch job 42\n", want: "42"},
		{name: "empty", stdout: "", wantErr: true},
		{name: "no id", stdout: "Submitted batch job\n", wantErr: true},
		{name: "not at line start", stdout: "note: Submitted batch job 9\n", wantErr: true},
		{name: "trailing junk", stdout: "Submitted batch job 12abc\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubmission(tt.stdout)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeUnparseableResponse, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJobs(t *testing.T) {
	stdout := "101|train|RUNNING|1:02:03|2:00:00|1|gpu-0012|/home/alice/koa-jobs/oumi/train.slurm\n" +
		"99|eval|PENDING|0:00|1:00:00|2|(Priority)|(null)\n\n"

	jobs, err := ParseJobs(stdout)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// squeue order is kept, not re-sorted by id.
	assert.Equal(t, "101", jobs[0].ID)
	assert.Equal(t, "99", jobs[1].ID)
	assert.Equal(t, Job{
		ID: "101", Name: "train", State: "RUNNING", Elapsed: "1:02:03", TimeLimit: "2:00:00",
		Nodes: 1, Reason: "gpu-0012", Script: "/home/alice/koa-jobs/oumi/train.slurm",
	}, jobs[0])
	assert.Equal(t, 2, jobs[1].Nodes)

	empty, err := ParseJobs("")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	_, err = ParseJobs("101|train|RUNNING\n")
	assert.Equal(t, errors.ErrCodeUnparseableResponse, errors.CodeOf(err))

	_, err = ParseJobs("101|train|RUNNING|0:01|1:00|x|node|script\n")
	assert.Equal(t, errors.ErrCodeUnparseableResponse, errors.CodeOf(err))
}

func TestParseQueue(t *testing.T) {
	stdout := "7|bob|sim|RUNNING|10:00|1-00:00:00|4|128|256G|node[01-04]\n" +
		"8|alice|train|PENDING|0:00|2:00:00|1|8|32G|(Resources)\n"

	entries, err := ParseQueue(stdout, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Mine)
	assert.True(t, entries[1].Mine)
	assert.Equal(t, 128, entries[0].CPUs)
	assert.Equal(t, "256G", entries[0].Memory)
	assert.Equal(t, "node[01-04]", entries[0].Reason)

	_, err = ParseQueue("7|bob|sim|RUNNING|10:00|1:00|4|many|256G|x\n", "alice")
	assert.Equal(t, errors.ErrCodeUnparseableResponse, errors.CodeOf(err))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []string{"squeue", "--noheader", "-u", "alice", "-o", ListFormat}, ListCommand("alice"))
	assert.Equal(t, []string{"squeue", "--noheader", "-o", QueueFormat, "--sort=P,t,-p"}, QueueCommand(""))
	assert.Equal(t, []string{"squeue", "--noheader", "-o", QueueFormat, "--sort=P,t,-p", "-p", "gpu"}, QueueCommand("gpu"))
	assert.Equal(t, []string{"scancel", "42"}, CancelCommand("42"))
	assert.Equal(t, []string{"sinfo", "-N", "--noheader", "-o", GresFormat, "-p", "kill-shared"}, GresCommand("kill-shared"))
	assert.Equal(t, []string{"sinfo", "--noheader", "-o", PartitionFormat}, PartitionCommand())
}

func TestValidJobID(t *testing.T) {
	assert.True(t, ValidJobID("123"))
	assert.True(t, ValidJobID("123_4"))
	assert.False(t, ValidJobID(""))
	assert.False(t, ValidJobID("12a"))
	assert.False(t, ValidJobID("123; rm -rf ~"))
	assert.False(t, ValidJobID("-1"))
}

func TestClassifyCancel(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		stderr   string
		want     CancelStatus
	}{
		{name: "success", want: CancelStatusCancelled},
		{name: "invalid id", exitCode: 1, stderr: "scancel: error: Invalid job id specified\n", want: CancelStatusNotFound},
		{name: "completed exit zero", stderr: "scancel: error: Kill job error on job id 5: Job/step already completing or completed\n", want: CancelStatusNotFound},
		{name: "other user", exitCode: 1, stderr: "scancel: error: Kill job error on job id 5: Access/permission denied\n", want: CancelStatusDenied},
		{name: "not authorized", exitCode: 1, stderr: "You are not authorized to cancel this job", want: CancelStatusDenied},
		{name: "controller down", exitCode: 1, stderr: "scancel: error: Unable to contact slurm controller\n", want: CancelStatusFailed},
		{name: "error text with zero exit", stderr: "scancel: error: something odd\n", want: CancelStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCancel(tt.exitCode, tt.stderr))
		})
	}
}

func TestParseSinfoGres(t *testing.T) {
	stdout := "gpu-0001|gpu:nvidia_h200_nvl:4(S:0-1)|alloc\n" +
		"gpu-0002|gpu:nvidia_h100:4(S:0,1)|mix\n" +
		"gpu-0003|gpu:nvidia_a100:8,gpu:nvidia_v100:2|idle\n" +
		"gpu-0004|gpu:nvidia_a30:2|drain\n" +
		"gpu-0005|gpu:nvidia_h100:4|idle\n" +
		"cpu-0001|(null)|idle\n"

	got, err := ParseSinfoGres(stdout)
	require.NoError(t, err)
	assert.Equal(t, []string{"nvidia_h100", "nvidia_a100", "nvidia_v100"}, got)

	_, err = ParseSinfoGres("gpu-0001 gpu:h100:4 idle\n")
	assert.Equal(t, errors.ErrCodeUnparseableResponse, errors.CodeOf(err))
}

func TestParsePartitions(t *testing.T) {
	stdout := "kill-shared*|up|3-00:00:00|120|gpu:nvidia_a100:8|256000\nsandbox|up|4:00:00|4|(null)|64000\n"

	parts, err := ParsePartitions(stdout)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "kill-shared", parts[0].Name)
	assert.True(t, parts[0].Default)
	assert.Equal(t, 120, parts[0].Nodes)
	assert.False(t, parts[1].Default)

	_, err = ParsePartitions("broken\n")
	assert.Error(t, err)
}
