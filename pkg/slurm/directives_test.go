package slurm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koa-cli/koa/pkg/errors"
)

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   Directives
	}{
		{
			name: "long forms",
			script: `#!/bin/bash
#SBATCH --partition=gpu
#SBATCH --time 02:00:00
#SBATCH --exclusive
#SBATCH --mem=32G   # plenty
python train.py
`,
			want: Directives{
				"partition": "gpu",
				"time":      "02:00:00",
				"exclusive": "",
				"mem":       "32G",
			},
		},
		{
			name: "short forms separated and attached",
			script: `#!/bin/bash
#SBATCH -p kill-shared -N 1
#SBATCH -c8
#SBATCH -J=smoke
#SBATCH -G h100:2
`,
			want: Directives{
				"partition":     "kill-shared",
				"nodes":         "1",
				"cpus-per-task": "8",
				"job-name":      "smoke",
				"gpus":          "h100:2",
			},
		},
		{
			name: "later directive wins",
			script: `#SBATCH --mem=16G
#SBATCH --mem=32G
`,
			want: Directives{"mem": "32G"},
		},
		{
			name: "header ends at first command",
			script: `#!/bin/bash

#SBATCH --partition=gpu
module load cuda
#SBATCH --partition=ignored
`,
			want: Directives{"partition": "gpu"},
		},
		{
			name: "commented out directives are skipped",
			script: `#!/bin/bash
##SBATCH --partition=off
# SBATCH --time=1:00:00
#SBATCHX --mem=1G
#SBATCH --job-name="my-job"
`,
			want: Directives{"job-name": "my-job"},
		},
		{
			name: "malformed tokens ignored",
			script: `#SBATCH partition=gpu -Z 4 --nodes=2
`,
			want: Directives{"nodes": "2"},
		},
		{
			name:   "empty script",
			script: "",
			want:   Directives{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirectives(strings.NewReader(tt.script))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirectivesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.slurm")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n#SBATCH --mem=32G\n"), 0o600))

	got, err := ParseDirectivesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "32G", got["mem"])

	_, err = ParseDirectivesFile(filepath.Join(dir, "missing.slurm"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))
}

func TestParseGPURequest(t *testing.T) {
	tests := []struct {
		in     string
		want   GPURequest
		wantOK bool
	}{
		{in: "gpu:nvidia_h100:2", want: GPURequest{Type: "nvidia_h100", Count: 2}, wantOK: true},
		{in: "gpu:4", want: GPURequest{Count: 4}, wantOK: true},
		{in: "gpu", want: GPURequest{Count: 1}, wantOK: true},
		{in: "gpu:a100", want: GPURequest{Type: "a100", Count: 1}, wantOK: true},
		{in: "h100:2", want: GPURequest{Type: "h100", Count: 2}, wantOK: true},
		{in: "2", want: GPURequest{Count: 2}, wantOK: true},
		{in: "0"},
		{in: ""},
		{in: "gpu:a100:x"},
		{in: "gpu:a100:1,mps:100"},
		{in: "gpu:a:b:c"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseGPURequest(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	assert.Equal(t, "gpu:nvidia_h100:2", FormatGres("nvidia_h100", 2))
	assert.Equal(t, "gpu:1", FormatGres("", 1))
}

func TestParseGres(t *testing.T) {
	tests := []struct {
		in        string
		wantGPU   *GPURequest
		wantOther []string
		wantOK    bool
	}{
		{in: "gpu:nvidia_h100:2", wantGPU: &GPURequest{Type: "nvidia_h100", Count: 2}, wantOK: true},
		{in: "gpu:2", wantGPU: &GPURequest{Count: 2}, wantOK: true},
		{in: "gpu", wantGPU: &GPURequest{Count: 1}, wantOK: true},
		{in: "nvme:1", wantOther: []string{"nvme:1"}, wantOK: true},
		{in: "mps:50", wantOther: []string{"mps:50"}, wantOK: true},
		{in: "gpu:a100:1,nvme:1", wantGPU: &GPURequest{Type: "a100", Count: 1}, wantOther: []string{"nvme:1"}, wantOK: true},
		{in: "mps:100, gpu:4", wantGPU: &GPURequest{Count: 4}, wantOther: []string{"mps:100"}, wantOK: true},
		{in: "gpu:a100:1,gpu:v100:1"},
		{in: "gpu:a100:x,nvme:1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseGres(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantGPU, got.GPU)
				assert.Equal(t, tt.wantOther, got.Other)
			}
		})
	}

	g, _ := ParseGres("gpu:a100:1,nvme:1")
	assert.Equal(t, "gpu:nvidia_a100:2,nvme:1", g.Join("gpu:nvidia_a100:2"))
	assert.Equal(t, "nvme:1", g.Join(""))
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs([]string{"--exclusive", "--constraint=ib", "-p gpu", "--mail-type", "END"})
	assert.Equal(t, Directives{
		"exclusive":  "",
		"constraint": "ib",
		"partition":  "gpu",
		"mail-type":  "END",
	}, got)

	assert.Empty(t, ParseArgs(nil))
}
