// Package cli implements the koa command line.
//
// # Overview
//
// koa drives a Slurm cluster that is reachable only over ssh. Every remote
// action is an ssh, rsync or Slurm client invocation; nothing is installed on
// the cluster.
//
// # Commands
//
// sync - copy the current project to <remote_workdir>/<project>:
//
//	koa sync [--path DIR] [--exclude PATTERN]... [--mirror] [--dry-run]
//
// submit - submit a job script, resolving the GPU type when none is pinned:
//
//	koa submit train.slurm --gpus 2 --time 04:00:00
//	koa submit train.slurm --gpu-type a100 --sbatch-arg=--mail-type=END
//	koa submit train.slurm --dry-run
//
// jobs, queue, cancel - inspect and cancel jobs:
//
//	koa jobs
//	koa queue --partition gpu
//	koa cancel 123456 123457
//
// check - verify ssh connectivity and list partitions.
//
// build-env - create a Python virtual environment for a synced project on
// the remote data directory.
//
// history - list submissions recorded on this machine.
//
// # Global Flags
//
//	--config        Config file (default ~/.config/koa-cli/config.yaml, env KOA_CONFIG)
//	--format, -t    Output format: table, json, yaml (default: table)
//	--output, -o    Output file path (default: stdout)
//	--timeout       Per-call timeout for remote commands
//	--metrics-file  Write Prometheus metrics for the run to a textfile
//	--debug         Enable debug logging
//	--log-json      Output logs in JSON format
//
// # Environment Variables
//
//	KOA_USER, KOA_HOST             Login, override the config file
//	KOA_IDENTITY_FILE              ssh identity file
//	KOA_PROXY_COMMAND              ssh ProxyCommand
//	KOA_REMOTE_WORKDIR             Remote directory projects are synced under
//	KOA_REMOTE_DATA_DIR            Remote directory for environments and outputs
//	KOA_DEFAULT_PARTITION          Partition used when none is given
//	LOG_LEVEL                      Logging verbosity (debug, info, warn, error)
//
// # Exit Codes
//
//	0  Success
//	1  Error (configuration, transport, remote rejection, bad input)
//	2  Timeout or interrupted
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/koa-cli/koa/pkg/cli.version=1.0.0'" ./cmd/koa
package cli
