package gpu

import (
	"context"
	"time"

	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
	"github.com/koa-cli/koa/pkg/slurm"
)

// SinfoQuery answers availability from sinfo on the login node.
type SinfoQuery struct {
	Runner  remote.Interface
	Profile *profile.Profile
	Timeout time.Duration
}

// Available returns GRES types present on idle or mixed nodes of partition.
func (q *SinfoQuery) Available(ctx context.Context, partition string) ([]string, error) {
	res, err := q.Runner.Run(ctx, q.Profile, slurm.GresCommand(partition), remote.Options{Timeout: q.Timeout})
	if err != nil {
		return nil, err
	}
	if err := remote.CheckExit(res, "sinfo"); err != nil {
		return nil, err
	}
	return slurm.ParseSinfoGres(res.Stdout)
}
