package submitter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "koa_jobs_submitted_total",
		Help: "Total number of jobs accepted by sbatch",
	},
	[]string{"partition"},
)
