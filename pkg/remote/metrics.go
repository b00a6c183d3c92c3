package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess    = "success"
	outcomeNonZero    = "nonzero"
	outcomeTimeout    = "timeout"
	outcomeCanceled   = "canceled"
	outcomeSpawnError = "spawn_error"
)

var (
	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "koa_remote_command_duration_seconds",
			Help:    "Time taken by external commands (ssh-wrapped or local)",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"tool"}, // sbatch, squeue, scancel, sinfo, mkdir, rsync, ...
	)

	commandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "koa_remote_command_total",
			Help: "Total number of external commands by outcome",
		},
		[]string{"tool", "outcome"}, // success, nonzero, timeout, canceled, spawn_error
	)
)
