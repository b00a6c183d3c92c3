package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncedBytes = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "koa_sync_transferred_bytes_total",
		Help: "Total file bytes transferred by rsync",
	},
)
