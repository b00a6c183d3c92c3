package gpu

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeAuto     = "auto"
	modeExplicit = "explicit"

	outcomeSelected    = "selected"
	outcomeAmbiguous   = "ambiguous"
	outcomeUnavailable = "unavailable"
)

var resolutionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "koa_gpu_resolution_total",
		Help: "Total number of GPU resolutions by mode and outcome",
	},
	[]string{"mode", "outcome"},
)
