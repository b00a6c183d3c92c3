// Package gpu selects a GPU type for a job from a priority-ordered tier table
// and, when asked to, from what the cluster currently has free.
package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/slurm"
)

// maxSuggestionDistance bounds how different a typo may be from a known tier
// before no suggestion is offered.
const maxSuggestionDistance = 3

// AvailabilityQuery reports the GPU types that can start work right now.
type AvailabilityQuery interface {
	Available(ctx context.Context, partition string) ([]string, error)
}

// Request is the GPU part of a resource request.
type Request struct {
	Count        int
	ExplicitType string
	AutoEnabled  bool
	Partition    string
}

// Selection is the resolved GPU choice.
type Selection struct {
	// Type is the tier name for auto selections, or the caller's type verbatim.
	Type string `json:"type" yaml:"type"`

	// Gres is the GRES type name sent to the scheduler.
	Gres string `json:"gres" yaml:"gres"`

	Count int  `json:"count" yaml:"count"`
	Auto  bool `json:"auto" yaml:"auto"`
}

// GresValue renders the selection as a --gres value.
func (s *Selection) GresValue() string {
	return slurm.FormatGres(s.Gres, s.Count)
}

// Resolve picks a GPU type for req.
//
// A zero count resolves to nil without consulting q. With auto selection off,
// the explicit type is returned as given, and a missing type is an ambiguous
// request. With auto selection on, q is queried once and the first tier in
// table order that is available wins. Running out of tiers is an error, never
// a silent fallback to a CPU-only job.
func Resolve(ctx context.Context, req Request, tiers TierTable, q AvailabilityQuery) (*Selection, error) {
	if req.Count < 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("negative GPU count %d", req.Count))
	}
	if req.Count == 0 {
		return nil, nil
	}

	if !req.AutoEnabled {
		if req.ExplicitType == "" {
			resolutionTotal.WithLabelValues(modeExplicit, outcomeAmbiguous).Inc()
			return nil, errors.New(errors.ErrCodeAmbiguousGPURequest,
				fmt.Sprintf("%d GPU(s) requested without a GPU type and with auto-selection disabled", req.Count))
		}
		resolutionTotal.WithLabelValues(modeExplicit, outcomeSelected).Inc()
		return explicitSelection(req, tiers), nil
	}

	if q == nil {
		return nil, errors.New(errors.ErrCodeInternal, "auto GPU selection requires an availability query")
	}

	available, err := q.Available(ctx, req.Partition)
	if err != nil {
		return nil, err
	}

	for _, tier := range tiers {
		for _, a := range available {
			if tier.Matches(a) {
				resolutionTotal.WithLabelValues(modeAuto, outcomeSelected).Inc()
				slog.Debug("auto-selected gpu tier",
					slog.String("tier", tier.Name),
					slog.String("partition", req.Partition),
					slog.Int("count", req.Count),
				)
				return &Selection{
					Type:  tier.Name,
					Gres:  tier.GresName(),
					Count: req.Count,
					Auto:  true,
				}, nil
			}
		}
	}

	resolutionTotal.WithLabelValues(modeAuto, outcomeUnavailable).Inc()
	return nil, errors.NewWithContext(errors.ErrCodeNoGPUAvailable,
		"no GPU tier from the table is currently available",
		map[string]any{
			"partition": req.Partition,
			"available": strings.Join(available, ","),
			"tiers":     strings.Join(tiers.Names(), ","),
		})
}

func explicitSelection(req Request, tiers TierTable) *Selection {
	sel := &Selection{
		Type:  req.ExplicitType,
		Gres:  req.ExplicitType,
		Count: req.Count,
	}
	if tier, ok := tiers.Lookup(req.ExplicitType); ok {
		sel.Gres = tier.GresName()
		return sel
	}

	attrs := []any{slog.String("type", req.ExplicitType)}
	if s := Suggest(req.ExplicitType, tiers); s != "" {
		attrs = append(attrs, slog.String("did_you_mean", s))
	}
	slog.Warn("gpu type is not in the tier table, passing it through unchanged", attrs...)
	return sel
}

// Suggest returns the tier name closest to name, or "" when nothing is close.
func Suggest(name string, tiers TierTable) string {
	n := normalize(name)
	if n == "" {
		return ""
	}
	best, bestDist := "", maxSuggestionDistance+1
	for _, t := range tiers {
		for _, cand := range append([]string{t.Name, t.GresName()}, t.Aliases...) {
			if d := levenshtein.ComputeDistance(n, normalize(cand)); d < bestDist {
				best, bestDist = t.Name, d
			}
		}
	}
	return best
}
