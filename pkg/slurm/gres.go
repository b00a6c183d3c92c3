package slurm

import (
	"fmt"
	"strconv"
	"strings"
)

// GPURequest is a parsed generic resource request for GPUs.
type GPURequest struct {
	// Type is the GRES type name, empty when untyped.
	Type string

	// Count is the number of devices; 1 when the request omits it.
	Count int
}

// ParseGPURequest parses a --gpus value such as "gpu:h100:2", "gpu:2",
// "gpu", "h100:2" or "2". Use ParseGres for --gres values.
func ParseGPURequest(s string) (GPURequest, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, ",") {
		return GPURequest{}, false
	}

	parts := strings.Split(s, ":")
	if parts[0] == "gpu" {
		parts = parts[1:]
	}
	return parseGPUParts(parts)
}

func parseGPUParts(parts []string) (GPURequest, bool) {
	switch len(parts) {
	case 0:
		return GPURequest{Count: 1}, true
	case 1:
		if n, err := strconv.Atoi(parts[0]); err == nil {
			return GPURequest{Count: n}, n > 0
		}
		if parts[0] == "" {
			return GPURequest{}, false
		}
		return GPURequest{Type: parts[0], Count: 1}, true
	case 2:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 || parts[0] == "" {
			return GPURequest{}, false
		}
		return GPURequest{Type: parts[0], Count: n}, true
	default:
		return GPURequest{}, false
	}
}

// Gres is a --gres value split into its GPU entry and everything else.
type Gres struct {
	// GPU is the "gpu[:type][:count]" entry, nil when there is none.
	GPU *GPURequest

	// Other holds the remaining entries verbatim, in order.
	Other []string
}

// ParseGres splits a comma separated --gres value such as
// "gpu:a100:1,nvme:1". Only entries named gpu are GPU requests; "nvme:1"
// or "mps:50" are kept as they are. It fails when the value has more than
// one gpu entry or a gpu entry it cannot read.
func ParseGres(s string) (Gres, bool) {
	var g Gres
	for _, entry := range splitTopLevel(s) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if parts[0] != "gpu" {
			g.Other = append(g.Other, entry)
			continue
		}
		if g.GPU != nil {
			return Gres{}, false
		}
		r, ok := parseGPUParts(parts[1:])
		if !ok {
			return Gres{}, false
		}
		g.GPU = &r
	}
	return g, true
}

// Join renders gpuValue followed by the non-GPU entries. An empty gpuValue
// leaves only the other entries.
func (g Gres) Join(gpuValue string) string {
	entries := make([]string, 0, len(g.Other)+1)
	if gpuValue != "" {
		entries = append(entries, gpuValue)
	}
	return strings.Join(append(entries, g.Other...), ",")
}

// FormatGres renders a typed GPU request as a --gres value.
func FormatGres(gresType string, count int) string {
	if gresType == "" {
		return fmt.Sprintf("gpu:%d", count)
	}
	return fmt.Sprintf("gpu:%s:%d", gresType, count)
}

// gresTypes returns the GPU types of a sinfo %G field such as
// "gpu:nvidia_a100:4(S:0,1),gpu:nvidia_v100:2". Untyped entries are dropped.
func gresTypes(field string) []string {
	var types []string
	for _, entry := range splitTopLevel(field) {
		if i := strings.IndexByte(entry, '('); i >= 0 {
			entry = entry[:i]
		}
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 3 || parts[0] != "gpu" || parts[1] == "" {
			continue
		}
		types = append(types, parts[1])
	}
	return types
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
