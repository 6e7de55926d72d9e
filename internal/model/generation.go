package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

// GenerationParams are the recognised generation options. Nil or empty
// fields fall back to provider defaults.
type GenerationParams struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// Validate checks every field against its bounds. Out of range values are
// reported, never clamped. maxTokenLimit <= 0 disables the upper bound on
// MaxOutputTokens.
func (p GenerationParams) Validate(maxTokenLimit int) error {
	var errs []error
	if p.Temperature != nil && !inUnitRange(*p.Temperature) {
		errs = append(errs, appErr.NewFieldError("temperature", "must be within [0, 1]"))
	}
	if p.TopP != nil && !inUnitRange(*p.TopP) {
		errs = append(errs, appErr.NewFieldError("topP", "must be within [0, 1]"))
	}
	if p.MaxOutputTokens != nil {
		switch {
		case *p.MaxOutputTokens <= 0:
			errs = append(errs, appErr.NewFieldError("maxOutputTokens", "must be positive"))
		case maxTokenLimit > 0 && *p.MaxOutputTokens > maxTokenLimit:
			errs = append(errs, appErr.NewFieldError("maxOutputTokens", fmt.Sprintf("must not exceed %d", maxTokenLimit)))
		}
	}
	seen := make(map[string]struct{}, len(p.StopSequences))
	for i, seq := range p.StopSequences {
		field := fmt.Sprintf("stopSequences[%d]", i)
		if seq == "" {
			errs = append(errs, appErr.NewFieldError(field, "must not be empty"))
			continue
		}
		if _, ok := seen[seq]; ok {
			errs = append(errs, appErr.NewFieldError(field, "duplicate stop sequence"))
			continue
		}
		seen[seq] = struct{}{}
	}
	return errors.Join(errs...)
}

// WithDefaults fills unset fields from defaults.
func (p GenerationParams) WithDefaults(defaults GenerationParams) GenerationParams {
	out := p
	if out.Temperature == nil {
		out.Temperature = defaults.Temperature
	}
	if out.TopP == nil {
		out.TopP = defaults.TopP
	}
	if out.MaxOutputTokens == nil {
		out.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if len(out.StopSequences) == 0 && len(defaults.StopSequences) > 0 {
		out.StopSequences = append([]string(nil), defaults.StopSequences...)
	}
	return out
}

// Key renders the params canonically for cache keys.
func (p GenerationParams) Key() string {
	var sb strings.Builder
	if p.Temperature != nil {
		fmt.Fprintf(&sb, "t=%g;", *p.Temperature)
	}
	if p.TopP != nil {
		fmt.Fprintf(&sb, "p=%g;", *p.TopP)
	}
	if p.MaxOutputTokens != nil {
		fmt.Fprintf(&sb, "m=%d;", *p.MaxOutputTokens)
	}
	for _, seq := range p.StopSequences {
		fmt.Fprintf(&sb, "s=%q;", seq)
	}
	return sb.String()
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
