package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var optionsValidator = validator.New()

// RecOptions is the validated per-request configuration for every strategy.
// Parsing and validation happen once at the boundary; the pipeline trusts
// the struct.
type RecOptions struct {
	Limit      int `validate:"min=1,max=100"`
	Page       int `validate:"min=1"`
	ExcludeIDs []uuid.UUID
	// Nil threshold fields defer to the engine config; a non-nil zero is
	// honored as a literal zero.
	MinSimilarity     *float64 `validate:"omitempty,min=0,max=1"`
	MaxSimilarUsers   int      `validate:"min=0,max=500"`
	ExcludeInteracted bool
	IncludeHotScore   bool
	HotScoreWeight    *float64 `validate:"omitempty,min=0,max=1"`
	Tags              []string
	Types             []string

	// Orchestrator-only fields.
	CustomWeights            map[string]float64
	IncludeDiversity         bool
	IncludeColdStartAnalysis bool
	ForceRefresh             bool
}

// DefaultRecOptions returns the options used when the caller specifies
// nothing. The unset thresholds defer to the engine config.
func DefaultRecOptions() RecOptions {
	return RecOptions{
		Limit:             20,
		Page:              1,
		ExcludeInteracted: true,
		IncludeHotScore:   true,
		IncludeDiversity:  true,
	}
}

// Validate rejects malformed options instead of silently defaulting, so
// caller bugs surface as validation errors.
func (o *RecOptions) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("invalid recommendation options: %w", err)
	}
	var sum float64
	for strategy, w := range o.CustomWeights {
		if w < 0 {
			return fmt.Errorf("invalid recommendation options: negative weight for %s", strategy)
		}
		sum += w
	}
	if o.CustomWeights != nil && sum == 0 {
		return fmt.Errorf("invalid recommendation options: custom weights sum to zero")
	}
	return nil
}

// optionalKey renders an optional threshold for cache keys; unset and
// literal values must never collide.
func optionalKey(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

// offset returns the slice offset for the requested page.
func (o *RecOptions) offset() int {
	return (o.Page - 1) * o.Limit
}

// excludeSet materializes ExcludeIDs for O(1) membership checks.
func (o *RecOptions) excludeSet() map[uuid.UUID]struct{} {
	if len(o.ExcludeIDs) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]struct{}, len(o.ExcludeIDs))
	for _, id := range o.ExcludeIDs {
		set[id] = struct{}{}
	}
	return set
}

// cacheKey folds the fields that change strategy output into a stable
// cache key component.
func (o *RecOptions) cacheKey() string {
	parts := []string{
		fmt.Sprintf("l%d", o.Limit),
		fmt.Sprintf("p%d", o.Page),
		"ms" + optionalKey(o.MinSimilarity),
		fmt.Sprintf("mu%d", o.MaxSimilarUsers),
		fmt.Sprintf("xi%t", o.ExcludeInteracted),
		fmt.Sprintf("hs%t", o.IncludeHotScore),
		"hw" + optionalKey(o.HotScoreWeight),
	}
	if len(o.Tags) > 0 {
		tags := append([]string(nil), o.Tags...)
		sort.Strings(tags)
		parts = append(parts, "t:"+strings.Join(tags, ","))
	}
	if len(o.Types) > 0 {
		types := append([]string(nil), o.Types...)
		sort.Strings(types)
		parts = append(parts, "y:"+strings.Join(types, ","))
	}
	if len(o.ExcludeIDs) > 0 {
		ids := make([]string, len(o.ExcludeIDs))
		for i, id := range o.ExcludeIDs {
			ids[i] = id.String()
		}
		sort.Strings(ids)
		parts = append(parts, "x:"+strings.Join(ids, ","))
	}
	if len(o.CustomWeights) > 0 {
		keys := make([]string, 0, len(o.CustomWeights))
		for k := range o.CustomWeights {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("w:%s=%.3f", k, o.CustomWeights[k]))
		}
	}
	return strings.Join(parts, ":")
}
