package services

import (
	"fmt"
	"math"
	"time"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

// decayClock lets tests pin "now"; production code leaves it at time.Now.
type decayClock func() time.Time

// Decayer turns event timestamps into multiplicative freshness factors.
// decay(t) = factor^daysSince(t), strictly decreasing in elapsed time,
// floored past MaxDays so old history never decays to exactly zero.
type Decayer struct {
	factor  float64
	maxDays int
	floor   float64
	weights config.InteractionWeights
	now     decayClock
}

func NewDecayer(cfg *config.EngineConfig) *Decayer {
	return &Decayer{
		factor:  cfg.Decay.Factor,
		maxDays: cfg.Decay.MaxDays,
		floor:   cfg.Decay.Floor,
		weights: cfg.Weights,
		now:     time.Now,
	}
}

// Decay returns the freshness factor for an event at t. Future or current
// timestamps yield 1.0.
func (d *Decayer) Decay(t time.Time) float64 {
	days := d.now().Sub(t).Hours() / 24
	if days <= 0 {
		return 1.0
	}
	if days > float64(d.maxDays) {
		return d.floor
	}
	return math.Pow(d.factor, days)
}

// TypeWeight returns the configured weight for an interaction type.
// Dislikes weigh negative; unknown types weigh zero and are ignored.
func (d *Decayer) TypeWeight(t models.InteractionType) float64 {
	switch t {
	case models.InteractionLike:
		return d.weights.Like
	case models.InteractionComment:
		return d.weights.Comment
	case models.InteractionShare:
		return d.weights.Share
	case models.InteractionCollect:
		return d.weights.Collect
	case models.InteractionView:
		return d.weights.View
	case models.InteractionDislike:
		return d.weights.Dislike
	default:
		return 0
	}
}

// EventScore is the decayed contribution of a single event.
func (d *Decayer) EventScore(ev models.InteractionEvent) float64 {
	return d.TypeWeight(ev.Type) * d.Decay(ev.OccurredAt)
}

// Signature identifies the weight and decay configuration; it is part of
// tag-preference cache keys so config changes never serve stale vectors.
func (d *Decayer) Signature() string {
	return signatureString(
		d.factor, float64(d.maxDays), d.floor,
		d.weights.Like, d.weights.Comment, d.weights.Share,
		d.weights.Collect, d.weights.View, d.weights.Dislike,
	)
}

func signatureString(vals ...float64) string {
	h := uint64(14695981039346656037)
	for _, v := range vals {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			h ^= bits & 0xff
			h *= 1099511628211
			bits >>= 8
		}
	}
	return fmt.Sprintf("w%016x", h)
}

// clamp01 bounds preference and similarity values before they are combined.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
