package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType classifies a single user-meme interaction event.
type InteractionType string

const (
	InteractionLike    InteractionType = "like"
	InteractionComment InteractionType = "comment"
	InteractionShare   InteractionType = "share"
	InteractionCollect InteractionType = "collect"
	InteractionView    InteractionType = "view"
	InteractionDislike InteractionType = "dislike"
)

// AllInteractionTypes lists every interaction type the aggregator loads.
var AllInteractionTypes = []InteractionType{
	InteractionLike,
	InteractionComment,
	InteractionShare,
	InteractionCollect,
	InteractionView,
	InteractionDislike,
}

// InteractionEvent is an immutable interaction record sourced from the store.
type InteractionEvent struct {
	UserID     uuid.UUID       `json:"user_id"`
	ItemID     uuid.UUID       `json:"item_id"`
	Type       InteractionType `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// InteractionVector maps item IDs to a time-decayed, type-weighted score.
// Scores can be negative: dislikes contribute below zero and similarity
// computations must not special-case sign.
type InteractionVector map[uuid.UUID]float64

// InteractionMatrix holds one InteractionVector per user.
type InteractionMatrix map[uuid.UUID]InteractionVector

// TagPreferences is a user's normalized per-tag affinity profile.
type TagPreferences struct {
	UserID            uuid.UUID          `json:"user_id"`
	Preferences       map[string]float64 `json:"preferences"`
	InteractionCounts map[string]int     `json:"interaction_counts"`
	TotalInteractions int                `json:"total_interactions"`
	Confidence        float64            `json:"confidence"`
}

// UserBehavior summarizes observed engagement signals used for strategy
// adjustment.
type UserBehavior struct {
	ClickRate           float64 `json:"click_rate" validate:"min=0,max=1"`
	EngagementRate      float64 `json:"engagement_rate" validate:"min=0,max=1"`
	DiversityPreference float64 `json:"diversity_preference" validate:"min=0,max=1"`
}
