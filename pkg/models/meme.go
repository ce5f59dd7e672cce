package models

import (
	"time"

	"github.com/google/uuid"
)

// Meme is the recommendable item. The engine never writes memes; they are
// loaded through the item repository.
type Meme struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Type       string    `json:"type" db:"type"`
	Title      string    `json:"title" db:"title"`
	Tags       []string  `json:"tags" db:"tags"`
	AuthorID   uuid.UUID `json:"author_id" db:"author_id"`
	HotScore   float64   `json:"hot_score" db:"hot_score"`
	Visibility string    `json:"visibility" db:"visibility"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// MemeFilter narrows item repository loads.
type MemeFilter struct {
	IDs        []uuid.UUID
	Tags       []string
	Types      []string
	ExcludeIDs []uuid.UUID
	Limit      int
}

// User carries the minimum the engine needs about an account.
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Status       string     `json:"status" db:"status"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty" db:"last_active_at"`
}
