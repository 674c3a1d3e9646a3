package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot is embedded by every sales aggregate: houses, clients,
// payments and renunciations.
//
// Version drives optimistic locking. A repository writes the row only while
// its stored version still equals Version, then bumps both.
type BaseAggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// NewBaseAggregateRoot starts a version 1 aggregate under a random ID.
func NewBaseAggregateRoot() BaseAggregateRoot {
	return NewBaseAggregateRootWithID(uuid.New())
}

// NewBaseAggregateRootWithID is NewBaseAggregateRoot for IDs the caller
// derives, such as payment IDs keyed by idempotency key.
func NewBaseAggregateRootWithID(id uuid.UUID) BaseAggregateRoot {
	now := time.Now()
	return BaseAggregateRoot{ID: id, CreatedAt: now, UpdatedAt: now, Version: 1}
}

// Touch records a modification at now.
func (a *BaseAggregateRoot) Touch(now time.Time) {
	a.UpdatedAt = now
}

// IncrementVersion bumps the optimistic-lock version.
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}
