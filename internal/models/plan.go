package models

import (
	"time"

	"github.com/google/uuid"
)

type UserPlan struct {
	UserID      string
	Plan        string
	PointsLeft  int
	StartDate   time.Time
	IsAnonymous bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DeviceCredit struct {
	DeviceID           string
	HasUsedFreeCredits bool
	UserID             string
	CreatedAt          time.Time
}

// Transaction records a plan purchase. Reference is the payment provider's
// id and is unique.
type Transaction struct {
	ID        uuid.UUID
	UserID    string
	Plan      string
	Points    int
	Reference string
	CreatedAt time.Time
}

type GenerationRecord struct {
	ID        uuid.UUID
	UserID    string
	TaskID    string
	Kind      GenerationKind
	Output    string
	CreatedAt time.Time
}
