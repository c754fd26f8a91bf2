package types

import (
	"time"

	"github.com/google/uuid"
)

// ReenrollmentRecord is one user flagged by the scanner as needing Okta
// Verify re-enrollment before FastPass rollout
type ReenrollmentRecord struct {
	UserID            string
	UserName          string
	UserFullName      string
	UserEmail         string
	PushFactorPresent bool
	AppsInScope       []string
	ScannedAt         time.Time
}

// RemediationAction identifies one step of the remediation workflow
type RemediationAction string

const (
	ActionNotify RemediationAction = "notify"
	ActionReset  RemediationAction = "reset"
	ActionVerify RemediationAction = "verify"
)

// RemediationEvent is the ledger row recording that an action was taken for
// a user within a wave. The unique index makes re-runs idempotent: a second
// pass over the same CSV skips users already recorded for that wave+action.
type RemediationEvent struct {
	ID        uuid.UUID         `gorm:"primaryKey;type:uuid"`
	Wave      string            `gorm:"uniqueIndex:idx_wave_user_action;not null"`
	UserID    string            `gorm:"uniqueIndex:idx_wave_user_action;not null"`
	Action    RemediationAction `gorm:"uniqueIndex:idx_wave_user_action;not null"`
	UserEmail string
	Succeeded bool
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
