package models

import (
	"time"

	"gorm.io/datatypes"
)

// Rotation is one round-robin turn-taking instance within a session. TurnOrder
// is fixed for the lifetime of the rotation unless edited by the session owner
// while the rotation is still waiting. The current-turn fields are set exactly
// while the rotation is active.
type Rotation struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	SessionID            uint             `gorm:"not null;index" json:"session_id"`
	Session              Session          `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	Name                 string           `gorm:"size:100" json:"name,omitempty"`
	TimerDuration        int              `gorm:"not null;default:30" json:"timer_duration"`
	Status               string           `gorm:"size:20;not null;default:'waiting'" json:"status"`
	TurnOrder            UserIDList       `gorm:"type:jsonb" json:"turn_order"`
	CurrentTurnUserID    *uint            `json:"current_turn_user_id,omitempty"`
	CurrentTurnStartedAt *time.Time       `json:"current_turn_started_at,omitempty"`
	CustomSettings       RotationSettings `gorm:"type:jsonb" json:"custom_settings"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

const (
	RotationStatusWaiting   = "waiting"
	RotationStatusActive    = "active"
	RotationStatusPaused    = "paused"
	RotationStatusCompleted = "completed"
)

// DefaultTimerDuration is the per-turn timer in seconds when a rotation is
// created without one.
const DefaultTimerDuration = 30

// RotationTurn is the append-only log entry covering one participant's
// occupancy of the active turn slot. EndedAt is null while the turn is open;
// at most one turn per rotation is open at any time.
type RotationTurn struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RotationID uint       `gorm:"not null;index" json:"rotation_id"`
	Rotation   Rotation   `gorm:"foreignKey:RotationID;constraint:OnDelete:CASCADE" json:"-"`
	UserID     uint       `gorm:"not null" json:"user_id"`
	TurnNumber int        `gorm:"not null" json:"turn_number"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"`
	TimedOut   bool       `gorm:"not null;default:false" json:"timed_out"`
}

// RotationHistory is the append-only audit log of actions taken against a
// rotation.
type RotationHistory struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RotationID uint           `gorm:"not null;index" json:"rotation_id"`
	Rotation   Rotation       `gorm:"foreignKey:RotationID;constraint:OnDelete:CASCADE" json:"-"`
	UserID     uint           `gorm:"not null" json:"user_id"`
	Action     string         `gorm:"size:20;not null" json:"action"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	Timestamp  time.Time      `gorm:"autoCreateTime" json:"timestamp"`
}
