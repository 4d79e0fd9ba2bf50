package models

import "time"

// Session is a group of participants sharing one or more rotations. It is
// identified by a human-shareable join code and owned by the user who created
// it; ownership never changes.
type Session struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	Code         string               `gorm:"size:6;uniqueIndex;not null" json:"code"`
	OwnerID      uint                 `gorm:"not null;index" json:"owner_id"`
	Owner        User                 `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	Status       string               `gorm:"size:20;not null;default:'waiting'" json:"status"`
	Settings     SessionSettings      `gorm:"type:jsonb" json:"settings"`
	Participants []SessionParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

const (
	SessionStatusWaiting   = "waiting"
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
)

// SessionParticipant is one user's membership in a session. JoinOrder is a
// strictly increasing integer assigned at join time; it determines the default
// turn order and display sequencing.
type SessionParticipant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;uniqueIndex:idx_session_user" json:"session_id"`
	Session   Session   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_session_user" json:"user_id"`
	JoinOrder int       `gorm:"not null" json:"join_order"`
	JoinedAt  time.Time `json:"joined_at"`
}
