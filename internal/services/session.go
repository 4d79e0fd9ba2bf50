package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/ws"
)

const codeGenAttempts = 10

type SessionService struct {
	db     *gorm.DB
	fanout Fanout
}

func NewSessionService(db *gorm.DB, fanout Fanout) *SessionService {
	return &SessionService{db: db, fanout: fanout}
}

// generateCode produces a join code of three uppercase letters followed by
// three digits, e.g. "KQT204".
func generateCode() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"

	buf := make([]byte, 6)
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		buf[i] = letters[n.Int64()]
	}
	for i := 3; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}

type CreateSessionInput struct {
	Settings *models.SessionSettings `json:"settings"`
}

// Create makes a new session owned by userID. The owner is enrolled as the
// first participant in the same transaction, so a session is never observable
// without its owner on the roster.
func (s *SessionService) Create(userID uint, in CreateSessionInput) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		code := ""
		for attempt := 0; attempt < codeGenAttempts; attempt++ {
			candidate, err := generateCode()
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&models.Session{}).Where("code = ?", candidate).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				code = candidate
				break
			}
		}
		if code == "" {
			return fmt.Errorf("could not generate a unique session code after %d attempts", codeGenAttempts)
		}

		session = models.Session{
			Code:    code,
			OwnerID: userID,
			Status:  models.SessionStatusWaiting,
		}
		if in.Settings != nil {
			session.Settings = *in.Settings
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		participant := models.SessionParticipant{
			SessionID: session.ID,
			UserID:    userID,
			JoinOrder: 1,
			JoinedAt:  time.Now(),
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return nil, mapErr(err, "session.create")
	}

	return s.Get(userID, session.ID)
}

// Get loads a session with its roster ordered by join order. Only
// participants may read a session; to everyone else it does not exist.
func (s *SessionService) Get(userID, sessionID uint) (*models.Session, error) {
	var session models.Session
	err := s.db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("join_order ASC")
		}).
		First(&session, sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "session not found")
		}
		return nil, mapErr(err, "session.get")
	}

	if !containsParticipant(session.Participants, userID) {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	return &session, nil
}

func containsParticipant(participants []models.SessionParticipant, userID uint) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ListMine returns every session the user participates in, newest first.
func (s *SessionService) ListMine(userID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.
		Joins("JOIN session_participants sp ON sp.session_id = sessions.id").
		Where("sp.user_id = ?", userID).
		Order("sessions.created_at DESC").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("join_order ASC")
		}).
		Find(&sessions).Error
	if err != nil {
		return nil, mapErr(err, "session.list")
	}
	return sessions, nil
}

type UpdateSessionInput struct {
	Status   *string                 `json:"status"`
	Settings *models.SessionSettings `json:"settings"`
}

var validSessionStatus = map[string]bool{
	models.SessionStatusWaiting:   true,
	models.SessionStatusActive:    true,
	models.SessionStatusPaused:    true,
	models.SessionStatusCompleted: true,
}

// Update lets the session owner change status or settings.
func (s *SessionService) Update(userID, sessionID uint, in UpdateSessionInput) (*models.Session, error) {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != userID {
		return nil, apperr.New(apperr.KindNotAuthorized, "only the session owner can update the session")
	}

	changes := map[string]interface{}{}
	if in.Status != nil {
		if !validSessionStatus[*in.Status] {
			return nil, apperr.Newf(apperr.KindValidation, "invalid session status %q", *in.Status)
		}
		changes["status"] = *in.Status
	}
	if in.Settings != nil {
		changes["settings"] = *in.Settings
	}
	if len(changes) > 0 {
		if err := s.db.Model(session).Updates(changes).Error; err != nil {
			return nil, mapErr(err, "session.update")
		}
	}
	return s.Get(userID, sessionID)
}

// Delete removes a session and, via cascading foreign keys, its participants,
// rotations, turns and history. Owner only.
func (s *SessionService) Delete(userID, sessionID uint) error {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != userID {
		return apperr.New(apperr.KindNotAuthorized, "only the session owner can delete the session")
	}

	if err := s.db.Delete(&models.Session{}, sessionID).Error; err != nil {
		return mapErr(err, "session.delete")
	}

	s.fanout.Broadcast(sessionID, ws.Event{
		Type: ws.EventSessionEnded,
		Data: ws.SessionEvent{SessionID: sessionID},
	})
	return nil
}

// Join enrolls the user into a session. Joining a session the user already
// belongs to is a no-op. When code is non-empty it must match the session's
// join code.
func (s *SessionService) Join(userID, sessionID uint, code string) (*models.Session, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "session not found")
		}
		return nil, mapErr(err, "session.join")
	}
	if code != "" && code != session.Code {
		return nil, apperr.New(apperr.KindValidation, "incorrect session code")
	}

	if err := s.enroll(session.ID, userID, session.Settings.MaxParticipants); err != nil {
		return nil, err
	}
	return s.Get(userID, sessionID)
}

// JoinByCode enrolls the user into the session identified by its join code.
func (s *SessionService) JoinByCode(userID uint, code string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Where("code = ?", code).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "session not found")
		}
		return nil, mapErr(err, "session.join")
	}

	if err := s.enroll(session.ID, userID, session.Settings.MaxParticipants); err != nil {
		return nil, err
	}
	return s.Get(userID, session.ID)
}

func (s *SessionService) enroll(sessionID, userID uint, maxParticipants int) error {
	joined := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Holding the session row serializes concurrent joins, so the
		// max(join_order) read below cannot hand two joiners the same slot.
		var locked models.Session
		if err := lockForUpdate(tx).First(&locked, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "session not found")
			}
			return err
		}

		var existing models.SessionParticipant
		err := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.SessionParticipant{}).
			Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if maxParticipants > 0 && count >= int64(maxParticipants) {
			return apperr.New(apperr.KindValidation, "session is full")
		}

		var maxOrder int
		row := tx.Model(&models.SessionParticipant{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(join_order), 0)").
			Row()
		if err := row.Scan(&maxOrder); err != nil {
			return err
		}

		participant := models.SessionParticipant{
			SessionID: sessionID,
			UserID:    userID,
			JoinOrder: maxOrder + 1,
			JoinedAt:  time.Now(),
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		joined = true
		return nil
	})
	if err != nil {
		return mapErr(err, "session.join")
	}

	if joined {
		s.fanout.Broadcast(sessionID, ws.Event{
			Type: ws.EventParticipantJoined,
			Data: ws.ParticipantEvent{SessionID: sessionID, UserID: userID},
		})
	}
	return nil
}

// Leave removes the user from the session roster. The owner cannot leave
// their own session; they delete it instead.
func (s *SessionService) Leave(userID, sessionID uint) error {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID == userID {
		return apperr.New(apperr.KindInvalidState, "the owner cannot leave their own session")
	}

	err = s.db.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.SessionParticipant{}).Error
	if err != nil {
		return mapErr(err, "session.leave")
	}

	s.fanout.Broadcast(sessionID, ws.Event{
		Type: ws.EventParticipantLeft,
		Data: ws.ParticipantEvent{SessionID: sessionID, UserID: userID},
	})
	return nil
}

// ListParticipants returns the roster in join order, with user profiles.
func (s *SessionService) ListParticipants(userID, sessionID uint) ([]ParticipantInfo, error) {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uint, 0, len(session.Participants))
	for _, p := range session.Participants {
		userIDs = append(userIDs, p.UserID)
	}

	var users []models.User
	if err := s.db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, mapErr(err, "session.participants")
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]ParticipantInfo, 0, len(session.Participants))
	for _, p := range session.Participants {
		u := byID[p.UserID]
		out = append(out, ParticipantInfo{
			UserID:      p.UserID,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			JoinOrder:   p.JoinOrder,
			JoinedAt:    p.JoinedAt,
		})
	}
	return out, nil
}

type ParticipantInfo struct {
	UserID      uint      `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	JoinOrder   int       `json:"join_order"`
	JoinedAt    time.Time `json:"joined_at"`
}

// AddParticipant lets the owner enroll another user directly.
func (s *SessionService) AddParticipant(actorID, sessionID, userID uint) error {
	session, err := s.Get(actorID, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != actorID {
		return apperr.New(apperr.KindNotAuthorized, "only the session owner can add participants")
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return mapErr(err, "session.add_participant")
	}
	return s.enroll(sessionID, userID, session.Settings.MaxParticipants)
}

// RemoveParticipant lets the owner remove a member. The owner cannot remove
// themselves.
func (s *SessionService) RemoveParticipant(actorID, sessionID, userID uint) error {
	session, err := s.Get(actorID, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != actorID {
		return apperr.New(apperr.KindNotAuthorized, "only the session owner can remove participants")
	}
	if userID == session.OwnerID {
		return apperr.New(apperr.KindInvalidState, "the owner cannot be removed from their own session")
	}
	if !containsParticipant(session.Participants, userID) {
		return apperr.New(apperr.KindNotFound, "participant not found")
	}

	err = s.db.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.SessionParticipant{}).Error
	if err != nil {
		return mapErr(err, "session.remove_participant")
	}

	s.fanout.Broadcast(sessionID, ws.Event{
		Type: ws.EventParticipantLeft,
		Data: ws.ParticipantEvent{SessionID: sessionID, UserID: userID},
	})
	return nil
}

// IsParticipant reports whether the user belongs to the session. Used by the
// realtime gateway to gate group membership.
func (s *SessionService) IsParticipant(userID, sessionID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.SessionParticipant{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error
	if err != nil {
		return false, mapErr(err, "session.is_participant")
	}
	return count > 0, nil
}
