package services

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/rotation"
	"github.com/Liberatex/Rotation/internal/ws"
)

type RotationService struct {
	db     *gorm.DB
	fanout Fanout
}

func NewRotationService(db *gorm.DB, fanout Fanout) *RotationService {
	return &RotationService{db: db, fanout: fanout}
}

type CreateRotationInput struct {
	Name           string                   `json:"name"`
	TimerDuration  *int                     `json:"timer_duration"`
	TurnOrder      []uint                   `json:"turn_order"`
	CustomSettings *models.RotationSettings `json:"custom_settings"`
}

// Create adds a rotation to a session. Any participant may create one. When no
// turn order is given the session roster in join order is used; an explicit
// order must name participants only. The timer falls back to the session's
// default and then to the global default.
func (s *RotationService) Create(userID, sessionID uint, in CreateRotationInput) (*models.Rotation, error) {
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
		return nil, mapErr(err, "rotation.create")
	}
	if !containsParticipant(session.Participants, userID) {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}

	order := in.TurnOrder
	if len(order) == 0 {
		for _, p := range session.Participants {
			order = append(order, p.UserID)
		}
	} else {
		for _, id := range order {
			if !containsParticipant(session.Participants, id) {
				return nil, apperr.Newf(apperr.KindValidation, "turn order contains non-participant user %d", id)
			}
		}
	}

	timer := models.DefaultTimerDuration
	if session.Settings.DefaultTimerDuration > 0 {
		timer = session.Settings.DefaultTimerDuration
	}
	if in.TimerDuration != nil {
		if *in.TimerDuration <= 0 {
			return nil, apperr.New(apperr.KindValidation, "timer_duration must be positive")
		}
		timer = *in.TimerDuration
	}

	rot := models.Rotation{
		SessionID:     sessionID,
		Name:          in.Name,
		TimerDuration: timer,
		Status:        models.RotationStatusWaiting,
		TurnOrder:     models.UserIDList(order),
	}
	if in.CustomSettings != nil {
		rot.CustomSettings = *in.CustomSettings
	}
	if err := s.db.Create(&rot).Error; err != nil {
		return nil, mapErr(err, "rotation.create")
	}
	return &rot, nil
}

// Get loads a rotation, visible to session participants only.
func (s *RotationService) Get(userID, rotationID uint) (*models.Rotation, error) {
	rot, _, err := s.load(s.db, userID, rotationID)
	return rot, err
}

// ListForSession returns a session's rotations, newest first.
func (s *RotationService) ListForSession(userID, sessionID uint) ([]models.Rotation, error) {
	var count int64
	err := s.db.Model(&models.SessionParticipant{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error
	if err != nil {
		return nil, mapErr(err, "rotation.list")
	}
	if count == 0 {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}

	var rotations []models.Rotation
	err = s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&rotations).Error
	if err != nil {
		return nil, mapErr(err, "rotation.list")
	}
	return rotations, nil
}

type UpdateRotationInput struct {
	Name           *string                  `json:"name"`
	TimerDuration  *int                     `json:"timer_duration"`
	TurnOrder      []uint                   `json:"turn_order"`
	CustomSettings *models.RotationSettings `json:"custom_settings"`
}

// Update lets the session owner edit a rotation. The turn order may only
// change while the rotation has not started.
func (s *RotationService) Update(userID, rotationID uint, in UpdateRotationInput) (*models.Rotation, error) {
	rot, session, err := s.load(s.db, userID, rotationID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != userID {
		return nil, apperr.New(apperr.KindNotAuthorized, "only the session owner can update a rotation")
	}

	changes := map[string]interface{}{}
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.TimerDuration != nil {
		if *in.TimerDuration <= 0 {
			return nil, apperr.New(apperr.KindValidation, "timer_duration must be positive")
		}
		changes["timer_duration"] = *in.TimerDuration
	}
	if in.TurnOrder != nil {
		if rot.Status != models.RotationStatusWaiting {
			return nil, apperr.New(apperr.KindInvalidState, "turn order can only change before the rotation starts")
		}
		for _, id := range in.TurnOrder {
			if !containsParticipant(session.Participants, id) {
				return nil, apperr.Newf(apperr.KindValidation, "turn order contains non-participant user %d", id)
			}
		}
		changes["turn_order"] = models.UserIDList(in.TurnOrder)
	}
	if in.CustomSettings != nil {
		changes["custom_settings"] = *in.CustomSettings
	}
	if len(changes) > 0 {
		if err := s.db.Model(rot).Updates(changes).Error; err != nil {
			return nil, mapErr(err, "rotation.update")
		}
	}
	return s.Get(userID, rotationID)
}

// Delete removes a rotation and its turns and history. Owner only.
func (s *RotationService) Delete(userID, rotationID uint) error {
	_, session, err := s.load(s.db, userID, rotationID)
	if err != nil {
		return err
	}
	if session.OwnerID != userID {
		return apperr.New(apperr.KindNotAuthorized, "only the session owner can delete a rotation")
	}
	if err := s.db.Delete(&models.Rotation{}, rotationID).Error; err != nil {
		return mapErr(err, "rotation.delete")
	}
	return nil
}

func (s *RotationService) Start(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.Start)
}

func (s *RotationService) Pause(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.Pause)
}

func (s *RotationService) Resume(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.Resume)
}

func (s *RotationService) Pass(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.Pass)
}

func (s *RotationService) Timeout(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.Timeout)
}

func (s *RotationService) End(userID, rotationID uint) (*models.Rotation, error) {
	return s.apply(userID, rotationID, rotation.End)
}

type transition func(rotation.Snapshot, uint, time.Time) (rotation.Result, error)

// apply runs one state-machine operation against a rotation: load everything
// under a row lock, run the pure transition, persist the snapshot and effects
// atomically, then broadcast after commit.
func (s *RotationService) apply(userID, rotationID uint, op transition) (*models.Rotation, error) {
	var (
		rot    *models.Rotation
		result rotation.Result
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session *models.Session
		var err error
		rot, session, err = s.load(lockForUpdate(tx), userID, rotationID)
		if err != nil {
			return err
		}

		snap := rotation.Snapshot{
			Status:    rotation.Status(rot.Status),
			OwnerID:   session.OwnerID,
			TurnOrder: []uint(rot.TurnOrder),
		}
		if rot.CurrentTurnUserID != nil {
			snap.CurrentTurnUserID = *rot.CurrentTurnUserID
		}
		if rot.CurrentTurnStartedAt != nil {
			snap.CurrentTurnStartedAt = *rot.CurrentTurnStartedAt
		}

		var open models.RotationTurn
		err = tx.Where("rotation_id = ? AND ended_at IS NULL", rotationID).First(&open).Error
		if err == nil {
			snap.OpenTurn = &rotation.OpenTurn{
				UserID:     open.UserID,
				TurnNumber: open.TurnNumber,
				StartedAt:  open.StartedAt,
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		result, err = op(snap, userID, time.Now())
		if err != nil {
			return err
		}

		rot.Status = string(result.Snapshot.Status)
		if result.Snapshot.CurrentTurnUserID != 0 {
			u := result.Snapshot.CurrentTurnUserID
			t := result.Snapshot.CurrentTurnStartedAt
			rot.CurrentTurnUserID = &u
			rot.CurrentTurnStartedAt = &t
		} else {
			rot.CurrentTurnUserID = nil
			rot.CurrentTurnStartedAt = nil
		}
		// Save rather than Updates so the nulled pointer fields are written.
		if err := tx.Save(rot).Error; err != nil {
			return err
		}

		if result.ClosedTurn != nil {
			err := tx.Model(&models.RotationTurn{}).
				Where("rotation_id = ? AND ended_at IS NULL", rotationID).
				Updates(map[string]interface{}{
					"ended_at":    result.ClosedTurn.EndedAt,
					"duration_ms": result.ClosedTurn.DurationMs,
					"timed_out":   result.ClosedTurn.TimedOut,
				}).Error
			if err != nil {
				return err
			}
		}
		if result.OpenedTurn != nil {
			turn := models.RotationTurn{
				RotationID: rotationID,
				UserID:     result.OpenedTurn.UserID,
				TurnNumber: result.OpenedTurn.TurnNumber,
				StartedAt:  result.OpenedTurn.StartedAt,
			}
			if err := tx.Create(&turn).Error; err != nil {
				return err
			}
		}

		history := models.RotationHistory{
			RotationID: rotationID,
			UserID:     result.History.ActorID,
			Action:     string(result.History.Action),
		}
		if result.History.PassedTo != 0 {
			meta, err := json.Marshal(map[string]uint{"passed_to": result.History.PassedTo})
			if err != nil {
				return err
			}
			history.Metadata = datatypes.JSON(meta)
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, mapErr(err, "rotation.apply")
	}

	s.broadcast(rot, result)
	return rot, nil
}

func (s *RotationService) broadcast(rot *models.Rotation, result rotation.Result) {
	evt := ws.Event{Data: ws.RotationEvent{
		SessionID:  rot.SessionID,
		RotationID: rot.ID,
		UserID:     result.History.ActorID,
		PassedTo:   result.History.PassedTo,
		TimedOut:   result.ClosedTurn != nil && result.ClosedTurn.TimedOut,
	}}
	if result.OpenedTurn != nil {
		data := evt.Data.(ws.RotationEvent)
		data.TurnNumber = result.OpenedTurn.TurnNumber
		evt.Data = data
	}

	switch result.History.Action {
	case rotation.ActionStart:
		evt.Type = ws.EventRotationStarted
	case rotation.ActionPause:
		evt.Type = ws.EventRotationPaused
	case rotation.ActionResume:
		evt.Type = ws.EventRotationResumed
	case rotation.ActionPass, rotation.ActionTimeout:
		evt.Type = ws.EventTurnChanged
	case rotation.ActionEnd:
		evt.Type = ws.EventRotationEnded
	default:
		return
	}
	s.fanout.Broadcast(rot.SessionID, evt)
}

// ListTurns returns the rotation's turn log in the order it was taken.
func (s *RotationService) ListTurns(userID, rotationID uint) ([]models.RotationTurn, error) {
	if _, _, err := s.load(s.db, userID, rotationID); err != nil {
		return nil, err
	}
	var turns []models.RotationTurn
	err := s.db.Where("rotation_id = ?", rotationID).
		Order("turn_number ASC, started_at ASC").
		Find(&turns).Error
	if err != nil {
		return nil, mapErr(err, "rotation.turns")
	}
	return turns, nil
}

// ListHistory returns the rotation's audit log, newest first.
func (s *RotationService) ListHistory(userID, rotationID uint) ([]models.RotationHistory, error) {
	if _, _, err := s.load(s.db, userID, rotationID); err != nil {
		return nil, err
	}
	var history []models.RotationHistory
	err := s.db.Where("rotation_id = ?", rotationID).
		Order("timestamp DESC, id DESC").
		Find(&history).Error
	if err != nil {
		return nil, mapErr(err, "rotation.history")
	}
	return history, nil
}

// load fetches the rotation and its session roster, enforcing that the caller
// is a participant. Lock clauses on db apply to the rotation row.
func (s *RotationService) load(db *gorm.DB, userID, rotationID uint) (*models.Rotation, *models.Session, error) {
	var rot models.Rotation
	if err := db.First(&rot, rotationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "rotation not found")
		}
		return nil, nil, err
	}

	var session models.Session
	err := db.Session(&gorm.Session{NewDB: true}).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("join_order ASC")
		}).
		First(&session, rot.SessionID).Error
	if err != nil {
		return nil, nil, err
	}
	if !containsParticipant(session.Participants, userID) {
		return nil, nil, apperr.New(apperr.KindNotFound, "rotation not found")
	}
	return &rot, &session, nil
}
