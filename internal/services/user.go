package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/models"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Get(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, mapErr(err, "user.get")
	}
	return &user, nil
}

// ProfileUpdate carries the optional profile fields; nil means leave
// unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

func (s *UserService) UpdateProfile(userID uint, upd ProfileUpdate) (*models.User, error) {
	user, err := s.Get(userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if upd.DisplayName != nil {
		if *upd.DisplayName == "" {
			return nil, apperr.New(apperr.KindValidation, "display_name cannot be empty")
		}
		changes["display_name"] = *upd.DisplayName
	}
	if upd.AvatarURL != nil {
		changes["avatar_url"] = *upd.AvatarURL
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.Model(user).Updates(changes).Error; err != nil {
		return nil, mapErr(err, "user.update")
	}
	return user, nil
}
