package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/models"
)

const (
	accessTokenExpiry  = 15 * time.Minute
	refreshTokenExpiry = 7 * 24 * time.Hour
)

type AuthService struct {
	db        *gorm.DB
	jwtSecret []byte
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: []byte(jwtSecret)}
}

// TokenPair is a short-lived JWT access token plus an opaque refresh token
// persisted server-side.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *AuthService) Register(email, password, displayName string) (*models.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing models.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, nil, apperr.New(apperr.KindConflict, "an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, mapErr(err, "auth.register")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, mapErr(err, "auth.register")
	}

	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, nil, mapErr(err, "auth.register")
	}

	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

func (s *AuthService) Login(email, password string) (*models.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, "invalid credentials")
	}

	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a fresh
// pair is issued. A revoked or expired token is rejected.
func (s *AuthService) Refresh(refreshToken string) (*TokenPair, error) {
	var stored models.RefreshToken
	if err := s.db.Where("token = ?", refreshToken).First(&stored).Error; err != nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid refresh token")
	}
	if stored.Revoked || time.Now().After(stored.ExpiresAt) {
		return nil, apperr.New(apperr.KindUnauthenticated, "refresh token expired or revoked")
	}

	if err := s.db.Model(&stored).Update("revoked", true).Error; err != nil {
		return nil, mapErr(err, "auth.refresh")
	}
	return s.issueTokens(stored.UserID)
}

// Logout revokes the presented refresh token. Unknown tokens are ignored so
// logout is idempotent.
func (s *AuthService) Logout(refreshToken string) error {
	err := s.db.Model(&models.RefreshToken{}).
		Where("token = ?", refreshToken).
		Update("revoked", true).Error
	return mapErr(err, "auth.logout")
}

func (s *AuthService) issueTokens(userID uint) (*TokenPair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(accessTokenExpiry).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	access, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, mapErr(err, "auth.issue")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, mapErr(err, "auth.issue")
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw)

	row := models.RefreshToken{
		UserID:    userID,
		Token:     refresh,
		ExpiresAt: now.Add(refreshTokenExpiry),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, mapErr(err, "auth.issue")
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(accessTokenExpiry.Seconds()),
	}, nil
}

// ValidateToken verifies an access token and returns the authenticated user
// id.
func (s *AuthService) ValidateToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, apperr.New(apperr.KindUnauthenticated, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, apperr.New(apperr.KindUnauthenticated, "invalid claims")
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, apperr.New(apperr.KindUnauthenticated, "invalid user_id in token")
	}
	return uint(userIDFloat), nil
}
