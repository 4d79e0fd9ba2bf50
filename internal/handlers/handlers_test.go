package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Liberatex/Rotation/internal/middleware"
	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/services"
	"github.com/Liberatex/Rotation/internal/ws"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Each pooled connection to :memory: is its own empty database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Session{},
		&models.SessionParticipant{},
		&models.Rotation{},
		&models.RotationTurn{},
		&models.RotationHistory{},
	))

	hub := ws.NewHub()
	authService := services.NewAuthService(db, "test-secret")
	userService := services.NewUserService(db)
	sessionService := services.NewSessionService(db, hub)
	rotationService := services.NewRotationService(db, hub)

	authHandler := NewAuthHandler(authService)
	userHandler := NewUserHandler(userService)
	sessionHandler := NewSessionHandler(sessionService)
	rotationHandler := NewRotationHandler(rotationService)

	r := gin.New()
	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)

	users := api.Group("/users")
	users.Use(middleware.JWTAuth(authService))
	users.GET("/me", userHandler.Me)
	users.PUT("/me", userHandler.UpdateMe)

	sessions := api.Group("/sessions")
	sessions.Use(middleware.JWTAuth(authService))
	sessions.GET("", sessionHandler.ListSessions)
	sessions.POST("", sessionHandler.CreateSession)
	sessions.POST("/join", sessionHandler.JoinByCode)
	sessions.GET("/:id", sessionHandler.GetSession)
	sessions.PUT("/:id", sessionHandler.UpdateSession)
	sessions.DELETE("/:id", sessionHandler.DeleteSession)
	sessions.POST("/:id/join", sessionHandler.JoinSession)
	sessions.POST("/:id/leave", sessionHandler.LeaveSession)
	sessions.GET("/:id/participants", sessionHandler.ListParticipants)
	sessions.POST("/:id/rotations", rotationHandler.CreateRotation)
	sessions.GET("/:id/rotations", rotationHandler.ListRotations)

	rotations := api.Group("/rotations")
	rotations.Use(middleware.JWTAuth(authService))
	rotations.GET("/:id", rotationHandler.GetRotation)
	rotations.POST("/:id/start", rotationHandler.Start)
	rotations.POST("/:id/pass", rotationHandler.Pass)
	rotations.POST("/:id/end", rotationHandler.End)
	rotations.GET("/:id/turns", rotationHandler.ListTurns)
	rotations.GET("/:id/history", rotationHandler.ListHistory)

	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, email string) (token string, userID uint) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Tokens.AccessToken, resp.User.ID
}

func TestAuthFlow(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	// Weak password is rejected by binding.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "bob@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Duplicate email.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Wrong password.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Refresh then use the new access token.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": reg.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))

	w = doJSON(t, r, http.MethodGet, "/api/v1/users/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Old refresh token was rotated out.
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": reg.Tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	ownerToken, _ := registerUser(t, r, "owner@example.com")
	aliceToken, _ := registerUser(t, r, "alice@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", ownerToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Regexp(t, `^[A-Z]{3}[0-9]{3}$`, session.Code)

	// Outsiders cannot see the session.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d", session.ID), aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Join by share code.
	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/join", aliceToken, gin.H{"code": session.Code})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d/participants", session.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var participants []services.ParticipantInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &participants))
	assert.Len(t, participants, 2)

	// Non-owner cannot delete.
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/sessions/%d", session.ID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/sessions/%d", session.ID), ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRotationFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	ownerToken, ownerID := registerUser(t, r, "owner@example.com")
	aliceToken, aliceID := registerUser(t, r, "alice@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", ownerToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/join", aliceToken, gin.H{"code": session.Code})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/rotations", session.ID), ownerToken, gin.H{
		"name": "standup",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rot models.Rotation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rot))

	// Only the owner can start.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/start", rot.ID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/start", rot.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rot))
	require.NotNil(t, rot.CurrentTurnUserID)
	assert.Equal(t, ownerID, *rot.CurrentTurnUserID)

	// Passing out of turn is forbidden.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/pass", rot.ID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/pass", rot.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rot))
	assert.Equal(t, aliceID, *rot.CurrentTurnUserID)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/end", rot.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Starting a completed rotation is an invalid state transition.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/rotations/%d/start", rot.ID), ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/rotations/%d/turns", rot.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var turns []models.RotationTurn
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turns))
	assert.Len(t, turns, 2)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/rotations/%d/history", rot.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.RotationHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 3)
}
