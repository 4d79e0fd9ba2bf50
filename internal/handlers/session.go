package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/services"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func pathID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, apperr.Newf(apperr.KindValidation, "invalid %s", name)
	}
	return uint(id), nil
}

// CreateSession godoc
// @Summary      Create a session
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body services.CreateSessionInput false "Session settings"
// @Success      201 {object} models.Session
// @Router       /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req services.CreateSessionInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	session, err := h.sessionService.Create(currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions godoc
// @Summary      List the caller's sessions
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} models.Session
// @Router       /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListMine(currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession godoc
// @Summary      Get a session with its roster
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} models.Session
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	session, err := h.sessionService.Get(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// UpdateSession godoc
// @Summary      Update session status or settings (owner only)
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body services.UpdateSessionInput true "Fields to change"
// @Success      200 {object} models.Session
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [put]
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req services.UpdateSessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.sessionService.Update(currentUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// DeleteSession godoc
// @Summary      Delete a session (owner only)
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessionService.Delete(currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "session deleted"})
}

type JoinSessionRequest struct {
	Code string `json:"code"`
}

// JoinSession godoc
// @Summary      Join a session by id
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body JoinSessionRequest false "Join code check"
// @Success      200 {object} models.Session
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/join [post]
func (h *SessionHandler) JoinSession(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req JoinSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	session, err := h.sessionService.Join(currentUserID(c), id, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type JoinByCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// JoinByCode godoc
// @Summary      Join a session by its share code
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body JoinByCodeRequest true "Join code"
// @Success      200 {object} models.Session
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/join [post]
func (h *SessionHandler) JoinByCode(c *gin.Context) {
	var req JoinByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.sessionService.JoinByCode(currentUserID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// LeaveSession godoc
// @Summary      Leave a session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} MessageResponse
// @Router       /api/v1/sessions/{id}/leave [post]
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessionService.Leave(currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "left session"})
}

// ListParticipants godoc
// @Summary      List session participants in join order
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} services.ParticipantInfo
// @Router       /api/v1/sessions/{id}/participants [get]
func (h *SessionHandler) ListParticipants(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	participants, err := h.sessionService.ListParticipants(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

type AddParticipantRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// AddParticipant godoc
// @Summary      Add a user to the session (owner only)
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body AddParticipantRequest true "User to add"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/participants [post]
func (h *SessionHandler) AddParticipant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.sessionService.AddParticipant(currentUserID(c), id, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "participant added"})
}

// RemoveParticipant godoc
// @Summary      Remove a participant (owner only)
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        user_id path int true "User ID"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/participants/{user_id} [delete]
func (h *SessionHandler) RemoveParticipant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	userID, err := pathID(c, "user_id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.sessionService.RemoveParticipant(currentUserID(c), id, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "participant removed"})
}
