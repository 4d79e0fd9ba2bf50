package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/services"
)

type RotationHandler struct {
	rotationService *services.RotationService
}

func NewRotationHandler(rotationService *services.RotationService) *RotationHandler {
	return &RotationHandler{rotationService: rotationService}
}

// CreateRotation godoc
// @Summary      Create a rotation in a session
// @Tags         rotations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body services.CreateRotationInput false "Rotation configuration"
// @Success      201 {object} models.Rotation
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/rotations [post]
func (h *RotationHandler) CreateRotation(c *gin.Context) {
	sessionID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req services.CreateRotationInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	rot, err := h.rotationService.Create(currentUserID(c), sessionID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rot)
}

// ListRotations godoc
// @Summary      List a session's rotations
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} models.Rotation
// @Router       /api/v1/sessions/{id}/rotations [get]
func (h *RotationHandler) ListRotations(c *gin.Context) {
	sessionID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	rotations, err := h.rotationService.ListForSession(currentUserID(c), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rotations)
}

// GetRotation godoc
// @Summary      Get a rotation
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/rotations/{id} [get]
func (h *RotationHandler) GetRotation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	rot, err := h.rotationService.Get(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rot)
}

// UpdateRotation godoc
// @Summary      Update a rotation (owner only)
// @Tags         rotations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Param        request body services.UpdateRotationInput true "Fields to change"
// @Success      200 {object} models.Rotation
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/rotations/{id} [put]
func (h *RotationHandler) UpdateRotation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req services.UpdateRotationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rot, err := h.rotationService.Update(currentUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rot)
}

// DeleteRotation godoc
// @Summary      Delete a rotation (owner only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/rotations/{id} [delete]
func (h *RotationHandler) DeleteRotation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.rotationService.Delete(currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "rotation deleted"})
}

func (h *RotationHandler) action(c *gin.Context, op func(uint, uint) (*models.Rotation, error)) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	rot, err := op(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rot)
}

// Start godoc
// @Summary      Start a waiting rotation (owner only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/rotations/{id}/start [post]
func (h *RotationHandler) Start(c *gin.Context) {
	h.action(c, h.rotationService.Start)
}

// Pause godoc
// @Summary      Pause an active rotation (owner only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Router       /api/v1/rotations/{id}/pause [post]
func (h *RotationHandler) Pause(c *gin.Context) {
	h.action(c, h.rotationService.Pause)
}

// Resume godoc
// @Summary      Resume a paused rotation (owner only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Router       /api/v1/rotations/{id}/resume [post]
func (h *RotationHandler) Resume(c *gin.Context) {
	h.action(c, h.rotationService.Resume)
}

// Pass godoc
// @Summary      Pass the turn to the next participant (current holder only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/rotations/{id}/pass [post]
func (h *RotationHandler) Pass(c *gin.Context) {
	h.action(c, h.rotationService.Pass)
}

// Timeout godoc
// @Summary      Report a turn timeout (holder or owner)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Router       /api/v1/rotations/{id}/timeout [post]
func (h *RotationHandler) Timeout(c *gin.Context) {
	h.action(c, h.rotationService.Timeout)
}

// End godoc
// @Summary      End a rotation (owner only)
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {object} models.Rotation
// @Router       /api/v1/rotations/{id}/end [post]
func (h *RotationHandler) End(c *gin.Context) {
	h.action(c, h.rotationService.End)
}

// ListTurns godoc
// @Summary      List the rotation's turn log
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {array} models.RotationTurn
// @Router       /api/v1/rotations/{id}/turns [get]
func (h *RotationHandler) ListTurns(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	turns, err := h.rotationService.ListTurns(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, turns)
}

// ListHistory godoc
// @Summary      List the rotation's action history, newest first
// @Tags         rotations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Rotation ID"
// @Success      200 {array} models.RotationHistory
// @Router       /api/v1/rotations/{id}/history [get]
func (h *RotationHandler) ListHistory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.rotationService.ListHistory(currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
