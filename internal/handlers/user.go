package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liberatex/Rotation/internal/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// Me godoc
// @Summary      Get the authenticated user's profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} models.User
// @Failure      401 {object} ErrorResponse
// @Router       /api/v1/users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.Get(currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe godoc
// @Summary      Update the authenticated user's profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body services.ProfileUpdate true "Profile fields"
// @Success      200 {object} models.User
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/users/me [put]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
