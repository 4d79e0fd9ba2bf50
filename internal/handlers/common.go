package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liberatex/Rotation/internal/apperr"
)

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindNotAuthorized:   http.StatusForbidden,
	apperr.KindNotYourTurn:     http.StatusForbidden,
	apperr.KindInvalidState:    http.StatusBadRequest,
	apperr.KindEmptyTurnOrder:  http.StatusBadRequest,
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindInternal:        http.StatusInternalServerError,
}

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: string(kind)})
}

// currentUserID reads the authenticated user id set by the JWT middleware.
func currentUserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}
