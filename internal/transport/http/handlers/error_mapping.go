package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase pairs a sentinel error with the status and message it maps to.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError writes the response for the first matching case,
// falling back to the provided status and message for unrecognized errors.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	status, message := fallbackStatus, fallbackMessage
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			status, message = cs.Status, cs.Message
			break
		}
	}

	c.JSON(status, NewErrorResponse(c, message))
}
