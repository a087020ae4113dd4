package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"condo-chat/internal/chat"
	"condo-chat/internal/errs"
)

// ErrorResponse is the body of every client-facing error.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Kind       errs.Kind      `json:"kind"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Timestamp  string         `json:"timestamp"`
	Path       string         `json:"path"`
	Details    map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	var delivery *chat.DeliveryError
	if errors.As(err, &delivery) {
		respond(c, http.StatusBadGateway, "Bad Gateway", errs.KindTransient,
			"message stored but could not be delivered", map[string]any{"message_id": delivery.MessageID})
		return
	}

	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	message := errs.MessageOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respond(c, status, errs.Title(kind), kind, message, nil)
}

func writeValidation(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, errs.Title(errs.KindValidation), errs.KindValidation, message, nil)
}

func respond(c *gin.Context, status int, title string, kind errs.Kind, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      title,
		Kind:       kind,
		Message:    message,
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       c.Request.URL.Path,
		Details:    details,
	})
}

func respondForbidden(c *gin.Context, message string) {
	respond(c, http.StatusForbidden, errs.Title(errs.KindForbidden), errs.KindForbidden, message, nil)
}
